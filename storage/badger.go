package storage

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold"

	"github.com/dtn7/dtn7-lite/bundle"
)

const badgerDirName = "db"

// badgerRecord is the persisted representation of a BundleInfo, per section
// 6's "Persisted state layout": a monotonically increasing decimal-string
// key, the bundle's own CBOR encoding kept as an opaque byte string, and the
// routing metadata alongside it. Order is indexed so a restart can rebuild
// the FIFO eviction order without touching bundle contents.
type badgerRecord struct {
	Key   string `badgerhold:"key"`
	Order uint32 `badgerholdIndex:"Order"`

	BundleCbor []byte

	Retention           int
	LocallyDelivered    bool
	ForwardedTo         []badgerNodeRecord
	NumOfBroadcasts     uint32
	LastBroadcastTimeMs uint64
	ReceivedAtMs        uint64
}

// badgerNodeRecord is a Node flattened to badgerhold/gob-friendly fields:
// EndpointID wraps an interface, so EIDs are kept as their URI strings and
// reparsed on load.
type badgerNodeRecord struct {
	Identifier         string
	URI                string
	EIDs               []string
	LastSeenMs         uint64
	HasPosition        bool
	Lat                float32
	Lng                float32
	ConfirmedReception bool
	ReceivedHashes     []uint64
}

func toNodeRecord(n Node) badgerNodeRecord {
	eids := make([]string, len(n.EIDs))
	for i, e := range n.EIDs {
		eids[i] = e.String()
	}

	hashes := make([]uint64, 0, len(n.ReceivedHashes))
	for h := range n.ReceivedHashes {
		hashes = append(hashes, h)
	}

	return badgerNodeRecord{
		Identifier:         n.Identifier,
		URI:                n.URI,
		EIDs:               eids,
		LastSeenMs:         n.LastSeenMs,
		HasPosition:        n.HasPosition,
		Lat:                n.Position.Lat,
		Lng:                n.Position.Lng,
		ConfirmedReception: n.ConfirmedReception,
		ReceivedHashes:     hashes,
	}
}

func fromNodeRecord(r badgerNodeRecord) Node {
	n := NewNode(r.Identifier, r.URI)
	n.LastSeenMs = r.LastSeenMs
	n.HasPosition = r.HasPosition
	n.Position = Position{Lat: r.Lat, Lng: r.Lng}
	n.ConfirmedReception = r.ConfirmedReception

	for _, h := range r.ReceivedHashes {
		n.ReceivedHashes[h] = true
	}
	for _, uri := range r.EIDs {
		if eid, err := bundle.NewEndpointID(uri); err == nil {
			n.EIDs = append(n.EIDs, eid)
		}
	}

	return n
}

func toRecord(bi BundleInfo, order uint32) badgerRecord {
	forwardedTo := make([]badgerNodeRecord, len(bi.ForwardedTo))
	for i, n := range bi.ForwardedTo {
		forwardedTo[i] = toNodeRecord(n)
	}

	return badgerRecord{
		Key:                 strconv.FormatUint(uint64(order), 10),
		Order:               order,
		BundleCbor:          bi.Bundle.ToCbor(),
		Retention:           int(bi.Retention),
		LocallyDelivered:    bi.LocallyDelivered,
		ForwardedTo:         forwardedTo,
		NumOfBroadcasts:     bi.NumOfBroadcasts,
		LastBroadcastTimeMs: bi.LastBroadcastTimeMs,
		ReceivedAtMs:        bi.ReceivedAtMs,
	}
}

func fromRecord(r badgerRecord) (BundleInfo, error) {
	b, err := bundle.NewBundleFromCborBytes(r.BundleCbor)
	if err != nil {
		return BundleInfo{}, fmt.Errorf("storage: decoding persisted bundle: %w", err)
	}

	forwardedTo := make([]Node, len(r.ForwardedTo))
	for i, nr := range r.ForwardedTo {
		forwardedTo[i] = fromNodeRecord(nr)
	}

	return BundleInfo{
		Bundle:              b,
		Retention:           Constraint(r.Retention),
		LocallyDelivered:    r.LocallyDelivered,
		ForwardedTo:         forwardedTo,
		NumOfBroadcasts:     r.NumOfBroadcasts,
		LastBroadcastTimeMs: r.LastBroadcastTimeMs,
		ReceivedAtMs:        r.ReceivedAtMs,
	}, nil
}

// Badger is the durable "flash-backed" storage backend of section 4.5,
// using badgerhold as the flash-analogue key/value store. Bundles are keyed
// by a monotonically increasing counter (highestUsed), and the FIFO eviction
// order is an in-memory slice of live keys. No lowest-used or oldest-key
// value is stored: both the counter and the order are rebuilt on startup
// from the records' indexed Order field when KeepBetweenRestart is set, and
// the stored records are wiped otherwise.
type Badger struct {
	bh *badgerhold.Store

	mutex       sync.Mutex
	highestUsed uint32
	order       []uint32 // live keys, oldest first — mirrors on-disk Order

	nodesMutex sync.Mutex
	nodes      map[string]Node

	seenMutex sync.Mutex
	seen      map[string]bool

	maxBundles      int
	retryBatchSize  int
	bundlesToReturn int
}

// NewBadger opens (or creates) a durable store rooted at dir. When
// keepBetweenRestart is false, any bundles persisted by a previous run are
// discarded so the node starts with empty storage.
func NewBadger(dir string, maxBundles, retryBatchSize int, keepBetweenRestart bool) (*Badger, error) {
	badgerDir := path.Join(dir, badgerDirName)
	if err := os.MkdirAll(badgerDir, 0700); err != nil {
		return nil, err
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir

	bh, err := badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}

	b := &Badger{
		bh:             bh,
		nodes:          make(map[string]Node),
		seen:           make(map[string]bool),
		maxBundles:     maxBundles,
		retryBatchSize: retryBatchSize,
	}

	if keepBetweenRestart {
		if err := b.restore(); err != nil {
			_ = bh.Close()
			return nil, err
		}
	} else if err := b.wipe(); err != nil {
		_ = bh.Close()
		return nil, err
	}

	return b, nil
}

func (b *Badger) restore() error {
	var records []badgerRecord
	if err := b.bh.Find(&records, nil); err != nil {
		return err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Order < records[j].Order })

	for _, r := range records {
		b.order = append(b.order, r.Order)
		if r.Order+1 > b.highestUsed {
			b.highestUsed = r.Order + 1
		}
	}

	log.WithFields(log.Fields{"bundles": len(b.order)}).Info("Badger: restored persisted bundles")

	return nil
}

func (b *Badger) wipe() error {
	var records []badgerRecord
	if err := b.bh.Find(&records, nil); err != nil {
		return err
	}
	for _, r := range records {
		if err := b.bh.Delete(r.Key, badgerRecord{}); err != nil {
			return err
		}
	}
	return nil
}

func (b *Badger) AddNode(n Node) {
	b.nodesMutex.Lock()
	defer b.nodesMutex.Unlock()
	b.nodes[n.URI] = n
}

func (b *Badger) RemoveNode(uri string) {
	b.nodesMutex.Lock()
	defer b.nodesMutex.Unlock()
	delete(b.nodes, uri)
}

func (b *Badger) GetNode(uri string) Node {
	b.nodesMutex.Lock()
	defer b.nodesMutex.Unlock()

	if n, ok := b.nodes[uri]; ok {
		return n
	}
	return noneNode()
}

func (b *Badger) GetNodes() []Node {
	b.nodesMutex.Lock()
	defer b.nodesMutex.Unlock()

	out := make([]Node, 0, len(b.nodes))
	for _, n := range b.nodes {
		out = append(out, n)
	}
	return out
}

func (b *Badger) CheckSeen(id string) bool {
	b.seenMutex.Lock()
	defer b.seenMutex.Unlock()
	return b.seen[id]
}

func (b *Badger) StoreSeen(id string) {
	b.seenMutex.Lock()
	defer b.seenMutex.Unlock()
	b.seen[id] = true
}

func (b *Badger) keyFor(order uint32) string {
	return strconv.FormatUint(uint64(order), 10)
}

func (b *Badger) RemoveBundle(id string) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for i, order := range b.order {
		var r badgerRecord
		if err := b.bh.Get(b.keyFor(order), &r); err != nil {
			continue
		}
		bi, err := fromRecord(r)
		if err != nil || bi.ID() != id {
			continue
		}

		if delErr := b.bh.Delete(r.Key, badgerRecord{}); delErr != nil {
			log.WithFields(log.Fields{"error": delErr}).Warn("Badger: failed to delete bundle")
			return false
		}
		b.order = append(b.order[:i], b.order[i+1:]...)
		return true
	}
	return false
}

func (b *Badger) Delay(bi BundleInfo) []BundleInfo {
	var evicted []BundleInfo

	for b.liveCount() >= b.maxBundles {
		old, ok := b.DeleteOldest()
		if !ok {
			break
		}
		evicted = append(evicted, old)
	}

	b.mutex.Lock()
	order := b.highestUsed
	b.highestUsed++
	record := toRecord(bi, order)
	b.order = append(b.order, order)
	b.mutex.Unlock()

	if err := b.bh.Insert(record.Key, record); err != nil {
		log.WithFields(log.Fields{"error": err, "bundle": bi.ID()}).Warn("Badger: failed to persist bundle")
	}

	return evicted
}

func (b *Badger) liveCount() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.order)
}

func (b *Badger) BeginRetryCycle() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.bundlesToReturn = len(b.order)
}

func (b *Badger) GetBundlesRetry() []BundleInfo {
	var result []BundleInfo

	for i := 0; i < b.retryBatchSize; i++ {
		b.mutex.Lock()
		if b.bundlesToReturn <= 0 || len(b.order) == 0 {
			b.mutex.Unlock()
			break
		}
		order := b.order[0]
		b.order = b.order[1:]
		b.bundlesToReturn--
		b.mutex.Unlock()

		var r badgerRecord
		if err := b.bh.Get(b.keyFor(order), &r); err != nil {
			continue
		}
		if bi, err := fromRecord(r); err == nil {
			result = append(result, bi)
		}
		_ = b.bh.Delete(r.Key, badgerRecord{})
	}

	return result
}

func (b *Badger) HasBundlesToRetry() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.bundlesToReturn != 0
}

// DeleteOldest removes and returns the FIFO-oldest live bundle. Because
// keys are assigned in strictly increasing order and never reused, the
// front of the in-memory order slice is always the oldest persisted
// bundle, per this backend's flash-analogue "oldest_key" bookkeeping.
func (b *Badger) DeleteOldest() (BundleInfo, bool) {
	b.mutex.Lock()
	if len(b.order) == 0 {
		b.mutex.Unlock()
		return BundleInfo{}, false
	}
	order := b.order[0]
	b.order = b.order[1:]
	b.mutex.Unlock()

	key := b.keyFor(order)
	var r badgerRecord
	if err := b.bh.Get(key, &r); err != nil {
		return BundleInfo{}, false
	}
	_ = b.bh.Delete(key, badgerRecord{})

	bi, err := fromRecord(r)
	if err != nil {
		return BundleInfo{}, false
	}
	return bi, true
}

func (b *Badger) Close() error {
	return b.bh.Close()
}

var _ Storage = (*Badger)(nil)
