package storage

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-lite/bundle"
)

// serializedEntry holds a BundleInfo with its Bundle kept as CBOR bytes
// instead of a decoded struct, trading CPU for a smaller live heap. The
// fields needed for eviction ordering and retry bookkeeping are kept
// unserialized alongside the bytes so DeleteOldest never has to decode.
type serializedEntry struct {
	bundleCbor []byte

	retention           Constraint
	locallyDelivered    bool
	forwardedTo         []Node
	numOfBroadcasts     uint32
	lastBroadcastTimeMs uint64
	receivedAtMs        uint64
}

func newSerializedEntry(bi BundleInfo) serializedEntry {
	return serializedEntry{
		bundleCbor:          bi.Bundle.ToCbor(),
		retention:           bi.Retention,
		locallyDelivered:    bi.LocallyDelivered,
		forwardedTo:         bi.ForwardedTo,
		numOfBroadcasts:     bi.NumOfBroadcasts,
		lastBroadcastTimeMs: bi.LastBroadcastTimeMs,
		receivedAtMs:        bi.ReceivedAtMs,
	}
}

func (e serializedEntry) decode() (BundleInfo, error) {
	b, err := bundle.NewBundleFromCborBytes(e.bundleCbor)
	if err != nil {
		return BundleInfo{}, err
	}

	return BundleInfo{
		Bundle:              b,
		Retention:           e.retention,
		LocallyDelivered:    e.locallyDelivered,
		ForwardedTo:         e.forwardedTo,
		NumOfBroadcasts:     e.numOfBroadcasts,
		LastBroadcastTimeMs: e.lastBroadcastTimeMs,
		ReceivedAtMs:        e.receivedAtMs,
	}, nil
}

// isOlderThan mirrors BundleInfo.isOlderThan without decoding the bundle:
// ReceivedAtMs alone is enough since it is the primary ordering key there,
// and ties within a single node's clock resolution are rare enough that
// falling back to insertion order (handled by the caller's scan) suffices.
func (e serializedEntry) isOlderThan(other serializedEntry) bool {
	return e.receivedAtMs < other.receivedAtMs
}

// MemorySerialized is a count-bounded, in-process Storage backend that keeps
// each held bundle CBOR-encoded rather than as a live Bundle struct, per
// section 4.5's note that a serialized backend trades decode cost for a
// smaller resident set on memory-constrained nodes. Eviction ordering still
// runs off the unserialized ReceivedAtMs kept alongside each entry. Capacity
// is maxBundles entries; free heap is not measured.
type MemorySerialized struct {
	nodesMutex sync.Mutex
	nodes      map[string]Node

	entriesMutex sync.Mutex
	entries      []serializedEntry

	seenMutex sync.Mutex
	seen      map[string]bool

	maxBundles      int
	retryBatchSize  int
	bundlesToReturn int
}

// NewMemorySerialized creates a MemorySerialized backend bounded to
// maxBundles stored bundles, retrying in batches of retryBatchSize.
func NewMemorySerialized(maxBundles, retryBatchSize int) *MemorySerialized {
	return &MemorySerialized{
		nodes:          make(map[string]Node),
		seen:           make(map[string]bool),
		maxBundles:     maxBundles,
		retryBatchSize: retryBatchSize,
	}
}

func (m *MemorySerialized) AddNode(n Node) {
	m.nodesMutex.Lock()
	defer m.nodesMutex.Unlock()
	m.nodes[n.URI] = n
}

func (m *MemorySerialized) RemoveNode(uri string) {
	m.nodesMutex.Lock()
	defer m.nodesMutex.Unlock()
	delete(m.nodes, uri)
}

func (m *MemorySerialized) GetNode(uri string) Node {
	m.nodesMutex.Lock()
	defer m.nodesMutex.Unlock()

	if n, ok := m.nodes[uri]; ok {
		return n
	}
	return noneNode()
}

func (m *MemorySerialized) GetNodes() []Node {
	m.nodesMutex.Lock()
	defer m.nodesMutex.Unlock()

	result := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		result = append(result, n)
	}
	return result
}

func (m *MemorySerialized) CheckSeen(id string) bool {
	m.seenMutex.Lock()
	defer m.seenMutex.Unlock()
	return m.seen[id]
}

func (m *MemorySerialized) StoreSeen(id string) {
	m.seenMutex.Lock()
	defer m.seenMutex.Unlock()
	m.seen[id] = true
}

func (m *MemorySerialized) RemoveBundle(id string) bool {
	m.entriesMutex.Lock()
	defer m.entriesMutex.Unlock()

	for i, e := range m.entries {
		bi, err := e.decode()
		if err != nil || bi.ID() != id {
			continue
		}
		m.entries = append(m.entries[:i], m.entries[i+1:]...)
		return true
	}
	return false
}

func (m *MemorySerialized) Delay(bi BundleInfo) []BundleInfo {
	var evicted []BundleInfo

	m.entriesMutex.Lock()
	for len(m.entries) >= m.maxBundles {
		m.entriesMutex.Unlock()
		if old, ok := m.DeleteOldest(); ok {
			evicted = append(evicted, old)
		} else {
			break
		}
		m.entriesMutex.Lock()
	}
	m.entries = append(m.entries, newSerializedEntry(bi))
	count := len(m.entries)
	m.entriesMutex.Unlock()

	log.WithFields(log.Fields{
		"bundle": bi.ID(),
		"stored": count,
		"max":    m.maxBundles,
	}).Debug("MemorySerialized: delayed bundle")

	return evicted
}

func (m *MemorySerialized) BeginRetryCycle() {
	m.entriesMutex.Lock()
	defer m.entriesMutex.Unlock()
	m.bundlesToReturn = len(m.entries)
}

func (m *MemorySerialized) GetBundlesRetry() []BundleInfo {
	m.entriesMutex.Lock()
	defer m.entriesMutex.Unlock()

	var result []BundleInfo
	for i := 0; i < m.retryBatchSize && m.bundlesToReturn > 0 && len(m.entries) > 0; i++ {
		e := m.entries[0]
		m.entries = m.entries[1:]
		m.bundlesToReturn--

		bi, err := e.decode()
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Warn("MemorySerialized: dropping undecodable entry")
			continue
		}
		result = append(result, bi)
	}
	return result
}

func (m *MemorySerialized) HasBundlesToRetry() bool {
	m.entriesMutex.Lock()
	defer m.entriesMutex.Unlock()
	return m.bundlesToReturn != 0
}

func (m *MemorySerialized) DeleteOldest() (BundleInfo, bool) {
	m.entriesMutex.Lock()
	defer m.entriesMutex.Unlock()

	if len(m.entries) == 0 {
		return BundleInfo{}, false
	}

	oldest := 0
	for i := 1; i < len(m.entries); i++ {
		if m.entries[i].isOlderThan(m.entries[oldest]) {
			oldest = i
		}
	}

	e := m.entries[oldest]
	m.entries = append(m.entries[:oldest], m.entries[oldest+1:]...)

	bi, err := e.decode()
	if err != nil {
		return BundleInfo{}, false
	}
	return bi, true
}

func (m *MemorySerialized) Close() error {
	return nil
}

var _ Storage = (*MemorySerialized)(nil)
