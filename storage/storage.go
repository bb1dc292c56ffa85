// Package storage implements the bounded persistence trait of section 4.5:
// known peers, the seen-bundle-ID set, and the pending-bundle store that
// backs the forward queue's retry cycle.
package storage

// Storage is the persistence trait a BPA is built against. All methods must
// be safe for concurrent use; compound sequences such as "delay then read
// back" are not transactional across the interface.
type Storage interface {
	// AddNode inserts or overwrites a peer by its URI.
	AddNode(n Node)

	// RemoveNode removes a peer by URI. No-op if absent.
	RemoveNode(uri string)

	// GetNode returns the peer for uri, or the default uri="none" Node if
	// absent.
	GetNode(uri string) Node

	// GetNodes returns a snapshot of all known peers.
	GetNodes() []Node

	// CheckSeen reports whether id is a member of the seen set.
	CheckSeen(id string) bool

	// StoreSeen idempotently inserts id into the seen set.
	StoreSeen(id string)

	// RemoveBundle removes the bundle with the given id, reporting whether
	// it was present.
	RemoveBundle(id string) bool

	// Delay persists bi. If persisting it would exceed a capacity bound,
	// the oldest bundle(s) are evicted one at a time and returned.
	Delay(bi BundleInfo) []BundleInfo

	// BeginRetryCycle snapshots the number of bundles currently persisted;
	// subsequent GetBundlesRetry calls in this cycle are bounded by it.
	BeginRetryCycle()

	// GetBundlesRetry returns the next batch (size retryBatchSize) of
	// persisted bundles, removing each from storage.
	GetBundlesRetry() []BundleInfo

	// HasBundlesToRetry reports whether the current retry cycle has
	// bundles remaining.
	HasBundlesToRetry() bool

	// DeleteOldest removes and returns the bundle with the smallest
	// ReceivedAtMs, or false if storage is empty.
	DeleteOldest() (BundleInfo, bool)

	// Close releases any resources held by the backend (files, handles).
	Close() error
}

// oldestIndex returns the index of the oldest BundleInfo in bis, per the
// ordering rule of section 4.5, or -1 if bis is empty.
func oldestIndex(bis []BundleInfo) int {
	if len(bis) == 0 {
		return -1
	}
	oldest := 0
	for i := 1; i < len(bis); i++ {
		if bis[i].isOlderThan(bis[oldest]) {
			oldest = i
		}
	}
	return oldest
}
