package storage

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Memory is a count-bounded, in-process Storage backend: bundles are kept
// in a plain slice and the oldest is found by linear scan, mirroring
// InMemoryStorage.cpp. Suitable for tests and small/short-lived nodes.
type Memory struct {
	nodesMutex sync.Mutex
	nodes      map[string]Node

	bundlesMutex sync.Mutex
	bundles      []BundleInfo

	seenMutex sync.Mutex
	seen      map[string]bool

	maxBundles      int
	retryBatchSize  int
	bundlesToReturn int
}

// NewMemory creates a Memory backend bounded to maxBundles stored bundles,
// retrying in batches of retryBatchSize.
func NewMemory(maxBundles, retryBatchSize int) *Memory {
	return &Memory{
		nodes:          make(map[string]Node),
		seen:           make(map[string]bool),
		maxBundles:     maxBundles,
		retryBatchSize: retryBatchSize,
	}
}

func (m *Memory) AddNode(n Node) {
	m.nodesMutex.Lock()
	defer m.nodesMutex.Unlock()
	m.nodes[n.URI] = n
}

func (m *Memory) RemoveNode(uri string) {
	m.nodesMutex.Lock()
	defer m.nodesMutex.Unlock()
	delete(m.nodes, uri)
}

func (m *Memory) GetNode(uri string) Node {
	m.nodesMutex.Lock()
	defer m.nodesMutex.Unlock()

	if n, ok := m.nodes[uri]; ok {
		return n
	}
	return noneNode()
}

func (m *Memory) GetNodes() []Node {
	m.nodesMutex.Lock()
	defer m.nodesMutex.Unlock()

	result := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		result = append(result, n)
	}
	return result
}

func (m *Memory) CheckSeen(id string) bool {
	m.seenMutex.Lock()
	defer m.seenMutex.Unlock()
	return m.seen[id]
}

func (m *Memory) StoreSeen(id string) {
	m.seenMutex.Lock()
	defer m.seenMutex.Unlock()
	m.seen[id] = true
}

func (m *Memory) RemoveBundle(id string) bool {
	m.bundlesMutex.Lock()
	defer m.bundlesMutex.Unlock()

	for i, bi := range m.bundles {
		if bi.ID() == id {
			m.bundles = append(m.bundles[:i], m.bundles[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Memory) Delay(bi BundleInfo) []BundleInfo {
	var evicted []BundleInfo

	m.bundlesMutex.Lock()
	for len(m.bundles) >= m.maxBundles {
		m.bundlesMutex.Unlock()
		if old, ok := m.DeleteOldest(); ok {
			evicted = append(evicted, old)
		} else {
			break
		}
		m.bundlesMutex.Lock()
	}
	m.bundles = append(m.bundles, bi)
	count := len(m.bundles)
	m.bundlesMutex.Unlock()

	log.WithFields(log.Fields{
		"bundle": bi.ID(),
		"stored": count,
		"max":    m.maxBundles,
	}).Debug("Memory: delayed bundle")

	return evicted
}

func (m *Memory) BeginRetryCycle() {
	m.bundlesMutex.Lock()
	defer m.bundlesMutex.Unlock()
	m.bundlesToReturn = len(m.bundles)
}

func (m *Memory) GetBundlesRetry() []BundleInfo {
	m.bundlesMutex.Lock()
	defer m.bundlesMutex.Unlock()

	var result []BundleInfo
	for i := 0; i < m.retryBatchSize && m.bundlesToReturn > 0 && len(m.bundles) > 0; i++ {
		result = append(result, m.bundles[0])
		m.bundles = m.bundles[1:]
		m.bundlesToReturn--
	}
	return result
}

func (m *Memory) HasBundlesToRetry() bool {
	m.bundlesMutex.Lock()
	defer m.bundlesMutex.Unlock()
	return m.bundlesToReturn != 0
}

func (m *Memory) DeleteOldest() (BundleInfo, bool) {
	m.bundlesMutex.Lock()
	defer m.bundlesMutex.Unlock()

	idx := oldestIndex(m.bundles)
	if idx < 0 {
		return BundleInfo{}, false
	}

	result := m.bundles[idx]
	m.bundles = append(m.bundles[:idx], m.bundles[idx+1:]...)
	return result, true
}

func (m *Memory) Close() error {
	return nil
}

var _ Storage = (*Memory)(nil)
