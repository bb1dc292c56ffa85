package storage

// Dummy is a no-op Storage backend for send-only nodes that never need to
// hold a bundle past its immediate forwarding attempt: Delay reports every
// bundle as immediately evicted and no state is kept across calls other
// than the seen-ID and peer sets, which are cheap enough to keep regardless.
type Dummy struct {
	nodes map[string]Node
	seen  map[string]bool
}

// NewDummy creates a Dummy backend.
func NewDummy() *Dummy {
	return &Dummy{
		nodes: make(map[string]Node),
		seen:  make(map[string]bool),
	}
}

func (d *Dummy) AddNode(n Node) {
	d.nodes[n.URI] = n
}

func (d *Dummy) RemoveNode(uri string) {
	delete(d.nodes, uri)
}

func (d *Dummy) GetNode(uri string) Node {
	if n, ok := d.nodes[uri]; ok {
		return n
	}
	return noneNode()
}

func (d *Dummy) GetNodes() []Node {
	result := make([]Node, 0, len(d.nodes))
	for _, n := range d.nodes {
		result = append(result, n)
	}
	return result
}

func (d *Dummy) CheckSeen(id string) bool {
	return d.seen[id]
}

func (d *Dummy) StoreSeen(id string) {
	d.seen[id] = true
}

func (d *Dummy) RemoveBundle(string) bool {
	return false
}

// Delay never retains bi: it is reported as evicted on the spot, so callers
// relying on eviction notifications to run cleanup still see one.
func (d *Dummy) Delay(bi BundleInfo) []BundleInfo {
	return []BundleInfo{bi}
}

func (d *Dummy) BeginRetryCycle() {}

func (d *Dummy) GetBundlesRetry() []BundleInfo {
	return nil
}

func (d *Dummy) HasBundlesToRetry() bool {
	return false
}

func (d *Dummy) DeleteOldest() (BundleInfo, bool) {
	return BundleInfo{}, false
}

func (d *Dummy) Close() error {
	return nil
}

var _ Storage = (*Dummy)(nil)
