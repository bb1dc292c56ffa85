package storage

import "github.com/dtn7/dtn7-lite/bundle"

// NeverAges is the sentinel last-seen value for a statically-added peer,
// which is never removed by the orchestrator's peer-aging pass.
const NeverAges uint64 = ^uint64(0)

// Position is a peer's last known latitude/longitude, supplied by a
// discovery mechanism or CLA able to resolve it (e.g. a GPS-tagged
// advertisement); both components are zero when HasPosition is false.
type Position struct {
	Lat float32
	Lng float32
}

// Node is a known peer of this BPA: a transport-level address paired with
// whatever DTN-level identity information has been learned about it, plus
// the bookkeeping the epidemic router's reception-confirmation test needs.
type Node struct {
	// Identifier is the transport-level address, e.g. a MAC address or a
	// "host:port" string. This is what a CLA's Send uses to target this peer.
	Identifier string

	// URI is this peer's DTN node URI, e.g. "dtn://peer/". May coincide with
	// Identifier for CLAs whose addresses already are DTN URIs.
	URI string

	// EIDs are the endpoint IDs known to be reachable through this peer.
	EIDs []bundle.EndpointID

	// LastSeenMs is the node-local millisecond timestamp of the last
	// activity observed from this peer. NeverAges marks a statically
	// configured peer that is never aged out.
	LastSeenMs uint64

	HasPosition bool
	Position    Position

	// ReceivedHashes is the set of bundle-ID hashes this peer has advertised
	// as already received, consumed by EpidemicRouter's confirmation test.
	ReceivedHashes map[uint64]bool

	// ConfirmedReception is set once a hash in ReceivedHashes has been
	// matched against a bundle this node forwarded to the peer.
	ConfirmedReception bool
}

// NewNode creates a Node for a freshly discovered peer.
func NewNode(identifier, uri string) Node {
	return Node{
		Identifier:     identifier,
		URI:            uri,
		ReceivedHashes: make(map[uint64]bool),
	}
}

// noneNode is the default Node returned by GetNode for an unknown URI, per
// the spec's "returns default (uri=none) if absent" contract.
func noneNode() Node {
	n := NewNode("", "none")
	return n
}

// IsStatic reports whether this Node was statically added and must never be
// aged out.
func (n Node) IsStatic() bool {
	return n.LastSeenMs == NeverAges
}

// HasEID reports whether eid is among this Node's known endpoints.
func (n Node) HasEID(eid bundle.EndpointID) bool {
	for _, e := range n.EIDs {
		if e == eid {
			return true
		}
	}
	return false
}
