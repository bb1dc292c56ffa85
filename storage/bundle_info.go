package storage

import "github.com/dtn7/dtn7-lite/bundle"

// Constraint is a bundle's retention constraint within the BPA, as defined
// in RFC 9171 section 5 and narrowed by this node's non-fragmenting,
// non-BPSec pipeline to the three values actually reachable here.
type Constraint int

const (
	// RetentionNone marks a bundle that may be discarded: either its
	// forwarding has succeeded, or it has been handed to storage for retry
	// (storage re-asserts RetentionForwardPending on load).
	RetentionNone Constraint = iota

	// RetentionDispatchPending is held from reception until dispatching has
	// routed the bundle to local delivery and/or the forward queue.
	RetentionDispatchPending

	// RetentionForwardPending is held while the router is actively trying to
	// forward the bundle.
	RetentionForwardPending
)

func (c Constraint) String() string {
	switch c {
	case RetentionDispatchPending:
		return "dispatch-pending"
	case RetentionForwardPending:
		return "forward-pending"
	default:
		return "none"
	}
}

// BundleInfo wraps a Bundle with the routing metadata the BPA and routers
// need across its lifetime in this node, per section 3's BundleInfo.
type BundleInfo struct {
	Bundle bundle.Bundle

	Retention Constraint

	LocallyDelivered bool

	// ForwardedTo holds the peers confirmed or assumed to already have
	// received this bundle, so a router never re-offers it to them. Matches
	// the persisted wire layout, which stores full node serializations
	// rather than bare URIs.
	ForwardedTo []Node

	NumOfBroadcasts     uint32
	LastBroadcastTimeMs uint64

	// ReceivedAtMs is the node-local millisecond timestamp this bundle
	// arrived at this node (or was created, for locally originated bundles).
	ReceivedAtMs uint64
}

// NewBundleInfo wraps b for entry into the BPA pipeline.
func NewBundleInfo(b bundle.Bundle, receivedAtMs uint64) BundleInfo {
	return BundleInfo{
		Bundle:       b,
		Retention:    RetentionDispatchPending,
		ReceivedAtMs: receivedAtMs,
	}
}

// ID returns the wrapped Bundle's ID.
func (bi BundleInfo) ID() string {
	return bi.Bundle.ID()
}

// HasForwardedTo reports whether peerURI is already recorded as having
// (assumedly) received this bundle.
func (bi BundleInfo) HasForwardedTo(peerURI string) bool {
	for _, n := range bi.ForwardedTo {
		if n.URI == peerURI {
			return true
		}
	}
	return false
}

// GetForwardedTo returns the recorded Node for peerURI and whether it was
// found.
func (bi BundleInfo) GetForwardedTo(peerURI string) (Node, bool) {
	for _, n := range bi.ForwardedTo {
		if n.URI == peerURI {
			return n, true
		}
	}
	return Node{}, false
}

// AddForwardedTo appends n to ForwardedTo, replacing any existing entry for
// the same URI.
func (bi *BundleInfo) AddForwardedTo(n Node) {
	bi.RemoveForwardedTo(n.URI)
	bi.ForwardedTo = append(bi.ForwardedTo, n)
}

// RemoveForwardedTo drops the entry for peerURI from ForwardedTo, if present.
func (bi *BundleInfo) RemoveForwardedTo(peerURI string) {
	for i, n := range bi.ForwardedTo {
		if n.URI == peerURI {
			bi.ForwardedTo = append(bi.ForwardedTo[:i], bi.ForwardedTo[i+1:]...)
			return
		}
	}
}

// isOlderThan implements the "oldest" ordering rule of section 4.5: lower
// ReceivedAtMs is older; on equal ReceivedAtMs, a no-clock bundle (creation_time == 0) is never older than a clocked one;
// between two no-clock bundles, lower sequence number is older; between two
// clocked bundles, lower creation_time is older, ties broken by sequence.
func (bi BundleInfo) isOlderThan(other BundleInfo) bool {
	if bi.ReceivedAtMs != other.ReceivedAtMs {
		return bi.ReceivedAtMs < other.ReceivedAtMs
	}

	aZero := bi.Bundle.PrimaryBlock.CreationTimestamp.IsZeroTime()
	bZero := other.Bundle.PrimaryBlock.CreationTimestamp.IsZeroTime()

	if aZero != bZero {
		// A no-clock bundle is never older than a clocked one.
		return bZero
	}

	aTs := bi.Bundle.PrimaryBlock.CreationTimestamp
	bTs := other.Bundle.PrimaryBlock.CreationTimestamp
	if aTs.DtnTime() != bTs.DtnTime() {
		return aTs.DtnTime() < bTs.DtnTime()
	}
	return aTs.SequenceNumber() < bTs.SequenceNumber()
}
