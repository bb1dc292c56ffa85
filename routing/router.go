package routing

import (
	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/cla"
	"github.com/dtn7/dtn7-lite/storage"
)

// Router is the pluggable forward policy of section 4.4. Forward is called
// once per BundleForwarding attempt; it owns deciding which CLA(s) and peers
// to try and records its own progress in the returned BundleInfo's
// ForwardedTo/NumOfBroadcasts fields.
//
// A true success return means the bundle's retention constraint may be
// cleared. A false return carries a ReasonCode: IsNoFailure reasons ask the
// BPA to retry later via storage.Delay, anything else is a hard failure
// asking for deletion.
type Router interface {
	// Forward attempts to deliver bi.Bundle to its destination's next hop,
	// given the currently registered CLAs and known peers.
	Forward(bi storage.BundleInfo, addressable []cla.CLA, broadcastOnly []cla.CLA, peers []storage.Node, nowMs uint64) (storage.BundleInfo, bool, ReasonCode)
}

// PrepareForSend produces the per-attempt clone of b that is actually handed
// to a CLA: a deep copy with its previous-node block pointed at localEID, its
// hop-count block (if any) incremented, and its bundle-age block advanced by
// the time spent resident at this node, per section 4.4's "prepare for
// transmission" step. localEID is this node's own URI; a zero-value Bundle
// age or hop-count block is left untouched when absent.
//
// The re-attached previous-node block carries no block control flags: a node
// that does not understand block type 6 would otherwise have this whole
// bundle deleted out from under it, which previous-node's advisory role does
// not warrant.
func PrepareForSend(b bundle.Bundle, localEID bundle.EndpointID, receivedAtMs, nowMs uint64) bundle.Bundle {
	out := b.Clone()

	out.RemoveExtensionBlock(bundle.ExtBlockTypePreviousNodeBlock)
	out.AddExtensionBlock(bundle.NewPreviousNodeBlock(localEID), 0)

	out.IncreaseHopCount()

	if nowMs > receivedAtMs {
		out.IncreaseAge(nowMs - receivedAtMs)
	}

	return out
}
