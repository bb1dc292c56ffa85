package routing

import (
	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/cla"
	"github.com/dtn7/dtn7-lite/storage"
)

// EpidemicRouter floods a bundle to every peer not yet confirmed to have
// received it, optionally using the received-hashes reception-confirmation
// protocol to retract an assumed delivery that a peer's own advertisement
// later contradicts. A bundle is delivered once it has reached
// RequiredForwards distinct peers.
type EpidemicRouter struct {
	LocalEID         bundle.EndpointID
	RequiredForwards int
	UseReceivedSet   bool

	// ConfirmedPeers receives the peers whose Node entry changed during a
	// confirmation test and must be persisted by the caller.
	ConfirmedPeers []storage.Node
}

func (r *EpidemicRouter) Forward(bi storage.BundleInfo, addressable []cla.CLA, broadcastOnly []cla.CLA, peers []storage.Node, nowMs uint64) (storage.BundleInfo, bool, ReasonCode) {
	localEID := r.LocalEID

	var toForward []storage.Node
	for _, p := range peers {
		peer := p

		if r.UseReceivedSet {
			result, changed := checkForwardedTo(&bi, &peer)
			if changed {
				r.ConfirmedPeers = append(r.ConfirmedPeers, peer)
			}
			if result == alreadyForwarded {
				continue
			}
		} else if bi.HasForwardedTo(peer.URI) {
			continue
		}

		toForward = append(toForward, peer)
	}

	if len(toForward) == 0 {
		return bi, false, ReasonNoTimelyContact
	}

	prepared := PrepareForSend(bi.Bundle, localEID, bi.ReceivedAtMs, nowMs)

	for _, c := range broadcastOnly {
		if c.Send(prepared, nil) {
			bi.NumOfBroadcasts++
			for _, p := range toForward {
				bi.AddForwardedTo(p)
			}
		}
	}

	for _, c := range addressable {
		for _, p := range toForward {
			peer := p
			if bi.HasForwardedTo(peer.URI) {
				continue
			}
			if c.Send(prepared, &peer) {
				bi.AddForwardedTo(peer)
			}
		}
	}

	if len(bi.ForwardedTo) >= r.RequiredForwards {
		return bi, true, ReasonNoInformation
	}

	if bi.NumOfBroadcasts > 0 {
		return bi, false, ReasonForwardedOverUnidirectionalLink
	}

	return bi, false, ReasonNoTimelyContact
}
