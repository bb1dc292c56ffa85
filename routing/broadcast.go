package routing

import (
	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/cla"
	"github.com/dtn7/dtn7-lite/storage"
)

// SimpleBroadcastRouter forwards a bundle to every known, not-yet-forwarded
// peer over an addressable CLA, and additionally rebroadcasts it over
// broadcast-only CLAs at most once per MsBetweenBroadcast, up to
// MaxBroadcasts times. A bundle is considered delivered once it has reached
// MinForwards distinct peers or has been broadcast MaxBroadcasts times.
type SimpleBroadcastRouter struct {
	LocalEID             bundle.EndpointID
	MinForwards          int
	MaxBroadcasts        uint32
	MsBetweenBroadcastMs uint64
}

func (r *SimpleBroadcastRouter) Forward(bi storage.BundleInfo, addressable []cla.CLA, broadcastOnly []cla.CLA, peers []storage.Node, nowMs uint64) (storage.BundleInfo, bool, ReasonCode) {
	localEID := r.LocalEID

	for _, p := range peers {
		if bi.HasForwardedTo(p.URI) {
			continue
		}

		prepared := PrepareForSend(bi.Bundle, localEID, bi.ReceivedAtMs, nowMs)

		peer := p
		for _, c := range addressable {
			if c.Send(prepared, &peer) {
				bi.AddForwardedTo(peer)
				break
			}
		}
	}

	if nowMs-bi.LastBroadcastTimeMs >= r.MsBetweenBroadcastMs || bi.LastBroadcastTimeMs == 0 {
		prepared := PrepareForSend(bi.Bundle, localEID, bi.ReceivedAtMs, nowMs)

		for _, c := range broadcastOnly {
			if c.Send(prepared, nil) {
				bi.NumOfBroadcasts++
				bi.LastBroadcastTimeMs = nowMs
			}
		}
	}

	if len(bi.ForwardedTo) >= r.MinForwards || bi.NumOfBroadcasts >= r.MaxBroadcasts {
		return bi, true, ReasonNoInformation
	}

	if bi.NumOfBroadcasts > 0 {
		return bi, false, ReasonForwardedOverUnidirectionalLink
	}

	return bi, false, ReasonNoKnownRoute
}
