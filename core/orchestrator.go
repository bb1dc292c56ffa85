package core

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/routing"
	"github.com/dtn7/dtn7-lite/storage"
)

// checkExpiration implements section 4.8's check_expiration: it reports
// whether bi still has a live lifetime, accounting for both the time it has
// already sat in local storage and, when the node has a synchronized clock,
// its absolute creation time.
func (b *BPA) checkExpiration(bi storage.BundleInfo) bool {
	opts := b.opt()

	lifetimeMs := bi.Bundle.PrimaryBlock.Lifetime
	if opts.OverrideLifetimeMs != 0 {
		lifetimeMs = opts.OverrideLifetimeMs
	}

	now := b.nowMs()

	if ab, err := bi.Bundle.ExtensionBlock(bundle.ExtBlockTypeBundleAgeBlock); err == nil {
		storedAge := ab.Value.(*bundle.BundleAgeBlock).Age()
		currentAge := (now - bi.ReceivedAtMs) + storedAge
		if currentAge >= lifetimeMs {
			return false
		}
	}

	if opts.HasAccurateClock && !bi.Bundle.PrimaryBlock.CreationTimestamp.IsZeroTime() {
		creationMs := uint64(bi.Bundle.PrimaryBlock.CreationTimestamp.DtnTime().Unix()) * 1000
		if creationMs+lifetimeMs < now {
			return false
		}
	}

	return true
}

// clearOldPeers removes every non-static peer whose LastSeenMs is older
// than MaxPeerAgeMs, per section 4.8's peer-aging pass.
func (b *BPA) clearOldPeers() {
	now := b.nowMs()

	for _, n := range b.store.GetNodes() {
		if n.IsStatic() {
			continue
		}
		if now-n.LastSeenMs > b.opt().MaxPeerAgeMs {
			log.WithFields(log.Fields{"peer": n.URI}).Info("Peer aged out")
			b.store.RemoveNode(n.URI)
		}
	}
}

// retryCycle implements section 4.8's retry-cycle task: periodically ages
// out stale peers and re-enqueues still-live persisted bundles onto the
// forward queue.
func (b *BPA) retryCycle() {
	ticker := time.NewTicker(time.Duration(b.opt().RetryIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopSyn:
			return

		case d := <-b.reloadRetry:
			log.WithFields(log.Fields{"interval": d}).Info("Retry interval reloaded")
			ticker.Reset(d)

		case <-ticker.C:
			b.clearOldPeers()

			b.store.BeginRetryCycle()
			for b.store.HasBundlesToRetry() {
				for _, bi := range b.store.GetBundlesRetry() {
					if !b.checkExpiration(bi) {
						b.bundleDeletion(bi, routing.ReasonLifetimeExpired)
						continue
					}

					b.forwardQueue <- bi

					time.Sleep(time.Millisecond)
				}
			}
		}
	}
}
