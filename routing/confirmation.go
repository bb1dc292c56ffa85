package routing

import (
	"hash/fnv"

	"github.com/dtn7/dtn7-lite/storage"
)

// bundleHash computes the reception-confirmation hash for a bundle id, used
// to key storage.Node.ReceivedHashes.
func bundleHash(bundleID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(bundleID))
	return h.Sum64()
}

// confirmationResult is the outcome of checkForwardedTo for one candidate
// peer.
type confirmationResult int

const (
	notForwarded confirmationResult = iota
	alreadyForwarded
)

// checkForwardedTo implements the epidemic reception-confirmation test,
// in the exact order resolved against the original EpidemicRouter's
// checkForwardedTo: the received-hashes test runs before, and independently
// of, ForwardedTo membership. peer is mutated in place (ReceivedHashes and
// ConfirmedReception); the caller is responsible for persisting it via
// storage.AddNode when it has been changed.
func checkForwardedTo(bi *storage.BundleInfo, peer *storage.Node) (result confirmationResult, changed bool) {
	h := bundleHash(bi.ID())

	if peer.ReceivedHashes != nil && peer.ReceivedHashes[h] {
		delete(peer.ReceivedHashes, h)
		peer.ConfirmedReception = true
		return alreadyForwarded, true
	}

	if n, ok := bi.GetForwardedTo(peer.URI); ok {
		if n.ConfirmedReception {
			return alreadyForwarded, false
		}

		bi.RemoveForwardedTo(peer.URI)
		return notForwarded, false
	}

	return notForwarded, false
}
