package core

import "fmt"

// Options holds every configuration knob named in section 6 of the
// specification. Zero-value Options is not valid; use DefaultOptions and
// override individual fields.
type Options struct {
	// MaxStoredBundles is the hard cap for count-bounded storage.
	MaxStoredBundles int

	// TargetFreeHeapBytes is the configured soft floor for heap-bounded
	// storage. No storage backend reads it; every backend is bounded by
	// MaxStoredBundles alone.
	TargetFreeHeapBytes int

	// MaxRemovedBundles is the configured cap on evictions per Delay call.
	// No storage backend reads it; Delay evicts until the new bundle fits.
	MaxRemovedBundles int

	// RetryBatchSize is the number of items returned per GetBundlesRetry call.
	RetryBatchSize int

	// RetryIntervalMs is the time between retry cycles.
	RetryIntervalMs uint64

	// PollIntervalMs is the time between CLA polls.
	PollIntervalMs uint64

	// MaxPeerAgeMs is the age after which a peer is automatically evicted.
	MaxPeerAgeMs uint64

	// MinForwards is SimpleBroadcastRouter's acceptance threshold.
	MinForwards int

	// MaxBroadcasts is SimpleBroadcastRouter's broadcast cap per bundle.
	MaxBroadcasts uint32

	// MsBetweenBroadcast is the minimum broadcast spacing per bundle.
	MsBetweenBroadcast uint64

	// RequiredForwards is EpidemicRouter's acceptance threshold.
	RequiredForwards int

	// UseReceivedSet enables hash-based reception confirmation in the
	// epidemic router.
	UseReceivedSet bool

	// HasAccurateClock reports whether this node's creation_time may be
	// nonzero.
	HasAccurateClock bool

	// AttachHopCount controls whether Endpoint.Send attaches a hop-count
	// block on origination.
	AttachHopCount bool

	// HopLimit is the initial hop limit when AttachHopCount is set.
	HopLimit uint64

	// DefaultLifetimeMs is the default bundle lifetime for Endpoint.Send.
	DefaultLifetimeMs uint64

	// OverrideLifetimeMs, if nonzero, overrides the primary block's
	// lifetime during expiry checks.
	OverrideLifetimeMs uint64

	// KeepBetweenRestart persists storage's state pointers across reboot
	// (flash/durable backend only).
	KeepBetweenRestart bool

	// ReceiveQueueSize and ForwardQueueSize bound the two BPA work queues.
	ReceiveQueueSize int
	ForwardQueueSize int

	// LocalURI is this node's own transport-level URI, stamped as the
	// sender on locally originated bundles and compared against incoming
	// ReceivedBundle.FromURI to recognize loopback.
	LocalURI string
}

// DefaultOptions returns Options with the daemon's out-of-the-box defaults.
func DefaultOptions() Options {
	return Options{
		MaxStoredBundles:    1000,
		TargetFreeHeapBytes: 64 * 1024,
		MaxRemovedBundles:   16,
		RetryBatchSize:      8,
		RetryIntervalMs:     30_000,
		PollIntervalMs:      1_000,
		MaxPeerAgeMs:        300_000,
		MinForwards:         1,
		MaxBroadcasts:       3,
		MsBetweenBroadcast:  5_000,
		RequiredForwards:    2,
		UseReceivedSet:      true,
		HasAccurateClock:    true,
		AttachHopCount:      true,
		HopLimit:            64,
		DefaultLifetimeMs:   24 * 60 * 60 * 1000,
		OverrideLifetimeMs:  0,
		KeepBetweenRestart:  true,
		ReceiveQueueSize:    64,
		ForwardQueueSize:    64,
		LocalURI:            "none",
	}
}

// ConfigurationError is a fatal, synchronous setup-time error: the
// configured storage or router name is unknown. Per section 7 this aborts
// the daemon rather than being handled as a runtime condition.
type ConfigurationError struct {
	Component string
	Name      string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("core: unknown %s backend %q", e.Component, e.Name)
}
