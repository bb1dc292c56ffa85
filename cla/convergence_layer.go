// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cla defines the Convergence Layer Adapter contract of section 4.6:
// a transport-agnostic way for the BPA to send bundles to a peer or to
// broadcast them, and to receive bundles either by push or by poll.
package cla

import (
	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/storage"
)

// ReceivedBundle is the non-owning tuple a CLA hands back to the BPA: a
// bundle plus the transport-level URI it arrived from. FromURI is "none"
// when the transport cannot identify its sender (section 4.6).
type ReceivedBundle struct {
	Bundle  bundle.Bundle
	FromURI string
}

// CLA is the Convergence Layer Adapter contract of section 4.6. An
// implementation must be safe for concurrent Send calls; a stalled
// transport must make Send return within a transport-defined deadline
// rather than blocking the forward-loop indefinitely (section 5).
type CLA interface {
	// Name returns a unique, human-readable identifier for this CLA, e.g.
	// "stcp://10.0.0.4:4556" or "bbc://rf95modem//dev/ttyUSB0".
	Name() string

	// CanAddress reports whether this CLA can target a specific peer. A
	// false return means Send ignores its peer argument and always
	// broadcasts.
	CanAddress() bool

	// Send transmits b, optionally to peer when CanAddress is true. It
	// returns false rather than blocking when a duty-cycle or rate bound
	// would be exceeded, or when the transport failed.
	Send(b bundle.Bundle, peer *storage.Node) bool

	// PollNewBundles returns bundles received since the last call, for
	// CLAs that do not push. A CLA that pushes (see Pusher) always
	// returns nil here.
	PollNewBundles() []ReceivedBundle
}

// Pusher is implemented by CLAs that deliver received bundles
// asynchronously (e.g. a radio ISR or a TCP accept loop) instead of being
// polled. SetReceiveFunc must be called once, before Start, by whoever
// registers the CLA with a Manager; the callback is invoked once per
// received bundle and must not block for long.
type Pusher interface {
	CLA
	SetReceiveFunc(func(ReceivedBundle))
}

// Starter is implemented by CLAs with a background task to launch, e.g. a
// listening socket or a serial read loop.
type Starter interface {
	Start() error
}

// Closer is implemented by CLAs holding resources (sockets, file
// descriptors, serial ports) that must be released on shutdown.
type Closer interface {
	Close() error
}
