// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cla

import (
	"sync"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/storage"
)

// Loopback is an in-process, addressable CLA used by tests and by a single
// node wired to itself: Send on one Loopback instance is delivered directly
// to every Loopback peer registered with it via Pair, without touching a
// real transport.
type Loopback struct {
	name string

	mutex   sync.Mutex
	peers   []*Loopback
	receive func(ReceivedBundle)
}

// NewLoopback creates a named Loopback CLA. Use Pair to connect two
// instances before either one calls Send.
func NewLoopback(name string) *Loopback {
	return &Loopback{name: name}
}

// Pair connects two Loopback CLAs bidirectionally.
func Pair(a, b *Loopback) {
	a.mutex.Lock()
	a.peers = append(a.peers, b)
	a.mutex.Unlock()

	b.mutex.Lock()
	b.peers = append(b.peers, a)
	b.mutex.Unlock()
}

func (l *Loopback) Name() string { return l.name }

func (l *Loopback) CanAddress() bool { return true }

func (l *Loopback) SetReceiveFunc(f func(ReceivedBundle)) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.receive = f
}

// Send ignores peer: a Loopback delivers to every paired
// instance, matching a broadcast medium shared by exactly the paired nodes.
func (l *Loopback) Send(b bundle.Bundle, _ *storage.Node) bool {
	l.mutex.Lock()
	peers := append([]*Loopback(nil), l.peers...)
	l.mutex.Unlock()

	for _, p := range peers {
		p.mutex.Lock()
		recv := p.receive
		p.mutex.Unlock()

		if recv != nil {
			recv(ReceivedBundle{Bundle: b, FromURI: l.name})
		}
	}

	return true
}

// PollNewBundles always returns nil: Loopback is a Pusher.
func (l *Loopback) PollNewBundles() []ReceivedBundle { return nil }
