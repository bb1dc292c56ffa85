// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package udpbcast implements a broadcast-only Convergence Layer Adapter
// over a UDP socket joined to a multicast group, for nodes on a shared LAN
// segment without per-peer addressing.
package udpbcast

import (
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/cla"
	"github.com/dtn7/dtn7-lite/storage"
)

// maxDatagramSize bounds a single UDP payload; bundles larger than this are
// rejected by Send rather than silently fragmented, since UDP itself
// already fragments (and drops) at the IP layer beyond the path MTU.
const maxDatagramSize = 65507

// Broadcast is a CLA sending and receiving whole bundles as single UDP
// datagrams to/from the multicast group addr, e.g. "224.0.0.23:4556".
type Broadcast struct {
	addr *net.UDPAddr
	conn *net.UDPConn

	mutex       sync.Mutex
	receiveFunc func(cla.ReceivedBundle)

	closeOnce sync.Once
}

// NewBroadcast resolves addr, expected to be a multicast group such as
// "224.0.0.23:4556", and joins it on every interface. Sending to a group a
// socket has joined needs no special permission, unlike a subnet broadcast
// address, which Go's net package cannot enable without raw socket options.
// Call Start to begin receiving.
func NewBroadcast(addr string) (*Broadcast, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udpbcast: resolving %q: %w", addr, err)
	}
	if !udpAddr.IP.IsMulticast() {
		return nil, fmt.Errorf("udpbcast: %q is not a multicast address", addr)
	}

	conn, err := net.ListenMulticastUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("udpbcast: joining %q: %w", addr, err)
	}

	if err := conn.SetWriteBuffer(maxDatagramSize); err != nil {
		log.WithFields(log.Fields{"error": err}).Debug("udpbcast: could not raise write buffer")
	}

	return &Broadcast{addr: udpAddr, conn: conn}, nil
}

func (b *Broadcast) Name() string { return fmt.Sprintf("udpbcast://%s", b.addr.String()) }

func (b *Broadcast) CanAddress() bool { return false }

func (b *Broadcast) SetReceiveFunc(f func(cla.ReceivedBundle)) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.receiveFunc = f
}

// Start launches the background read loop.
func (b *Broadcast) Start() error {
	go b.readLoop()
	return nil
}

// Send transmits b's CBOR encoding as one datagram to the multicast
// group, ignoring peer since this CLA cannot address a specific node.
func (b *Broadcast) Send(bndl bundle.Bundle, _ *storage.Node) bool {
	data := bndl.ToCbor()
	if len(data) > maxDatagramSize {
		log.WithFields(log.Fields{"cla": b.Name(), "size": len(data)}).Warn("udpbcast: bundle exceeds datagram size, dropping")
		return false
	}

	if _, err := b.conn.WriteToUDP(data, b.addr); err != nil {
		log.WithFields(log.Fields{"cla": b.Name(), "error": err}).Warn("udpbcast: send failed")
		return false
	}
	return true
}

// PollNewBundles always returns nil: Broadcast is a Pusher.
func (b *Broadcast) PollNewBundles() []cla.ReceivedBundle { return nil }

func (b *Broadcast) readLoop() {
	buf := make([]byte, maxDatagramSize)

	for {
		n, from, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			// Close causes ReadFromUDP to error; treat any error as shutdown.
			return
		}

		bndl, decodeErr := bundle.NewBundleFromCborBytes(append([]byte(nil), buf[:n]...))
		if decodeErr != nil {
			log.WithFields(log.Fields{"cla": b.Name(), "error": decodeErr, "peer": from}).Debug("udpbcast: dropping undecodable datagram")
			continue
		}

		b.mutex.Lock()
		receive := b.receiveFunc
		b.mutex.Unlock()

		if receive != nil {
			receive(cla.ReceivedBundle{Bundle: bndl, FromURI: from.String()})
		}
	}
}

func (b *Broadcast) Close() error {
	var err error
	b.closeOnce.Do(func() { err = b.conn.Close() })
	return err
}

var _ cla.Pusher = (*Broadcast)(nil)
var _ cla.Starter = (*Broadcast)(nil)
var _ cla.Closer = (*Broadcast)(nil)
