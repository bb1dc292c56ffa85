// SPDX-FileCopyrightText: 2022 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package quicl implements an addressable Convergence Layer Adapter over
// QUIC: one connection per peer, one stream per bundle. Unlike mtcp/tcpclv4
// it needs no dedicated wire handshake — QUIC's own handshake establishes
// the transport, and this node's identity is already known to a peer from
// discovery — so a stream simply carries one CBOR-encoded bundle end to
// end.
package quicl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/cla"
	"github.com/dtn7/dtn7-lite/cla/quicl/internal"
	"github.com/dtn7/dtn7-lite/storage"
)

const dialTimeout = 5 * time.Second

// CLA is an addressable QUIC transport: Send dials (and caches) one
// connection per peer identifier, and the listener side accepts inbound
// connections and hands each one's streams to the receive callback.
type CLA struct {
	listenAddr string

	mutex       sync.Mutex
	listener    quic.Listener
	conns       map[string]quic.Connection
	receiveFunc func(cla.ReceivedBundle)

	closeOnce sync.Once
}

// NewCLA creates a quicl CLA listening on listenAddr, e.g. ":4556".
func NewCLA(listenAddr string) *CLA {
	return &CLA{
		listenAddr: listenAddr,
		conns:      make(map[string]quic.Connection),
	}
}

func (c *CLA) Name() string { return fmt.Sprintf("quicl://%s", c.listenAddr) }

func (c *CLA) CanAddress() bool { return true }

func (c *CLA) SetReceiveFunc(f func(cla.ReceivedBundle)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.receiveFunc = f
}

// Start begins listening for inbound QUIC connections.
func (c *CLA) Start() error {
	tlsConf, err := internal.ListenerTLSConfig()
	if err != nil {
		return fmt.Errorf("quicl: generating TLS config: %w", err)
	}

	listener, err := quic.ListenAddr(c.listenAddr, tlsConf, internal.QUICConfig())
	if err != nil {
		return fmt.Errorf("quicl: listening on %s: %w", c.listenAddr, err)
	}

	c.mutex.Lock()
	c.listener = listener
	c.mutex.Unlock()

	go c.acceptLoop(listener)

	return nil
}

func (c *CLA) acceptLoop(listener quic.Listener) {
	for {
		conn, err := listener.Accept(context.Background())
		if err != nil {
			log.WithFields(log.Fields{"cla": c.Name(), "error": err}).Debug("quicl: listener stopped accepting")
			return
		}

		log.WithFields(log.Fields{"cla": c.Name(), "peer": conn.RemoteAddr()}).Info("quicl: accepted connection")
		go c.handleConnection(conn)
	}
}

func (c *CLA) dial(addr string) (quic.Connection, error) {
	c.mutex.Lock()
	if conn, ok := c.conns[addr]; ok {
		c.mutex.Unlock()
		return conn, nil
	}
	c.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, err := quic.DialAddrContext(ctx, addr, internal.DialerTLSConfig(), internal.QUICConfig())
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	c.conns[addr] = conn
	c.mutex.Unlock()

	go c.handleConnection(conn)

	return conn, nil
}

// Send dials (or reuses) a connection to peer.Identifier and opens a new
// stream carrying b's CBOR encoding. peer must be non-nil since this CLA
// can address.
func (c *CLA) Send(b bundle.Bundle, peer *storage.Node) bool {
	if peer == nil {
		log.WithFields(log.Fields{"cla": c.Name()}).Warn("quicl: Send called without a peer")
		return false
	}

	conn, err := c.dial(peer.Identifier)
	if err != nil {
		log.WithFields(log.Fields{"cla": c.Name(), "peer": peer.Identifier, "error": err}).Warn("quicl: dial failed")
		return false
	}

	stream, err := conn.OpenStream()
	if err != nil {
		log.WithFields(log.Fields{"cla": c.Name(), "peer": peer.Identifier, "error": err}).Warn("quicl: opening stream failed")
		c.forgetConn(peer.Identifier)
		return false
	}
	defer stream.Close()

	buff := new(bytes.Buffer)
	if err := b.WriteCbor(buff); err != nil {
		stream.CancelWrite(1)
		return false
	}

	writer := bufio.NewWriter(stream)
	if _, err := buff.WriteTo(writer); err != nil || writer.Flush() != nil {
		stream.CancelWrite(2)
		return false
	}

	return true
}

func (c *CLA) forgetConn(addr string) {
	c.mutex.Lock()
	delete(c.conns, addr)
	c.mutex.Unlock()
}

// PollNewBundles always returns nil: CLA is a Pusher.
func (c *CLA) PollNewBundles() []cla.ReceivedBundle { return nil }

func (c *CLA) handleConnection(conn quic.Connection) {
	for {
		stream, err := conn.AcceptStream(context.Background())
		if err != nil {
			log.WithFields(log.Fields{"cla": c.Name(), "peer": conn.RemoteAddr(), "error": err}).Debug("quicl: connection closed")
			return
		}
		go c.handleStream(stream, conn.RemoteAddr().String())
	}
}

func (c *CLA) handleStream(stream quic.Stream, from string) {
	reader := bufio.NewReader(stream)

	b, err := bundle.NewBundleFromCborReader(reader)
	if err != nil {
		log.WithFields(log.Fields{"cla": c.Name(), "peer": from, "error": err}).Warn("quicl: failed to read bundle")
		stream.CancelRead(2)
		return
	}

	c.mutex.Lock()
	receive := c.receiveFunc
	c.mutex.Unlock()

	if receive != nil {
		receive(cla.ReceivedBundle{Bundle: b, FromURI: from})
	}
}

func (c *CLA) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()

		for _, conn := range c.conns {
			_ = conn.CloseWithError(0, "shutting down")
		}
		if c.listener != nil {
			err = c.listener.Close()
		}
	})
	return err
}

var _ cla.Pusher = (*CLA)(nil)
var _ cla.Starter = (*CLA)(nil)
var _ cla.Closer = (*CLA)(nil)
