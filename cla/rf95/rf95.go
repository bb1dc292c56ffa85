// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package rf95 implements a broadcast-only, duty-cycle-limited Convergence
// Layer Adapter over a rf95modem LoRa radio, per section 4.6's requirement
// that a stalled or over-budget transport must fail Send rather than block
// the forward loop.
package rf95

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rf95modem-go/rf95"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/cla"
	"github.com/dtn7/dtn7-lite/storage"
)

// fragmentHeaderSize is the per-fragment overhead: a one-byte transmission
// ID, a one-byte sequence number and a one-byte total-fragment count.
const fragmentHeaderSize = 3

// Modem is a CLA transmitting whole bundles as one or more LoRa Fragments
// over a rf95modem, subject to a minimum spacing between transmissions.
// It is broadcast-only: LoRa has no addressing of its own.
type Modem struct {
	device string
	modem  *rf95.Modem

	dutyCycle   time.Duration // minimum spacing enforced between transmissions
	mutex       sync.Mutex
	lastSendAt  time.Time
	nextTransID byte

	receiveFunc func(cla.ReceivedBundle)

	reassembly map[byte]*reassemblyState
	reassMutex sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

type reassemblyState struct {
	total   byte
	parts   map[byte][]byte
	started time.Time
}

// NewModem opens a serial connection to device (e.g. "/dev/ttyUSB0") and
// wraps it as a CLA. dutyCycle is the minimum time from the end of one Send
// to the start of the next, e.g. 9*time.Second keeps one-second
// transmissions at a 10% duty cycle.
func NewModem(device string, dutyCycle time.Duration) (*Modem, error) {
	m, err := rf95.OpenSerial(device)
	if err != nil {
		return nil, fmt.Errorf("rf95: opening %s: %w", device, err)
	}

	return &Modem{
		device:     device,
		modem:      m,
		dutyCycle:  dutyCycle,
		reassembly: make(map[byte]*reassemblyState),
		closed:     make(chan struct{}),
	}, nil
}

func (m *Modem) Name() string { return fmt.Sprintf("rf95://%s", m.device) }

func (m *Modem) CanAddress() bool { return false }

func (m *Modem) SetReceiveFunc(f func(cla.ReceivedBundle)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.receiveFunc = f
}

// Start launches the background read loop that reassembles Fragments into
// bundles.
func (m *Modem) Start() error {
	go m.readLoop()
	return nil
}

// Send fragments b's CBOR encoding to the modem's MTU and transmits each
// fragment in order. It returns false without transmitting if called before
// dutyCycle has elapsed since the last transmission.
func (m *Modem) Send(b bundle.Bundle, _ *storage.Node) bool {
	m.mutex.Lock()
	if time.Since(m.lastSendAt) < m.dutyCycle {
		m.mutex.Unlock()
		log.WithFields(log.Fields{"cla": m.Name()}).Debug("rf95: duty cycle budget exhausted, dropping send")
		return false
	}
	transID := m.nextTransID
	m.nextTransID++
	m.mutex.Unlock()

	mtu, err := m.modem.Mtu()
	if err != nil || mtu <= fragmentHeaderSize {
		mtu = 64
	}
	payloadSize := mtu - fragmentHeaderSize

	data := b.ToCbor()
	total := byte((len(data) + payloadSize - 1) / payloadSize)
	if total == 0 {
		total = 1
	}

	for seq := byte(0); seq < total; seq++ {
		start := int(seq) * payloadSize
		end := start + payloadSize
		if end > len(data) {
			end = len(data)
		}

		frame := append([]byte{transID, seq, total}, data[start:end]...)
		if _, err := m.modem.Write(frame); err != nil {
			log.WithFields(log.Fields{"cla": m.Name(), "error": err}).Warn("rf95: write failed")
			return false
		}
	}

	m.mutex.Lock()
	m.lastSendAt = time.Now()
	m.mutex.Unlock()

	return true
}

// PollNewBundles always returns nil: Modem is a Pusher.
func (m *Modem) PollNewBundles() []cla.ReceivedBundle { return nil }

func (m *Modem) readLoop() {
	mtu, err := m.modem.Mtu()
	if err != nil || mtu <= 0 {
		mtu = 255
	}
	buf := make([]byte, mtu)

	for {
		select {
		case <-m.closed:
			return
		default:
		}

		n, err := m.modem.Read(buf)
		if err != nil {
			log.WithFields(log.Fields{"cla": m.Name(), "error": err}).Debug("rf95: read failed")
			continue
		}
		if n < fragmentHeaderSize {
			continue
		}

		if b, ok := m.reassemble(buf[0], buf[1], buf[2], append([]byte(nil), buf[fragmentHeaderSize:n]...)); ok {
			bndl, decodeErr := bundle.NewBundleFromCborBytes(b)
			if decodeErr != nil {
				log.WithFields(log.Fields{"cla": m.Name(), "error": decodeErr}).Warn("rf95: dropping undecodable reassembly")
				continue
			}

			m.mutex.Lock()
			receive := m.receiveFunc
			m.mutex.Unlock()

			if receive != nil {
				receive(cla.ReceivedBundle{Bundle: bndl, FromURI: "none"})
			}
		}
	}
}

// reassemble folds one fragment into its transmission's buffer, returning
// the completed payload once every sequence number up to total has arrived.
func (m *Modem) reassemble(transID, seq, total byte, payload []byte) ([]byte, bool) {
	m.reassMutex.Lock()
	defer m.reassMutex.Unlock()

	st, ok := m.reassembly[transID]
	if !ok {
		st = &reassemblyState{total: total, parts: make(map[byte][]byte), started: time.Now()}
		m.reassembly[transID] = st
	}
	st.parts[seq] = payload

	if byte(len(st.parts)) < st.total {
		return nil, false
	}

	var buf bytes.Buffer
	for i := byte(0); i < st.total; i++ {
		part, ok := st.parts[i]
		if !ok {
			return nil, false
		}
		buf.Write(part)
	}

	delete(m.reassembly, transID)
	return buf.Bytes(), true
}

func (m *Modem) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return m.modem.Close()
}

var _ cla.Pusher = (*Modem)(nil)
var _ cla.Starter = (*Modem)(nil)
var _ cla.Closer = (*Modem)(nil)
