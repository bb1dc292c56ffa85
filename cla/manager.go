// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cla

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Manager owns the set of registered CLAs and is the BPA's single point of
// contact for the transport layer: it starts and stops them, partitions them
// into addressable and broadcast-only for the routing package, and fans
// every received bundle, whether pushed or polled, into one callback.
type Manager struct {
	mutex sync.RWMutex
	clas  map[string]CLA

	receiveFunc func(ReceivedBundle)

	pollInterval time.Duration
	stopSyn      chan struct{}
	stopAck      chan struct{}
}

// NewManager creates an empty Manager. SetReceiveFunc must be called before
// Register for any CLA that does not push its own bundles.
func NewManager(pollInterval time.Duration) *Manager {
	m := &Manager{
		clas:         make(map[string]CLA),
		pollInterval: pollInterval,
		stopSyn:      make(chan struct{}),
		stopAck:      make(chan struct{}),
	}

	go m.pollLoop()

	return m
}

// SetReceiveFunc installs the callback invoked once per bundle received by
// any registered CLA, pushed or polled.
func (m *Manager) SetReceiveFunc(f func(ReceivedBundle)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.receiveFunc = f
}

// Register adds a CLA to the Manager, starting it if it implements Starter
// and wiring its push callback if it implements Pusher.
func (m *Manager) Register(c CLA) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.clas[c.Name()]; exists {
		return fmt.Errorf("cla: %q is already registered", c.Name())
	}

	if pusher, ok := c.(Pusher); ok {
		pusher.SetReceiveFunc(m.dispatch)
	}

	if starter, ok := c.(Starter); ok {
		if err := starter.Start(); err != nil {
			return fmt.Errorf("cla: starting %q: %w", c.Name(), err)
		}
	}

	m.clas[c.Name()] = c

	log.WithFields(log.Fields{"cla": c.Name()}).Info("Registered CLA")

	return nil
}

// Unregister removes a CLA, closing it if it implements Closer.
func (m *Manager) Unregister(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	c, exists := m.clas[name]
	if !exists {
		return fmt.Errorf("cla: %q is not registered", name)
	}

	if closer, ok := c.(Closer); ok {
		if err := closer.Close(); err != nil {
			log.WithFields(log.Fields{"cla": name, "error": err}).Warn("Error closing CLA")
		}
	}

	delete(m.clas, name)

	return nil
}

// Close stops the poll loop and closes every registered CLA.
func (m *Manager) Close() {
	close(m.stopSyn)
	<-m.stopAck

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for name, c := range m.clas {
		if closer, ok := c.(Closer); ok {
			if err := closer.Close(); err != nil {
				log.WithFields(log.Fields{"cla": name, "error": err}).Warn("Error closing CLA")
			}
		}
	}
}

// Addressable returns every registered CLA that can target a specific peer.
func (m *Manager) Addressable() []CLA {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var out []CLA
	for _, c := range m.clas {
		if c.CanAddress() {
			out = append(out, c)
		}
	}
	return out
}

// BroadcastOnly returns every registered CLA that cannot target a specific
// peer and therefore only ever broadcasts.
func (m *Manager) BroadcastOnly() []CLA {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var out []CLA
	for _, c := range m.clas {
		if !c.CanAddress() {
			out = append(out, c)
		}
	}
	return out
}

// All returns every registered CLA.
func (m *Manager) All() []CLA {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]CLA, 0, len(m.clas))
	for _, c := range m.clas {
		out = append(out, c)
	}
	return out
}

func (m *Manager) dispatch(rb ReceivedBundle) {
	m.mutex.RLock()
	f := m.receiveFunc
	m.mutex.RUnlock()

	if f != nil {
		f(rb)
	}
}

// pollLoop periodically calls PollNewBundles on every non-pushing CLA.
func (m *Manager) pollLoop() {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopSyn:
			close(m.stopAck)
			return

		case <-ticker.C:
			m.mutex.RLock()
			clas := make([]CLA, 0, len(m.clas))
			for _, c := range m.clas {
				if _, isPusher := c.(Pusher); !isPusher {
					clas = append(clas, c)
				}
			}
			m.mutex.RUnlock()

			for _, c := range clas {
				for _, rb := range c.PollNewBundles() {
					m.dispatch(rb)
				}
			}
		}
	}
}
