// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2020 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/schollz/peerdiscovery"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/storage"
)

// Manager broadcasts this node's Announcements over UDP multicast and folds
// every Announcement it overhears from other nodes into a Storage's peer
// set, so the router can address them without a separate configuration
// step.
type Manager struct {
	localEID bundle.EndpointID
	store    storage.Storage

	stopChan4 chan struct{}
	stopChan6 chan struct{}
}

// NewManager starts broadcasting announcements and listening for peers.
// Discovered peers are added to store as Nodes with Identifier set to
// "address:port" and LastSeenMs refreshed on every re-announcement, so the
// orchestrator's peer-aging pass eventually forgets a peer that stops
// announcing.
func NewManager(localEID bundle.EndpointID, store storage.Storage, announcements []Announcement, interval time.Duration, ipv4, ipv6 bool) (*Manager, error) {
	manager := &Manager{localEID: localEID, store: store}
	if ipv4 {
		manager.stopChan4 = make(chan struct{})
	}
	if ipv6 {
		manager.stopChan6 = make(chan struct{})
	}

	log.WithFields(log.Fields{
		"interval":      interval,
		"ipv4":          ipv4,
		"ipv6":          ipv6,
		"announcements": announcements,
	}).Info("discovery: starting Manager")

	msg, err := MarshalAnnouncements(announcements)
	if err != nil {
		return nil, err
	}

	sets := []struct {
		active           bool
		multicastAddress string
		stopChan         chan struct{}
		ipVersion        peerdiscovery.IPVersion
		notify           func(discovered peerdiscovery.Discovered)
	}{
		{ipv4, address4, manager.stopChan4, peerdiscovery.IPv4, manager.notify},
		{ipv6, address6, manager.stopChan6, peerdiscovery.IPv6, manager.notify6},
	}

	for _, set := range sets {
		if !set.active {
			continue
		}

		settings := peerdiscovery.Settings{
			Limit:            -1,
			Port:             fmt.Sprintf("%d", port),
			MulticastAddress: set.multicastAddress,
			Payload:          msg,
			Delay:            interval,
			TimeLimit:        -1,
			StopChan:         set.stopChan,
			AllowSelf:        true,
			IPVersion:        set.ipVersion,
			Notify:           set.notify,
		}

		discoverErrChan := make(chan error, 1)
		go func() {
			_, discoverErr := peerdiscovery.Discover(settings)
			discoverErrChan <- discoverErr
		}()

		select {
		case discoverErr := <-discoverErrChan:
			if discoverErr != nil {
				return nil, discoverErr
			}
		case <-time.After(time.Second):
		}
	}

	return manager, nil
}

func (manager *Manager) notify6(discovered peerdiscovery.Discovered) {
	discovered.Address = fmt.Sprintf("[%s]", discovered.Address)
	manager.notify(discovered)
}

func (manager *Manager) notify(discovered peerdiscovery.Discovered) {
	announcements, err := UnmarshalAnnouncements(discovered.Payload)
	if err != nil {
		log.WithFields(log.Fields{"error": err, "peer": discovered.Address}).Warn("discovery: failed to parse announcement")
		return
	}

	for _, announcement := range announcements {
		manager.handleDiscovery(announcement, discovered.Address)
	}
}

func (manager *Manager) handleDiscovery(announcement Announcement, addr string) {
	if announcement.Endpoint == manager.localEID {
		return
	}

	log.WithFields(log.Fields{
		"peer":    addr,
		"message": announcement,
	}).Debug("discovery: received announcement")

	identifier := fmt.Sprintf("%s:%d", addr, announcement.Port)
	uri := announcement.Endpoint.String()

	node := manager.store.GetNode(uri)
	if node.URI != uri {
		node = storage.NewNode(identifier, uri)
	} else {
		node.Identifier = identifier
	}
	node.LastSeenMs = uint64(time.Now().UnixMilli())
	if !node.HasEID(announcement.Endpoint) {
		node.EIDs = append(node.EIDs, announcement.Endpoint)
	}

	manager.store.AddNode(node)
}

// Close stops broadcasting and listening.
func (manager *Manager) Close() {
	for _, c := range []chan struct{}{manager.stopChan4, manager.stopChan6} {
		if c != nil {
			c <- struct{}{}
		}
	}
}
