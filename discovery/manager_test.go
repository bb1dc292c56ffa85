// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2020 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/storage"
)

func TestManagerHandleDiscoveryAddsNode(t *testing.T) {
	store := storage.NewMemory(16, 4)

	manager := &Manager{
		localEID: bundle.MustNewEndpointID("dtn://local/"),
		store:    store,
	}

	peer := bundle.MustNewEndpointID("dtn://peer/")
	manager.handleDiscovery(Announcement{Endpoint: peer, CLAName: "quicl", Port: 4556}, "192.0.2.10")

	node := store.GetNode("dtn://peer/")
	require.Equal(t, "192.0.2.10:4556", node.Identifier)
	require.True(t, node.HasEID(peer))
	require.NotZero(t, node.LastSeenMs)
}

func TestManagerHandleDiscoveryIgnoresSelf(t *testing.T) {
	store := storage.NewMemory(16, 4)
	local := bundle.MustNewEndpointID("dtn://local/")

	manager := &Manager{localEID: local, store: store}
	manager.handleDiscovery(Announcement{Endpoint: local, CLAName: "quicl", Port: 4556}, "192.0.2.10")

	require.Equal(t, "none", store.GetNode("dtn://local/").URI)
}

func TestManagerHandleDiscoveryRefreshesLastSeen(t *testing.T) {
	store := storage.NewMemory(16, 4)
	manager := &Manager{localEID: bundle.MustNewEndpointID("dtn://local/"), store: store}
	peer := bundle.MustNewEndpointID("dtn://peer/")

	manager.handleDiscovery(Announcement{Endpoint: peer, CLAName: "quicl", Port: 1}, "192.0.2.10")
	first := store.GetNode("dtn://peer/").LastSeenMs

	time.Sleep(2 * time.Millisecond)
	manager.handleDiscovery(Announcement{Endpoint: peer, CLAName: "quicl", Port: 1}, "192.0.2.10")
	second := store.GetNode("dtn://peer/").LastSeenMs

	require.GreaterOrEqual(t, second, first)
}
