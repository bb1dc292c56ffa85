// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package udpbcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/cla"
)

func mustTestBundle(t *testing.T) bundle.Bundle {
	t.Helper()

	b, err := bundle.Builder().
		Source("dtn://sender/").
		Destination("dtn://dest/").
		CreationTimestampNow().
		Lifetime("24h").
		PayloadBlock([]byte("hello")).
		Build()
	require.NoError(t, err)
	return b
}

func TestBroadcastRejectsNonMulticastAddress(t *testing.T) {
	_, err := NewBroadcast("127.0.0.1:0")
	require.Error(t, err)
}

func TestBroadcastSendAndReceive(t *testing.T) {
	sender, err := NewBroadcast("239.5.5.5:41337")
	require.NoError(t, err)
	defer sender.Close()
	require.NoError(t, sender.Start())

	receiver, err := NewBroadcast("239.5.5.5:41337")
	require.NoError(t, err)
	defer receiver.Close()

	received := make(chan cla.ReceivedBundle, 1)
	receiver.SetReceiveFunc(func(rb cla.ReceivedBundle) { received <- rb })
	require.NoError(t, receiver.Start())

	b := mustTestBundle(t)
	require.True(t, sender.Send(b, nil))

	select {
	case rb := <-received:
		require.Equal(t, b.ID(), rb.Bundle.ID())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for multicast delivery")
	}
}

func TestBroadcastRejectsOversizedBundle(t *testing.T) {
	sender, err := NewBroadcast("239.5.5.6:41338")
	require.NoError(t, err)
	defer sender.Close()

	huge, err := bundle.Builder().
		Source("dtn://sender/").
		Destination("dtn://dest/").
		CreationTimestampNow().
		Lifetime("24h").
		PayloadBlock(make([]byte, maxDatagramSize+1)).
		Build()
	require.NoError(t, err)

	require.False(t, sender.Send(huge, nil))
}
