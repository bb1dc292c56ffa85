package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDummyDelayNeverRetains(t *testing.T) {
	d := NewDummy()
	b := mustTestBundle(t, "dtn://dest/")
	bi := NewBundleInfo(b, 1)

	evicted := d.Delay(bi)
	require.Len(t, evicted, 1)
	require.Equal(t, bi.ID(), evicted[0].ID())

	d.BeginRetryCycle()
	require.False(t, d.HasBundlesToRetry())
	require.Nil(t, d.GetBundlesRetry())

	_, ok := d.DeleteOldest()
	require.False(t, ok)
}

func TestDummyNodesAndSeen(t *testing.T) {
	d := NewDummy()

	n := NewNode("aa:bb", "dtn://peer/")
	d.AddNode(n)
	require.Equal(t, "aa:bb", d.GetNode("dtn://peer/").Identifier)
	require.Len(t, d.GetNodes(), 1)

	d.RemoveNode("dtn://peer/")
	require.Equal(t, "none", d.GetNode("dtn://peer/").URI)

	require.False(t, d.CheckSeen("id-1"))
	d.StoreSeen("id-1")
	require.True(t, d.CheckSeen("id-1"))
}
