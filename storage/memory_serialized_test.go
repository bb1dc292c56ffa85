package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemorySerializedRoundTrip(t *testing.T) {
	m := NewMemorySerialized(10, 5)

	b := mustTestBundle(t, "dtn://dest/")
	bi := NewBundleInfo(b, 42)

	require.Empty(t, m.Delay(bi))

	m.BeginRetryCycle()
	require.True(t, m.HasBundlesToRetry())

	batch := m.GetBundlesRetry()
	require.Len(t, batch, 1)
	require.Equal(t, bi.ID(), batch[0].ID())
	require.EqualValues(t, 42, batch[0].ReceivedAtMs)

	require.False(t, m.HasBundlesToRetry())
}

func TestMemorySerializedEvictsOldestOnCapacity(t *testing.T) {
	m := NewMemorySerialized(2, 5)

	first := NewBundleInfo(mustTestBundle(t, "dtn://dest/"), 1)
	second := NewBundleInfo(mustTestBundle(t, "dtn://dest/"), 2)
	third := NewBundleInfo(mustTestBundle(t, "dtn://dest/"), 3)

	m.Delay(first)
	m.Delay(second)
	evicted := m.Delay(third)

	require.Len(t, evicted, 1)
	require.EqualValues(t, 1, evicted[0].ReceivedAtMs)
}

func TestMemorySerializedRemoveBundle(t *testing.T) {
	m := NewMemorySerialized(10, 5)

	bi := NewBundleInfo(mustTestBundle(t, "dtn://dest/"), 1)
	m.Delay(bi)

	require.True(t, m.RemoveBundle(bi.ID()))
	require.False(t, m.RemoveBundle(bi.ID()))
}
