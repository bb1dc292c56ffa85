package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBadgerDelayAndRetry(t *testing.T) {
	b, err := NewBadger(t.TempDir(), 10, 5, true)
	require.NoError(t, err)
	defer b.Close()

	bi := NewBundleInfo(mustTestBundle(t, "dtn://dest/"), 7)
	require.Empty(t, b.Delay(bi))

	b.BeginRetryCycle()
	require.True(t, b.HasBundlesToRetry())

	batch := b.GetBundlesRetry()
	require.Len(t, batch, 1)
	require.Equal(t, bi.ID(), batch[0].ID())
}

func TestBadgerEvictsOldestOnCapacity(t *testing.T) {
	b, err := NewBadger(t.TempDir(), 2, 5, true)
	require.NoError(t, err)
	defer b.Close()

	first := NewBundleInfo(mustTestBundle(t, "dtn://dest/"), 1)
	second := NewBundleInfo(mustTestBundle(t, "dtn://dest/"), 2)
	third := NewBundleInfo(mustTestBundle(t, "dtn://dest/"), 3)

	b.Delay(first)
	b.Delay(second)
	evicted := b.Delay(third)

	require.Len(t, evicted, 1)
	require.EqualValues(t, 1, evicted[0].ReceivedAtMs)
}

func TestBadgerRestoresBetweenRestarts(t *testing.T) {
	dir := t.TempDir()

	b1, err := NewBadger(dir, 10, 5, true)
	require.NoError(t, err)
	bi := NewBundleInfo(mustTestBundle(t, "dtn://dest/"), 3)
	b1.Delay(bi)
	require.NoError(t, b1.Close())

	b2, err := NewBadger(dir, 10, 5, true)
	require.NoError(t, err)
	defer b2.Close()

	b2.BeginRetryCycle()
	batch := b2.GetBundlesRetry()
	require.Len(t, batch, 1)
	require.Equal(t, bi.ID(), batch[0].ID())
}

func TestBadgerDiscardsWhenNotKeptBetweenRestart(t *testing.T) {
	dir := t.TempDir()

	b1, err := NewBadger(dir, 10, 5, true)
	require.NoError(t, err)
	b1.Delay(NewBundleInfo(mustTestBundle(t, "dtn://dest/"), 3))
	require.NoError(t, b1.Close())

	b2, err := NewBadger(dir, 10, 5, false)
	require.NoError(t, err)
	defer b2.Close()

	b2.BeginRetryCycle()
	require.False(t, b2.HasBundlesToRetry())
}
