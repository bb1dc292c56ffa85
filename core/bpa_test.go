package core

import (
	"testing"
	"time"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/cla"
	"github.com/dtn7/dtn7-lite/routing"
	"github.com/dtn7/dtn7-lite/storage"
)

type recordingEndpoint struct {
	uri       string
	delivered chan bundle.Bundle
}

func (e *recordingEndpoint) EndpointURI() string { return e.uri }

func (e *recordingEndpoint) Deliver(b bundle.Bundle) {
	e.delivered <- b
}

func newTestBPA(opts Options) *BPA {
	store := storage.NewMemory(opts.MaxStoredBundles, opts.RetryBatchSize)
	manager := cla.NewManager(time.Hour)
	router := &routing.SimpleBroadcastRouter{
		LocalEID:    bundle.MustNewEndpointID(opts.LocalURI),
		MinForwards: 1,
	}

	return NewBPA(opts, bundle.MustNewEndpointID(opts.LocalURI), store, manager, router, func() uint64 { return 1_000_000 })
}

func TestBPALocalDelivery(t *testing.T) {
	opts := DefaultOptions()
	opts.LocalURI = "dtn://local/"

	b := newTestBPA(opts)
	b.Run()
	defer b.Close()

	ep := &recordingEndpoint{uri: "dtn://app/", delivered: make(chan bundle.Bundle, 1)}
	if err := b.RegisterEndpoint(ep); err != nil {
		t.Fatal(err)
	}

	bndl, err := bundle.Builder().
		Source("dtn://src/").
		Destination("dtn://app/").
		CreationTimestampEpoch().
		Lifetime("10m").
		BundleAgeBlock(0).
		PayloadBlock([]byte("hi")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	b.BundleReception(bndl, "none")

	select {
	case got := <-ep.delivered:
		if got.ID() != bndl.ID() {
			t.Fatalf("delivered wrong bundle: %v", got.ID())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for local delivery")
	}
}

func TestBPAHopLimitExceededDeletesBundle(t *testing.T) {
	opts := DefaultOptions()
	opts.LocalURI = "dtn://local/"

	b := newTestBPA(opts)
	b.Run()
	defer b.Close()

	bndl, err := bundle.Builder().
		Source("dtn://src/").
		Destination("dtn://dest/").
		CreationTimestampEpoch().
		Lifetime("10m").
		BundleAgeBlock(0).
		HopCountBlock(2).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	cb, err := bndl.ExtensionBlock(bundle.ExtBlockTypeHopCountBlock)
	if err != nil {
		t.Fatal(err)
	}
	hc := cb.Value.(*bundle.HopCountBlock)
	hc.Count = 2

	id := bndl.ID()
	b.BundleReception(bndl, "none")

	time.Sleep(50 * time.Millisecond)

	if b.store.CheckSeen(id) != true {
		t.Fatal("expected the bundle ID to have been marked as seen")
	}
	if b.store.RemoveBundle(id) {
		t.Fatal("expected the over-hop-limit bundle to never have been persisted")
	}
}

func TestBPADuplicateReceptionIsDropped(t *testing.T) {
	opts := DefaultOptions()
	opts.LocalURI = "dtn://local/"

	b := newTestBPA(opts)
	b.Run()
	defer b.Close()

	ep := &recordingEndpoint{uri: "dtn://app/", delivered: make(chan bundle.Bundle, 2)}
	if err := b.RegisterEndpoint(ep); err != nil {
		t.Fatal(err)
	}

	bndl, err := bundle.Builder().
		Source("dtn://src/").
		Destination("dtn://app/").
		CreationTimestampEpoch().
		Lifetime("10m").
		BundleAgeBlock(0).
		PayloadBlock([]byte("hi")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	b.BundleReception(bndl, "none")
	b.BundleReception(bndl, "none")

	select {
	case <-ep.delivered:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first delivery")
	}

	select {
	case <-ep.delivered:
		t.Fatal("expected the duplicate reception to have been dropped")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelTransmission(t *testing.T) {
	opts := DefaultOptions()
	opts.LocalURI = "dtn://local/"
	opts.ForwardQueueSize = 0

	b := newTestBPA(opts)

	bndl, err := bundle.Builder().
		Source("dtn://local/").
		Destination("dtn://dest/").
		CreationTimestampEpoch().
		Lifetime("10m").
		BundleAgeBlock(0).
		PayloadBlock([]byte("hi")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	bi := storage.NewBundleInfo(bndl, 0)
	b.store.Delay(bi)

	if !b.CancelTransmission(bndl.ID()) {
		t.Fatal("expected cancellation to find the stored bundle")
	}
	if b.CancelTransmission(bndl.ID()) {
		t.Fatal("expected a second cancellation to find nothing")
	}
}

func TestUpdateOptionsAppliesUnderLock(t *testing.T) {
	opts := DefaultOptions()
	opts.LocalURI = "dtn://local/"
	opts.MaxPeerAgeMs = 1000

	b := newTestBPA(opts)

	b.UpdateOptions(func(o *Options) {
		o.MaxPeerAgeMs = 5000
		o.RetryIntervalMs = 250
	})

	got := b.Options()
	if got.MaxPeerAgeMs != 5000 {
		t.Fatalf("expected MaxPeerAgeMs to be updated, got %d", got.MaxPeerAgeMs)
	}
	if got.RetryIntervalMs != 250 {
		t.Fatalf("expected RetryIntervalMs to be updated, got %d", got.RetryIntervalMs)
	}

	select {
	case d := <-b.reloadRetry:
		if d != 250*time.Millisecond {
			t.Fatalf("expected reload signal of 250ms, got %v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("expected UpdateOptions to signal a retry-interval reload")
	}
}
