package agent

import (
	"testing"
	"time"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/cla"
	"github.com/dtn7/dtn7-lite/core"
	"github.com/dtn7/dtn7-lite/routing"
	"github.com/dtn7/dtn7-lite/storage"
)

func newTestBPA(t *testing.T, localURI string) *core.BPA {
	t.Helper()

	opts := core.DefaultOptions()
	opts.LocalURI = localURI

	store := storage.NewMemory(opts.MaxStoredBundles, opts.RetryBatchSize)
	manager := cla.NewManager(time.Hour)
	router := &routing.SimpleBroadcastRouter{
		LocalEID:    bundle.MustNewEndpointID(localURI),
		MinForwards: 1,
	}

	b := core.NewBPA(opts, bundle.MustNewEndpointID(localURI), store, manager, router, func() uint64 { return 1_000_000 })
	b.Run()
	t.Cleanup(b.Close)

	return b
}

func TestEndpointSendNotRegistered(t *testing.T) {
	ep := New(bundle.MustNewEndpointID("dtn://app/"))

	if _, err := ep.Send([]byte("hi"), "dtn://dest/"); err != ErrNotRegistered {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestEndpointSendAndLocalDelivery(t *testing.T) {
	bpa := newTestBPA(t, "dtn://local/")

	app := New(bundle.MustNewEndpointID("dtn://app/"))
	if err := app.Attach(bpa); err != nil {
		t.Fatal(err)
	}

	type delivery struct {
		payload     []byte
		destination string
		source      string
	}
	received := make(chan delivery, 1)
	app.SetCallback(func(payload []byte, destination, source string, _ bundle.PrimaryBlock) {
		received <- delivery{payload, destination, source}
	})

	sender := New(bundle.MustNewEndpointID("dtn://sender/"))
	if err := sender.Attach(bpa); err != nil {
		t.Fatal(err)
	}

	if _, err := sender.Send([]byte("payload"), "dtn://app/"); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-received:
		if string(got.payload) != "payload" {
			t.Fatalf("unexpected payload: %q", got.payload)
		}
		if got.destination != "dtn://app/" {
			t.Fatalf("unexpected destination: %q", got.destination)
		}
		if got.source != "dtn://sender/" {
			t.Fatalf("unexpected source: %q", got.source)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for local delivery")
	}
}

func TestEndpointPollBuffersUntilDrained(t *testing.T) {
	bpa := newTestBPA(t, "dtn://local/")

	app := New(bundle.MustNewEndpointID("dtn://app/"))
	if err := app.Attach(bpa); err != nil {
		t.Fatal(err)
	}

	sender := New(bundle.MustNewEndpointID("dtn://sender/"))
	if err := sender.Attach(bpa); err != nil {
		t.Fatal(err)
	}

	if _, err := sender.Send([]byte("one"), "dtn://app/"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	var ok bool
	for time.Now().Before(deadline) {
		if _, ok = app.Poll(); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !ok {
		t.Fatal("timed out waiting for buffered delivery")
	}

	if _, ok := app.Poll(); ok {
		t.Fatal("inbox should be drained after one Poll")
	}
}

func TestEndpointAnonymousSend(t *testing.T) {
	bpa := newTestBPA(t, "dtn://local/")

	app := New(bundle.MustNewEndpointID("dtn://app/"))
	if err := app.Attach(bpa); err != nil {
		t.Fatal(err)
	}

	bndl, err := app.Send([]byte("secret"), "dtn://dest/", SendOptions{Anonymous: true})
	if err != nil {
		t.Fatal(err)
	}
	if bndl.PrimaryBlock.SourceNode != bundle.DtnNone() {
		t.Fatalf("expected anonymous source, got %v", bndl.PrimaryBlock.SourceNode)
	}
	if bndl.PrimaryBlock.ReportTo != bundle.DtnNone() {
		t.Fatalf("expected anonymous report-to, got %v", bndl.PrimaryBlock.ReportTo)
	}
}
