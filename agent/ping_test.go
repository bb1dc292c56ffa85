package agent

import (
	"testing"
	"time"

	"github.com/dtn7/dtn7-lite/bundle"
)

func TestPingAnswersWithPong(t *testing.T) {
	bpa := newTestBPA(t, "dtn://local/")

	if _, err := NewPing(bpa, bundle.MustNewEndpointID("dtn://ping/")); err != nil {
		t.Fatal(err)
	}

	sender := New(bundle.MustNewEndpointID("dtn://sender/"))
	if err := sender.Attach(bpa); err != nil {
		t.Fatal(err)
	}

	received := make(chan []byte, 1)
	sender.SetCallback(func(payload []byte, _, _ string, _ bundle.PrimaryBlock) {
		received <- payload
	})

	if _, err := sender.Send([]byte("hello"), "dtn://ping/"); err != nil {
		t.Fatal(err)
	}

	select {
	case payload := <-received:
		if string(payload) != "pong" {
			t.Fatalf("expected pong, got %q", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pong")
	}
}
