package routing

import (
	"testing"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/cla"
	"github.com/dtn7/dtn7-lite/storage"
)

type stubCLA struct {
	name        string
	addressable bool
	sendResult  bool
	sent        int
	lastSent    bundle.Bundle
}

func (s *stubCLA) Name() string      { return s.name }
func (s *stubCLA) CanAddress() bool  { return s.addressable }
func (s *stubCLA) PollNewBundles() []cla.ReceivedBundle { return nil }
func (s *stubCLA) Send(b bundle.Bundle, _ *storage.Node) bool {
	s.sent++
	s.lastSent = b
	return s.sendResult
}

func testBundle(t *testing.T) bundle.Bundle {
	t.Helper()

	b, err := bundle.Builder().
		Source("dtn://src/").
		Destination("dtn://dest/").
		CreationTimestampEpoch().
		Lifetime("10m").
		BundleAgeBlock(0).
		PayloadBlock([]byte("hi")).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestSimpleBroadcastRouterAcceptance(t *testing.T) {
	b := testBundle(t)
	bi := storage.NewBundleInfo(b, 1000)

	broadcaster := &stubCLA{name: "bcast", addressable: false, sendResult: true}

	router := &SimpleBroadcastRouter{
		LocalEID:      bundle.MustNewEndpointID("dtn://local/"),
		MinForwards:   0,
		MaxBroadcasts: 1,
	}

	out, success, reason := router.Forward(bi, nil, []cla.CLA{broadcaster}, nil, 2000)
	if !success {
		t.Fatalf("expected success, got reason %v", reason)
	}
	if out.NumOfBroadcasts != 1 {
		t.Fatalf("expected 1 broadcast, got %d", out.NumOfBroadcasts)
	}
}

func TestSimpleBroadcastRouterAddressablePeers(t *testing.T) {
	b := testBundle(t)
	bi := storage.NewBundleInfo(b, 1000)

	addr := &stubCLA{name: "addr", addressable: true, sendResult: true}

	router := &SimpleBroadcastRouter{
		LocalEID:    bundle.MustNewEndpointID("dtn://local/"),
		MinForwards: 1,
	}

	peers := []storage.Node{storage.NewNode("peer-a", "dtn://peer/")}

	out, success, _ := router.Forward(bi, []cla.CLA{addr}, nil, peers, 2000)
	if !success {
		t.Fatal("expected success once a peer accepted the bundle")
	}
	if !out.HasForwardedTo("dtn://peer/") {
		t.Fatal("expected peer to be recorded in ForwardedTo")
	}
}
