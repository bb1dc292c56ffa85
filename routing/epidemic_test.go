package routing

import (
	"testing"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/cla"
	"github.com/dtn7/dtn7-lite/storage"
)

func TestEpidemicRouterConfirmation(t *testing.T) {
	b := testBundle(t)
	bi := storage.NewBundleInfo(b, 1000)

	addr := &stubCLA{name: "addr", addressable: true, sendResult: true}

	router := &EpidemicRouter{
		LocalEID:         bundle.MustNewEndpointID("dtn://local/"),
		RequiredForwards: 2,
		UseReceivedSet:   true,
	}

	peerA := storage.NewNode("a", "dtn://a/")
	peerB := storage.NewNode("b", "dtn://b/")

	out, success, _ := router.Forward(bi, []cla.CLA{addr}, nil, []storage.Node{peerA, peerB}, 2000)
	if !success {
		t.Fatal("expected both peers to be forwarded to")
	}
	if len(out.ForwardedTo) != 2 {
		t.Fatalf("expected 2 forwarded peers, got %d", len(out.ForwardedTo))
	}

	// A advertises having received the bundle; B does not. The retransport
	// to B is made to fail so the removal-then-resend of B is observable.
	h := bundleHash(out.ID())
	peerA.ReceivedHashes[h] = true
	addr.sendResult = false

	retry, success2, _ := router.Forward(out, []cla.CLA{addr}, nil, []storage.Node{peerA, peerB}, 3000)
	if success2 {
		t.Fatal("expected failure once B's resend does not succeed")
	}

	if !retry.HasForwardedTo("dtn://a/") {
		t.Fatal("expected confirmed peer A to remain in ForwardedTo")
	}
	if retry.HasForwardedTo("dtn://b/") {
		t.Fatal("expected unconfirmed peer B to have been removed from ForwardedTo and not resent")
	}
}

func TestEpidemicRouterIncrementsHopCount(t *testing.T) {
	b, err := bundle.Builder().
		Source("dtn://src/").
		Destination("dtn://dest/").
		CreationTimestampEpoch().
		Lifetime("10m").
		BundleAgeBlock(0).
		HopCountBlock(5).
		PayloadBlock([]byte("hi")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	receivedHC, err := b.ExtensionBlock(bundle.ExtBlockTypeHopCountBlock)
	if err != nil {
		t.Fatal(err)
	}
	receivedCount := receivedHC.Value.(*bundle.HopCountBlock).Count

	bi := storage.NewBundleInfo(b, 1000)
	addr := &stubCLA{name: "addr", addressable: true, sendResult: true}

	router := &EpidemicRouter{
		LocalEID:         bundle.MustNewEndpointID("dtn://local/"),
		RequiredForwards: 1,
	}

	_, success, _ := router.Forward(bi, []cla.CLA{addr}, nil, []storage.Node{storage.NewNode("a", "dtn://a/")}, 2000)
	if !success {
		t.Fatal("expected forward to succeed")
	}

	sentHC, err := addr.lastSent.ExtensionBlock(bundle.ExtBlockTypeHopCountBlock)
	if err != nil {
		t.Fatal(err)
	}
	if got := sentHC.Value.(*bundle.HopCountBlock).Count; got != receivedCount+1 {
		t.Fatalf("expected transmitted hop count %d, got %d", receivedCount+1, got)
	}
}

func TestEpidemicRouterNoPeers(t *testing.T) {
	b := testBundle(t)
	bi := storage.NewBundleInfo(b, 1000)

	router := &EpidemicRouter{RequiredForwards: 1}

	_, success, reason := router.Forward(bi, nil, nil, nil, 2000)
	if success {
		t.Fatal("expected failure with no known peers")
	}
	if reason != ReasonNoTimelyContact {
		t.Fatalf("expected ReasonNoTimelyContact, got %v", reason)
	}
}
