package bundle

import (
	"bytes"
	"testing"

	"github.com/dtn7/cboring"
)

func TestNewCanonicalBlockCRC(t *testing.T) {
	cb := NewCanonicalBlock(1, 0, NewPayloadBlock([]byte("hello world")))

	if cb.HasCRC() {
		t.Errorf("freshly built canonical block reports a CRC: %v", cb)
	}

	cb.SetCRCType(CRC32)
	if !cb.HasCRC() {
		t.Errorf("canonical block set to CRC32 reports no CRC: %v", cb)
	}
}

func TestCanonicalBlockCborRoundTrip(t *testing.T) {
	ep := MustNewEndpointID("dtn://foo/bar")

	tests := []CanonicalBlock{
		NewCanonicalBlock(1, 0, NewPayloadBlock([]byte("hello world"))),
		NewCanonicalBlock(2, 0, NewPreviousNodeBlock(DtnNone())),
		NewCanonicalBlock(2, 0, NewPreviousNodeBlock(ep)),
		NewCanonicalBlock(3, 0, NewBundleAgeBlock(100000)),
		NewCanonicalBlock(4, 0, NewHopCountBlock(100)),
	}

	for _, cb := range tests {
		cb.CalculateCRC()

		buff := new(bytes.Buffer)
		if err := cboring.Marshal(&cb, buff); err != nil {
			t.Fatalf("marshal failed for %v: %v", cb, err)
		}

		var decoded CanonicalBlock
		if err := cboring.Unmarshal(&decoded, buff); err != nil {
			t.Fatalf("unmarshal failed for %v: %v", cb, err)
		}

		if decoded.BlockTypeCode() != cb.BlockTypeCode() {
			t.Errorf("block type code diverged: %d != %d", decoded.BlockTypeCode(), cb.BlockTypeCode())
		}
		if decoded.BlockNumber != cb.BlockNumber {
			t.Errorf("block number diverged: %d != %d", decoded.BlockNumber, cb.BlockNumber)
		}
	}
}

func TestCanonicalBlockCheckValid(t *testing.T) {
	tests := []struct {
		name  string
		cb    CanonicalBlock
		valid bool
	}{
		{"payload block with a number other than one", NewCanonicalBlock(23, 0, NewPayloadBlock(nil)), false},
		{"payload block with number one", NewCanonicalBlock(1, 0, NewPayloadBlock(nil)), true},
		{"reserved block control flag bits", NewCanonicalBlock(1, 0x80, NewPayloadBlock(nil)), false},
		{"invalid previous-node endpoint", NewCanonicalBlock(2, 0, NewPreviousNodeBlock(EndpointID{})), false},
		{"valid previous-node endpoint", NewCanonicalBlock(2, 0, NewPreviousNodeBlock(DtnNone())), true},
	}

	for _, test := range tests {
		if err := test.cb.checkValid(); (err == nil) != test.valid {
			t.Errorf("%s: expected valid=%t, got err=%v", test.name, test.valid, err)
		}
	}
}

func TestCanonicalBlockExtensionBlockTypes(t *testing.T) {
	tests := []struct {
		name      string
		cb        CanonicalBlock
		blockType uint64
	}{
		{"Payload", NewCanonicalBlock(1, 0, NewPayloadBlock([]byte("foobar"))), ExtBlockTypePayloadBlock},
		{"Previous Node", NewCanonicalBlock(2, 0, NewPreviousNodeBlock(DtnNone())), ExtBlockTypePreviousNodeBlock},
		{"Bundle Age", NewCanonicalBlock(3, 0, NewBundleAgeBlock(42000)), ExtBlockTypeBundleAgeBlock},
		{"Hop Count", NewCanonicalBlock(4, 0, NewHopCountBlock(42)), ExtBlockTypeHopCountBlock},
	}

	for _, test := range tests {
		if test.cb.BlockTypeCode() != test.blockType {
			t.Errorf("%s block has wrong block type: %d instead of %d",
				test.name, test.cb.BlockTypeCode(), test.blockType)
		}

		buff := new(bytes.Buffer)
		if err := cboring.Marshal(&test.cb, buff); err != nil {
			t.Fatalf("%s: marshal failed: %v", test.name, err)
		}

		var decoded CanonicalBlock
		if err := cboring.Unmarshal(&decoded, buff); err != nil {
			t.Fatalf("%s: unmarshal failed: %v", test.name, err)
		}

		if decoded.BlockTypeCode() != test.blockType {
			t.Errorf("%s: block type diverged after CBOR round trip: %d instead of %d",
				test.name, decoded.BlockTypeCode(), test.blockType)
		}
	}
}
