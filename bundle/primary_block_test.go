package bundle

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/dtn7/cboring"
)

func setupPrimaryBlock() PrimaryBlock {
	bcf := StatusRequestDeletion | StatusRequestDelivery | MustNotFragmented

	destination := MustNewEndpointID("dtn://foobar/")
	source := MustNewEndpointID("dtn://me/")

	ts := NewCreationTimestamp(DtnTimeEpoch, 0)
	lifetime := uint64(10 * 60 * 1000)

	return NewPrimaryBlock(bcf, destination, source, ts, lifetime)
}

func TestNewPrimaryBlockDefaults(t *testing.T) {
	pb := setupPrimaryBlock()

	if pb.HasCRC() {
		t.Error("freshly built primary block reports a CRC")
	}
	if pb.HasFragmentation() {
		t.Error("freshly built primary block reports fragmentation")
	}
	if pb.ReportTo != pb.SourceNode {
		t.Error("report-to should default to the source node")
	}
}

func TestPrimaryBlockHasCRC(t *testing.T) {
	pb := setupPrimaryBlock()
	pb.CRCType = CRC16

	if !pb.HasCRC() {
		t.Error("primary block with CRCType CRC16 should report a CRC")
	}
}

func TestPrimaryBlockHasFragmentation(t *testing.T) {
	pb := setupPrimaryBlock()
	pb.BundleControlFlags |= IsFragment

	if !pb.HasFragmentation() {
		t.Error("primary block with the IsFragment flag should report fragmentation")
	}
}

func TestPrimaryBlockCborRoundTrip(t *testing.T) {
	ep := MustNewEndpointID("dtn://test/")
	ts := NewCreationTimestamp(DtnTimeEpoch, 23)

	tests := map[string]PrimaryBlock{
		"no crc, no fragmentation": {
			Version: dtnVersion, CRCType: CRCNo,
			Destination: ep, SourceNode: ep, ReportTo: DtnNone(),
			CreationTimestamp: ts, Lifetime: 1000000,
		},
		"crc, no fragmentation": {
			Version: dtnVersion, CRCType: CRC16,
			Destination: ep, SourceNode: ep, ReportTo: DtnNone(),
			CreationTimestamp: ts, Lifetime: 1000000,
		},
		"no crc, fragmentation": {
			Version: dtnVersion, BundleControlFlags: IsFragment, CRCType: CRCNo,
			Destination: ep, SourceNode: ep, ReportTo: DtnNone(),
			CreationTimestamp: ts, Lifetime: 1000000,
			FragmentOffset: 42, TotalDataLength: 1024,
		},
		"crc, fragmentation": {
			Version: dtnVersion, BundleControlFlags: IsFragment, CRCType: CRC32,
			Destination: ep, SourceNode: ep, ReportTo: DtnNone(),
			CreationTimestamp: ts, Lifetime: 1000000,
			FragmentOffset: 42, TotalDataLength: 1024,
		},
	}

	for name, pb1 := range tests {
		buff := new(bytes.Buffer)
		if err := cboring.Marshal(&pb1, buff); err != nil {
			t.Fatalf("%s: marshal failed: %v", name, err)
		}

		var pb2 PrimaryBlock
		if err := cboring.Unmarshal(&pb2, buff); err != nil {
			t.Fatalf("%s: unmarshal failed: %v", name, err)
		}

		if !reflect.DeepEqual(pb1, pb2) {
			t.Fatalf("%s: primary blocks differ:\n%v\n%v", name, pb1, pb2)
		}
	}
}

func TestPrimaryBlockCheckValid(t *testing.T) {
	base := func() PrimaryBlock {
		return PrimaryBlock{
			Version: dtnVersion, CRCType: CRCNo,
			Destination: DtnNone(), SourceNode: DtnNone(), ReportTo: DtnNone(),
			CreationTimestamp:  NewCreationTimestamp(DtnTimeEpoch, 0),
			BundleControlFlags: MustNotFragmented,
		}
	}

	tests := map[string]struct {
		mutate func(*PrimaryBlock)
		valid  bool
	}{
		"well formed":       {func(pb *PrimaryBlock) {}, true},
		"wrong version":     {func(pb *PrimaryBlock) { pb.Version = 23 }, false},
		"reserved bundle control flag bits": {
			func(pb *PrimaryBlock) { pb.BundleControlFlags = bndlCFReservedFields }, false,
		},
		"invalid destination endpoint": {
			func(pb *PrimaryBlock) { pb.Destination = EndpointID{} }, false,
		},
		"sourceless without must-not-fragment": {
			func(pb *PrimaryBlock) { pb.BundleControlFlags = 0 }, false,
		},
		"sourceless with a status request": {
			func(pb *PrimaryBlock) { pb.BundleControlFlags = MustNotFragmented | StatusRequestReception }, false,
		},
		"everything wrong at once": {
			func(pb *PrimaryBlock) {
				pb.Version = 23
				pb.BundleControlFlags = bndlCFReservedFields
				pb.Destination = EndpointID{}
			}, false,
		},
	}

	for name, test := range tests {
		pb := base()
		test.mutate(&pb)

		if err := pb.checkValid(); (err == nil) != test.valid {
			t.Errorf("%s: expected valid=%t, got err=%v", name, test.valid, err)
		}
	}
}

func TestPrimaryBlockIsLifetimeExceeded(t *testing.T) {
	pb := setupPrimaryBlock()
	pb.CreationTimestamp = NewCreationTimestamp(DtnTimeFromTime(time.Now().Add(-time.Hour)), 0)
	pb.Lifetime = 1000

	if !pb.IsLifetimeExceeded() {
		t.Error("primary block created an hour ago with a 1s lifetime should be expired")
	}
}

func TestPrimaryBlockCheckCRCDetectsCorruption(t *testing.T) {
	pb := setupPrimaryBlock()
	pb.CRCType = CRC32
	pb.CalculateCRC()

	if !pb.CheckCRC() {
		t.Fatal("freshly calculated CRC should check out")
	}

	pb.Lifetime++
	if pb.CheckCRC() {
		t.Error("mutating the block after computing its CRC should make CheckCRC fail")
	}
}
