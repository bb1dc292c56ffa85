package bundle

import (
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"
)

// BundleID identifies a bundle by its source node, creation timestamp and,
// for a fragment, the fragment offset paired with the total data length.
// The fragmentation fields are only present on the wire if IsFragment is
// set, which the caller MUST populate before UnmarshalCbor is invoked -
// unlike CanonicalBlock's block type, BundleID has no self-describing
// discriminator to read that decision from.
type BundleID struct {
	SourceNode EndpointID
	Timestamp  CreationTimestamp

	IsFragment      bool
	FragmentOffset  uint64
	TotalDataLength uint64
}

// Len returns the amount of CBOR array elements this BundleID marshals to,
// dependent on fragmentation.
func (bid BundleID) Len() uint64 {
	const withoutFragment, withFragment = 2, 4
	if bid.IsFragment {
		return withFragment
	}
	return withoutFragment
}

func (bid BundleID) String() string {
	var bldr strings.Builder

	fmt.Fprintf(&bldr, "%v-%d-%d",
		bid.SourceNode, bid.Timestamp[0], bid.Timestamp[1])

	if bid.IsFragment {
		fmt.Fprintf(&bldr, "-%d-%d", bid.FragmentOffset, bid.TotalDataLength)
	}

	return bldr.String()
}

func (bid *BundleID) fragmentFields() []*uint64 {
	return []*uint64{&bid.FragmentOffset, &bid.TotalDataLength}
}

func (bid *BundleID) MarshalCbor(w io.Writer) error {
	if err := cboring.Marshal(&bid.SourceNode, w); err != nil {
		return fmt.Errorf("marshalling source node failed: %v", err)
	}
	if err := cboring.Marshal(&bid.Timestamp, w); err != nil {
		return fmt.Errorf("marshalling timestamp failed: %v", err)
	}

	if !bid.IsFragment {
		return nil
	}

	for _, field := range bid.fragmentFields() {
		if err := cboring.WriteUInt(*field, w); err != nil {
			return err
		}
	}

	return nil
}

func (bid *BundleID) UnmarshalCbor(r io.Reader) error {
	if err := cboring.Unmarshal(&bid.SourceNode, r); err != nil {
		return fmt.Errorf("unmarshalling source node failed: %v", err)
	}
	if err := cboring.Unmarshal(&bid.Timestamp, r); err != nil {
		return fmt.Errorf("unmarshalling timestamp failed: %v", err)
	}

	if !bid.IsFragment {
		return nil
	}

	for _, field := range bid.fragmentFields() {
		v, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		*field = v
	}

	return nil
}
