package bundle

import (
	"io"

	"github.com/dtn7/cboring"
)

const ExtBlockTypeBundleAgeBlock uint64 = 7

// BundleAgeBlock implements the Bundle Protocol's Bundle Age Block. The
// value is the bundle's age in milliseconds since reception or creation,
// used in place of an accurate creation timestamp.
type BundleAgeBlock uint64

func (bab *BundleAgeBlock) BlockTypeCode() uint64 {
	return ExtBlockTypeBundleAgeBlock
}

// NewBundleAgeBlock creates a new BundleAgeBlock with the given age in
// milliseconds.
func NewBundleAgeBlock(ms uint64) *BundleAgeBlock {
	bab := BundleAgeBlock(ms)
	return &bab
}

// Age returns the age in milliseconds.
func (bab *BundleAgeBlock) Age() uint64 {
	return uint64(*bab)
}

// Increment with an offset in milliseconds and return the new age.
func (bab *BundleAgeBlock) Increment(offset uint64) uint64 {
	newAge := uint64(*bab) + offset
	*bab = BundleAgeBlock(newAge)
	return newAge
}

func (bab *BundleAgeBlock) MarshalCbor(w io.Writer) error {
	return cboring.WriteUInt(uint64(*bab), w)
}

func (bab *BundleAgeBlock) UnmarshalCbor(r io.Reader) error {
	if us, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		*bab = BundleAgeBlock(us)
		return nil
	}
}

func (pb *BundleAgeBlock) CheckValid() error {
	return nil
}
