package bundle

import "github.com/dtn7/cboring"

// block is an interface for blocks present in a bundle. Both PrimaryBlock
// and the CanonicalBlock have the CRC-field in common.
type block interface {
	// block extends valid, "checkValid() error" method is required
	valid

	// block extends cboring's CborMarshaler for MarshalCbor, UnmarshalCbor
	cboring.CborMarshaler

	// HasCRC returns if the CRCType indicates a CRC present for this block.
	// In this case the CRC value should become relevant.
	HasCRC() bool

	// GetCRCType returns the CRCType of this block.
	GetCRCType() CRCType

	// SetCRCType sets the CRC type.
	SetCRCType(CRCType)

	// CalculateCRC calculates and writes the CRC value for this block.
	CalculateCRC()

	// CheckCRC returns true if the stored CRC value matches the calculated
	// one, or the CRCType is CRCNo.
	CheckCRC() bool

	// getCRC returns the stored CRC value.
	getCRC() []byte

	// resetCRC zeroes the CRC value ahead of a checksum calculation.
	resetCRC()

	// setCRC overwrites the stored CRC value.
	setCRC([]byte)
}
