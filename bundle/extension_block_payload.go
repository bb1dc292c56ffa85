package bundle

import (
	"io"

	"github.com/dtn7/cboring"
)

// ExtBlockTypePayloadBlock is the payload block's block type code, fixed at
// 1 by section 4.3.
const ExtBlockTypePayloadBlock uint64 = 1

// PayloadBlock implements the Bundle Protocol's Payload Block; the raw
// application data unit carried by a Bundle.
type PayloadBlock []byte

// NewPayloadBlock wraps data as a PayloadBlock. data is not copied.
func NewPayloadBlock(data []byte) *PayloadBlock {
	pb := PayloadBlock(data)
	return &pb
}

func (pb *PayloadBlock) BlockTypeCode() uint64 {
	return ExtBlockTypePayloadBlock
}

// Data returns this PayloadBlock's payload.
func (pb *PayloadBlock) Data() []byte {
	return *pb
}

// Len returns the payload's length in bytes.
func (pb *PayloadBlock) Len() int {
	return len(*pb)
}

func (pb *PayloadBlock) CheckValid() error {
	return nil
}

func (pb *PayloadBlock) MarshalCbor(w io.Writer) error {
	return cboring.WriteByteString(*pb, w)
}

func (pb *PayloadBlock) UnmarshalCbor(r io.Reader) error {
	pl, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}

	*pb = pl
	return nil
}
