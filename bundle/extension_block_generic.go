package bundle

import (
	"io"

	"github.com/dtn7/cboring"
)

// GenericExtensionBlock is a dummy ExtensionBlock covering canonical block
// types this node does not know how to interpret. Its block-type-specific
// data is treated as an opaque CBOR byte string, preserving whatever bytes
// were carried on the wire so an unrecognized block can still be replicated,
// discarded, or reported on by the reception pipeline without this package
// needing to understand its contents.
type GenericExtensionBlock struct {
	data     []byte
	typeCode uint64
}

// NewGenericExtensionBlock creates a new GenericExtensionBlock from some payload and a block type code.
func NewGenericExtensionBlock(data []byte, typeCode uint64) *GenericExtensionBlock {
	return &GenericExtensionBlock{
		data:     data,
		typeCode: typeCode,
	}
}

// Data returns this GenericExtensionBlock's opaque payload.
func (geb *GenericExtensionBlock) Data() []byte {
	return geb.data
}

func (geb *GenericExtensionBlock) MarshalCbor(w io.Writer) error {
	return cboring.WriteByteString(geb.data, w)
}

func (geb *GenericExtensionBlock) UnmarshalCbor(r io.Reader) error {
	data, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	geb.data = data
	return nil
}

func (geb *GenericExtensionBlock) CheckValid() error {
	// We have zero knowledge about this block.
	// Thus, who are we to judge someone else's block?
	return nil
}

func (geb *GenericExtensionBlock) BlockTypeCode() uint64 {
	return geb.typeCode
}
