package bundle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"
)

// byteReader wraps a bufio.Reader to additionally support peeking a single
// byte without consuming it, used to detect the CBOR break code terminating
// the bundle's indefinite-length array of blocks.
type byteReader struct {
	*bufio.Reader
}

func newByteReader(r io.Reader) *byteReader {
	return &byteReader{Reader: bufio.NewReader(r)}
}

func (br *byteReader) PeekByte() (byte, error) {
	b, err := br.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// cborIndefiniteArrayStart and cborBreak are the raw CBOR major-4
// indefinite-length-array start byte and the "break" stop code terminating
// it, as required for the top-level bundle encoding by section 4.1.
const (
	cborIndefiniteArrayStart byte = 0x9f
	cborBreak                byte = 0xff
)

// Bundle represents a bundle as defined in section 4.2.1. Each Bundle contains
// one primary block and multiple canonical blocks.
type Bundle struct {
	PrimaryBlock    PrimaryBlock
	CanonicalBlocks []CanonicalBlock
}

// NewBundle creates a new Bundle. The values and flags of the blocks will be
// checked and an error might be returned.
func NewBundle(primary PrimaryBlock, canonicals []CanonicalBlock) (b Bundle, err error) {
	b = MustNewBundle(primary, canonicals)
	err = b.checkValid()

	return
}

// MustNewBundle creates a new Bundle like NewBundle, but skips the validity
// check. No panic will be called!
func MustNewBundle(primary PrimaryBlock, canonicals []CanonicalBlock) Bundle {
	return Bundle{
		PrimaryBlock:    primary,
		CanonicalBlocks: canonicals,
	}
}

// forEachBlock applies the given function for each of this Bundle's blocks.
func (b *Bundle) forEachBlock(f func(block)) {
	f(&b.PrimaryBlock)
	for i := 0; i < len(b.CanonicalBlocks); i++ {
		f(&b.CanonicalBlocks[i])
	}
}

// ExtensionBlock returns this Bundle's canonical block matching the
// requested extension block type code. If no such block was found, an error
// is returned.
func (b *Bundle) ExtensionBlock(blockType uint64) (*CanonicalBlock, error) {
	for i := 0; i < len(b.CanonicalBlocks); i++ {
		cb := &b.CanonicalBlocks[i]
		if cb.BlockTypeCode() == blockType {
			return cb, nil
		}
	}

	return nil, newBundleError(fmt.Sprintf(
		"Bundle: no CanonicalBlock with block type %d was found", blockType))
}

// HasExtensionBlock reports whether a canonical block of the given type is
// present.
func (b *Bundle) HasExtensionBlock(blockType uint64) bool {
	_, err := b.ExtensionBlock(blockType)
	return err == nil
}

// PayloadBlock returns this Bundle's payload block or an error, if it does
// not exist.
func (b *Bundle) PayloadBlock() (*CanonicalBlock, error) {
	return b.ExtensionBlock(ExtBlockTypePayloadBlock)
}

// RemoveExtensionBlock removes the first canonical block matching the given
// block type, if present.
func (b *Bundle) RemoveExtensionBlock(blockType uint64) {
	for i, cb := range b.CanonicalBlocks {
		if cb.BlockTypeCode() == blockType {
			b.CanonicalBlocks = append(b.CanonicalBlocks[:i], b.CanonicalBlocks[i+1:]...)
			return
		}
	}
}

// AddExtensionBlock adds a new ExtensionBlock to this Bundle. The block
// number will be calculated and overwritten within this method.
func (b *Bundle) AddExtensionBlock(value ExtensionBlock, bcf BlockControlFlags) {
	var blockNumbers []uint64
	for _, cb := range b.CanonicalBlocks {
		blockNumbers = append(blockNumbers, cb.BlockNumber)
	}

	var blockNumber uint64 = 1
	for {
		taken := false
		for _, no := range blockNumbers {
			if blockNumber == no {
				taken = true
				break
			}
		}

		if !taken {
			break
		}
		blockNumber++
	}

	b.CanonicalBlocks = append(b.CanonicalBlocks, NewCanonicalBlock(blockNumber, bcf, value))
}

// IncreaseHopCount increments this Bundle's HopCountBlock, if present, and
// reports whether the hop limit is now exceeded.
func (b *Bundle) IncreaseHopCount() (exceeded bool) {
	cb, err := b.ExtensionBlock(ExtBlockTypeHopCountBlock)
	if err != nil {
		return false
	}

	hcb := cb.Value.(*HopCountBlock)
	return hcb.Increment()
}

// IncreaseAge increments this Bundle's BundleAgeBlock, if present, by the
// given offset in milliseconds, and returns the new age.
func (b *Bundle) IncreaseAge(offsetMs uint64) (age uint64, ok bool) {
	cb, err := b.ExtensionBlock(ExtBlockTypeBundleAgeBlock)
	if err != nil {
		return 0, false
	}

	bab := cb.Value.(*BundleAgeBlock)
	return bab.Increment(offsetMs), true
}

// SetCRCType sets the given CRCType for each block. To also calculate and set
// the CRC value, one should also call the CalculateCRC method.
func (b *Bundle) SetCRCType(crcType CRCType) {
	b.forEachBlock(func(blck block) {
		blck.SetCRCType(crcType)
	})
}

// CalculateCRC calculates and sets the CRC value for each block.
func (b *Bundle) CalculateCRC() {
	b.forEachBlock(func(blck block) {
		blck.CalculateCRC()
	})
}

// ID returns a unique identifying string for this bundle, containing the
// source node and creation timestamp. If this bundle is a fragment, the
// offset is also present.
func (b Bundle) ID() string {
	var bldr strings.Builder

	fmt.Fprintf(&bldr, "%v-%d-%d",
		b.PrimaryBlock.SourceNode,
		b.PrimaryBlock.CreationTimestamp[0],
		b.PrimaryBlock.CreationTimestamp[1])

	if pb := b.PrimaryBlock; pb.BundleControlFlags.Has(IsFragment) {
		fmt.Fprintf(&bldr, "-%d", pb.FragmentOffset)
	}

	return bldr.String()
}

func (b Bundle) String() string {
	return b.ID()
}

// CheckCRC checks the CRC value of each block and returns false if some
// value does not match. This method changes the block's CRC value temporary
// and is not thread safe.
func (b *Bundle) CheckCRC() bool {
	var flag = true

	b.forEachBlock(func(blck block) {
		if !blck.CheckCRC() {
			flag = false
		}
	})

	return flag
}

func (b Bundle) checkValid() (errs error) {
	b.forEachBlock(func(blck block) {
		if blckErr := blck.checkValid(); blckErr != nil {
			errs = multierror.Append(errs, blckErr)
		}
	})

	if b.PrimaryBlock.BundleControlFlags.Has(AdministrativeRecordPayload) ||
		b.PrimaryBlock.SourceNode == DtnNone() {
		for _, cb := range b.CanonicalBlocks {
			if cb.BlockControlFlags.Has(StatusReportBlock) {
				errs = multierror.Append(errs,
					newBundleError("Bundle: Bundle Processing Control Flags indicate that "+
						"this bundle's payload is an administrative record or the source "+
						"node is omitted, but the \"Transmit status report if block cannot "+
						"be processed\" Block Processing Control Flag was set in a "+
						"Canonical Block"))
			}
		}
	}

	var cbBlockNumbers = make(map[uint64]bool)
	var cbBlockTypes = make(map[uint64]bool)

	for _, cb := range b.CanonicalBlocks {
		if _, ok := cbBlockNumbers[cb.BlockNumber]; ok {
			errs = multierror.Append(errs,
				newBundleError(fmt.Sprintf(
					"Bundle: Block number %d occurred multiple times", cb.BlockNumber)))
		}
		cbBlockNumbers[cb.BlockNumber] = true

		switch cb.BlockTypeCode() {
		case ExtBlockTypePreviousNodeBlock, ExtBlockTypeBundleAgeBlock, ExtBlockTypeHopCountBlock:
			if _, ok := cbBlockTypes[cb.BlockTypeCode()]; ok {
				errs = multierror.Append(errs,
					newBundleError(fmt.Sprintf(
						"Bundle: Block type %d occurred multiple times", cb.BlockTypeCode())))
			}
			cbBlockTypes[cb.BlockTypeCode()] = true
		}
	}

	if b.PrimaryBlock.CreationTimestamp[0] == 0 {
		if _, ok := cbBlockTypes[ExtBlockTypeBundleAgeBlock]; !ok {
			errs = multierror.Append(errs, newBundleError(
				"Bundle: Creation Timestamp is zero, but no Bundle Age block is present"))
		}
	}

	return
}

// IsAdministrativeRecord returns if this Bundle's control flags indicate this
// has an administrative record payload.
func (b Bundle) IsAdministrativeRecord() bool {
	return b.PrimaryBlock.BundleControlFlags.Has(AdministrativeRecordPayload)
}

// Clone returns a deep copy of this Bundle suitable for per-peer mutation
// (e.g. attaching a PreviousNodeBlock) without touching the stored original.
func (b Bundle) Clone() Bundle {
	clone, err := NewBundleFromCborBytes(b.ToCbor())
	if err != nil {
		// The source bundle was already valid CBOR; re-encoding it cannot fail.
		panic(fmt.Sprintf("Bundle: Clone failed to round-trip: %v", err))
	}
	return clone
}

// WriteCbor serializes this Bundle as a CBOR indefinite-length array into the
// given Writer, as required by section 4.1: a major-4 indefinite-length
// array start byte, each block marshalled in series, then the break code.
func (b Bundle) WriteCbor(w io.Writer) error {
	if _, err := w.Write([]byte{cborIndefiniteArrayStart}); err != nil {
		return err
	}

	var marshalErr error
	b.forEachBlock(func(blck block) {
		if marshalErr != nil {
			return
		}
		marshalErr = blck.MarshalCbor(w)
	})
	if marshalErr != nil {
		return marshalErr
	}

	_, err := w.Write([]byte{cborBreak})
	return err
}

// ToCbor creates a byte array representing a CBOR indefinite-length array of
// this Bundle with all its blocks, as defined in section 4 of the Bundle
// Protocol Version 7.
func (b Bundle) ToCbor() []byte {
	var buf bytes.Buffer
	_ = b.WriteCbor(&buf)
	return buf.Bytes()
}

// NewBundleFromCborReader decodes a Bundle from its CBOR representation.
func NewBundleFromCborReader(r io.Reader) (b Bundle, err error) {
	br := newByteReader(r)

	startByte, err := br.ReadByte()
	if err != nil {
		return
	} else if startByte != cborIndefiniteArrayStart {
		err = fmt.Errorf("Bundle: expected indefinite-length array start 0x%X, got 0x%X",
			cborIndefiniteArrayStart, startByte)
		return
	}

	var pb PrimaryBlock
	if err = cboring.Unmarshal(&pb, br); err != nil {
		err = fmt.Errorf("Bundle: unmarshalling PrimaryBlock failed: %v", err)
		return
	}

	var cbs []CanonicalBlock
	for {
		peek, peekErr := br.PeekByte()
		if peekErr != nil {
			err = peekErr
			return
		}

		if peek == cborBreak {
			_, _ = br.ReadByte()
			break
		}

		var cb CanonicalBlock
		if err = cboring.Unmarshal(&cb, br); err != nil {
			err = fmt.Errorf("Bundle: unmarshalling CanonicalBlock failed: %v", err)
			return
		}
		cbs = append(cbs, cb)
	}

	b = Bundle{pb, cbs}

	if chkErr := b.checkValid(); chkErr != nil {
		err = multierror.Append(err, chkErr)
	}
	if !b.CheckCRC() {
		err = multierror.Append(err, newBundleError("Bundle: CRC check failed"))
	}

	return
}

// NewBundleFromCborBytes decodes a Bundle from the given CBOR byte string.
func NewBundleFromCborBytes(data []byte) (b Bundle, err error) {
	return NewBundleFromCborReader(bytes.NewReader(data))
}
