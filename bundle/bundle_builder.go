package bundle

import (
	"fmt"
	"time"
)

// BundleBuilder provides a fluent interface for assembling a Bundle one
// block at a time, mirroring the shape of the construction helpers in
// section 4.2 (PreviousNodeBlock/BundleAgeBlock/HopCountBlock/PayloadBlock).
type BundleBuilder struct {
	err error

	primary       PrimaryBlock
	canonicals    []CanonicalBlock
	usedBlockNums map[uint64]bool
	crcType       CRCType
}

// Builder creates a new, empty BundleBuilder.
func Builder() *BundleBuilder {
	return &BundleBuilder{
		primary:       PrimaryBlock{Version: dtnVersion},
		usedBlockNums: map[uint64]bool{1: true},
		crcType:       CRCNo,
	}
}

// Error returns the first error encountered while building, if any.
func (bldr *BundleBuilder) Error() error {
	return bldr.err
}

// CRC sets the CRC type applied to every block on Build.
func (bldr *BundleBuilder) CRC(crcType CRCType) *BundleBuilder {
	if bldr.err == nil {
		bldr.crcType = crcType
	}
	return bldr
}

// Build assembles the final Bundle, validating it before returning.
func (bldr *BundleBuilder) Build() (bndl Bundle, err error) {
	if bldr.err != nil {
		err = bldr.err
		return
	}

	if bldr.primary.ReportTo == (EndpointID{}) {
		bldr.primary.ReportTo = bldr.primary.SourceNode
	}

	if bldr.primary.SourceNode == (EndpointID{}) || bldr.primary.Destination == (EndpointID{}) {
		err = fmt.Errorf("BundleBuilder: both Source and Destination must be set")
		return
	}

	bndl, err = NewBundle(bldr.primary, bldr.canonicals)
	if err == nil {
		bndl.SetCRCType(bldr.crcType)
		bndl.CalculateCRC()
	}

	return
}

// nextBlockNumber returns the lowest unused block number >= 2.
func (bldr *BundleBuilder) nextBlockNumber() uint64 {
	var n uint64 = 2
	for bldr.usedBlockNums[n] {
		n++
	}
	bldr.usedBlockNums[n] = true
	return n
}

// bldrParseEndpoint returns an EndpointID for a given EndpointID or a string,
// representing an endpoint identifier as an URI.
func bldrParseEndpoint(eid interface{}) (e EndpointID, err error) {
	switch v := eid.(type) {
	case EndpointID:
		e = v
	case string:
		e, err = NewEndpointID(v)
	default:
		err = fmt.Errorf("%T is neither an EndpointID nor a string", eid)
	}
	return
}

// bldrParseLifetime returns a millisecond count for a given integer or a
// duration string, which will be parsed.
func bldrParseLifetime(duration interface{}) (ms uint64, err error) {
	switch v := duration.(type) {
	case uint64:
		ms = v
	case uint:
		ms = uint64(v)
	case int:
		if v <= 0 {
			err = fmt.Errorf("Lifetime's duration %d <= 0", v)
		} else {
			ms = uint64(v)
		}
	case string:
		dur, durErr := time.ParseDuration(v)
		if durErr != nil {
			err = durErr
		} else if dur <= 0 {
			err = fmt.Errorf("Lifetime's duration %d <= 0", dur)
		} else {
			ms = uint64(dur.Milliseconds())
		}
	default:
		err = fmt.Errorf("%T is neither an int nor a string for a Duration", duration)
	}
	return
}

// Destination sets the bundle's destination EID.
func (bldr *BundleBuilder) Destination(eid interface{}) *BundleBuilder {
	if bldr.err != nil {
		return bldr
	}
	if e, err := bldrParseEndpoint(eid); err != nil {
		bldr.err = err
	} else {
		bldr.primary.Destination = e
	}
	return bldr
}

// Source sets the bundle's source EID.
func (bldr *BundleBuilder) Source(eid interface{}) *BundleBuilder {
	if bldr.err != nil {
		return bldr
	}
	if e, err := bldrParseEndpoint(eid); err != nil {
		bldr.err = err
	} else {
		bldr.primary.SourceNode = e
	}
	return bldr
}

// ReportTo sets the bundle's report-to EID; defaults to the source if unset.
func (bldr *BundleBuilder) ReportTo(eid interface{}) *BundleBuilder {
	if bldr.err != nil {
		return bldr
	}
	if e, err := bldrParseEndpoint(eid); err != nil {
		bldr.err = err
	} else {
		bldr.primary.ReportTo = e
	}
	return bldr
}

func (bldr *BundleBuilder) creationTimestamp(t DtnTime, seq uint64) *BundleBuilder {
	if bldr.err == nil {
		bldr.primary.CreationTimestamp = NewCreationTimestamp(t, seq)
	}
	return bldr
}

// CreationTimestampEpoch sets a zero creation time, signalling the lack of a
// synchronized clock. A BundleAgeBlock must also be attached in this case.
func (bldr *BundleBuilder) CreationTimestampEpoch() *BundleBuilder {
	return bldr.creationTimestamp(DtnTimeEpoch, 0)
}

// CreationTimestampNow sets the creation time to the current time.
func (bldr *BundleBuilder) CreationTimestampNow() *BundleBuilder {
	return bldr.creationTimestamp(DtnTimeNow(), 0)
}

// CreationTimestampTime sets the creation time to a specific time.Time.
func (bldr *BundleBuilder) CreationTimestampTime(t time.Time) *BundleBuilder {
	return bldr.creationTimestamp(DtnTimeFromTime(t), 0)
}

// Sequence overrides the creation timestamp's sequence number, e.g. as
// assigned by an IdKeeper for bundles sharing the same creation time.
func (bldr *BundleBuilder) Sequence(seq uint64) *BundleBuilder {
	if bldr.err == nil {
		bldr.primary.CreationTimestamp[1] = seq
	}
	return bldr
}

// Lifetime sets the bundle's lifetime, given in milliseconds or as a
// duration string (e.g. "24h").
func (bldr *BundleBuilder) Lifetime(duration interface{}) *BundleBuilder {
	if bldr.err != nil {
		return bldr
	}
	if ms, msErr := bldrParseLifetime(duration); msErr != nil {
		bldr.err = msErr
	} else {
		bldr.primary.Lifetime = ms
	}
	return bldr
}

// BundleCtrlFlags sets the bundle processing control flags.
func (bldr *BundleBuilder) BundleCtrlFlags(bcf BundleControlFlags) *BundleBuilder {
	if bldr.err == nil {
		bldr.primary.BundleControlFlags = bcf
	}
	return bldr
}

// canonical appends a CanonicalBlock wrapping value, assigning it number 1
// if it is a PayloadBlock, otherwise the lowest unused number >= 2.
func (bldr *BundleBuilder) canonical(value ExtensionBlock, bcf BlockControlFlags) *BundleBuilder {
	if bldr.err != nil {
		return bldr
	}

	var no uint64 = 1
	if value.BlockTypeCode() != ExtBlockTypePayloadBlock {
		no = bldr.nextBlockNumber()
	}

	bldr.canonicals = append(bldr.canonicals, NewCanonicalBlock(no, bcf, value))
	return bldr
}

// PayloadBlock attaches the bundle's payload.
func (bldr *BundleBuilder) PayloadBlock(data []byte, bcf ...BlockControlFlags) *BundleBuilder {
	return bldr.canonical(NewPayloadBlock(data), firstOrZero(bcf))
}

// PreviousNodeBlock attaches a PreviousNodeBlock naming prev.
func (bldr *BundleBuilder) PreviousNodeBlock(prev interface{}, bcf ...BlockControlFlags) *BundleBuilder {
	if bldr.err != nil {
		return bldr
	}
	eid, err := bldrParseEndpoint(prev)
	if err != nil {
		bldr.err = err
		return bldr
	}
	return bldr.canonical(NewPreviousNodeBlock(eid), firstOrZero(bcf))
}

// BundleAgeBlock attaches a BundleAgeBlock with the given age in
// milliseconds, or a duration string.
func (bldr *BundleBuilder) BundleAgeBlock(age interface{}, bcf ...BlockControlFlags) *BundleBuilder {
	if bldr.err != nil {
		return bldr
	}
	if v, isInt := age.(int); isInt && v == 0 {
		return bldr.canonical(NewBundleAgeBlock(0), firstOrZero(bcf))
	}
	ms, err := bldrParseLifetime(age)
	if err != nil {
		bldr.err = err
		return bldr
	}
	return bldr.canonical(NewBundleAgeBlock(ms), firstOrZero(bcf))
}

// HopCountBlock attaches a HopCountBlock with the given hop limit.
func (bldr *BundleBuilder) HopCountBlock(limit int, bcf ...BlockControlFlags) *BundleBuilder {
	if bldr.err != nil {
		return bldr
	}
	if limit < 0 {
		bldr.err = fmt.Errorf("HopCountBlock: limit must be >= 0")
		return bldr
	}
	return bldr.canonical(NewHopCountBlock(uint64(limit)), firstOrZero(bcf))
}

// Canonical attaches an arbitrary ExtensionBlock, for extension blocks this
// package does not provide a dedicated helper for.
func (bldr *BundleBuilder) Canonical(value ExtensionBlock, bcf ...BlockControlFlags) *BundleBuilder {
	return bldr.canonical(value, firstOrZero(bcf))
}

func firstOrZero(bcf []BlockControlFlags) BlockControlFlags {
	if len(bcf) > 0 {
		return bcf[0]
	}
	return 0
}
