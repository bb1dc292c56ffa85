package bundle

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"
)

const dtnVersion uint64 = 7

// primaryBlockBaseLen is the CBOR array length of a PrimaryBlock carrying
// neither fragmentation fields nor a CRC value; fragmentation adds 2
// elements, a CRC value adds 1, independently of each other.
const primaryBlockBaseLen uint64 = 8

// PrimaryBlock is a representation of the primary bundle block as defined in
// section 4.2.2.
type PrimaryBlock struct {
	Version            uint64
	BundleControlFlags BundleControlFlags
	CRCType            CRCType
	Destination        EndpointID
	SourceNode         EndpointID
	ReportTo           EndpointID
	CreationTimestamp  CreationTimestamp
	Lifetime           uint64
	FragmentOffset     uint64
	TotalDataLength    uint64
	CRC                []byte
}

// NewPrimaryBlock creates a new primary block with the given parameters. All
// other fields are set to default values. The lifetime is taken in
// milliseconds.
func NewPrimaryBlock(bundleControlFlags BundleControlFlags,
	destination, sourceNode EndpointID,
	creationTimestamp CreationTimestamp, lifetime uint64) PrimaryBlock {
	return PrimaryBlock{
		Version:            dtnVersion,
		BundleControlFlags: bundleControlFlags,
		CRCType:            CRCNo,
		Destination:        destination,
		SourceNode:         sourceNode,
		ReportTo:           sourceNode,
		CreationTimestamp:  creationTimestamp,
		Lifetime:           lifetime,
	}
}

// endpoints returns the three EndpointIDs marshalled by this block, in wire
// order: destination, source, report-to.
func (pb *PrimaryBlock) endpoints() [3]*EndpointID {
	return [3]*EndpointID{&pb.Destination, &pb.SourceNode, &pb.ReportTo}
}

// HasFragmentation returns true if the bundle processing control flags
// indicates a fragmented bundle. In this case the FragmentOffset and
// TotalDataLength fields should become relevant.
func (pb PrimaryBlock) HasFragmentation() bool {
	return pb.BundleControlFlags.Has(IsFragment)
}

// HasCRC retruns true if the CRCType indicates a CRC present for this block.
// In this case the CRC value should become relevant.
func (pb PrimaryBlock) HasCRC() bool {
	return pb.GetCRCType() != CRCNo
}

// GetCRCType returns the CRCType of this block.
func (pb PrimaryBlock) GetCRCType() CRCType {
	return pb.CRCType
}

// SetCRCType sets the CRC type.
func (pb *PrimaryBlock) SetCRCType(crcType CRCType) {
	pb.CRCType = crcType
}

// CalculateCRC calculates and writes the CRC-value for this block.
func (pb *PrimaryBlock) CalculateCRC() {
	pb.CRC = calculateCRC(pb)
}

// CheckCRC returns true if the CRC value matches to its CRCType or the
// CRCType is CRCNo.
func (pb *PrimaryBlock) CheckCRC() bool {
	return checkCRC(pb)
}

func (pb *PrimaryBlock) getCRC() []byte {
	return pb.CRC
}

func (pb *PrimaryBlock) resetCRC() {
	pb.CRC = emptyCRC(pb.GetCRCType())
}

func (pb *PrimaryBlock) setCRC(crc []byte) {
	pb.CRC = crc
}

// arrayLength returns the number of CBOR array elements this block encodes
// to: the 8 mandatory fields, plus 2 for fragmentation, plus 1 for a CRC.
func (pb *PrimaryBlock) arrayLength() uint64 {
	n := primaryBlockBaseLen
	if pb.HasFragmentation() {
		n += 2
	}
	if pb.HasCRC() {
		n++
	}
	return n
}

func (pb *PrimaryBlock) MarshalCbor(w io.Writer) error {
	crcBuff := new(bytes.Buffer)
	if pb.HasCRC() {
		w = io.MultiWriter(w, crcBuff)
	}

	if err := cboring.WriteArrayLength(pb.arrayLength(), w); err != nil {
		return err
	}

	for _, f := range []uint64{dtnVersion, uint64(pb.BundleControlFlags), uint64(pb.CRCType)} {
		if err := cboring.WriteUInt(f, w); err != nil {
			return err
		}
	}

	for _, eid := range pb.endpoints() {
		if err := cboring.Marshal(eid, w); err != nil {
			return fmt.Errorf("EndpointID failed: %v", err)
		}
	}

	if err := cboring.Marshal(&pb.CreationTimestamp, w); err != nil {
		return fmt.Errorf("CreationTimestamp failed: %v", err)
	}

	if err := cboring.WriteUInt(pb.Lifetime, w); err != nil {
		return err
	}

	if pb.HasFragmentation() {
		for _, f := range []uint64{pb.FragmentOffset, pb.TotalDataLength} {
			if err := cboring.WriteUInt(f, w); err != nil {
				return err
			}
		}
	}

	if !pb.HasCRC() {
		return nil
	}

	crcVal, err := calculateCRCBuff(crcBuff, pb.CRCType)
	if err != nil {
		return err
	}
	if err := cboring.WriteByteString(crcVal, w); err != nil {
		return err
	}
	pb.CRC = crcVal
	return nil
}

func (pb *PrimaryBlock) UnmarshalCbor(r io.Reader) error {
	blockLen, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	if blockLen < primaryBlockBaseLen || blockLen > primaryBlockBaseLen+3 {
		return fmt.Errorf("expected array with length %d-%d, got %d",
			primaryBlockBaseLen, primaryBlockBaseLen+3, blockLen)
	}

	hasFragmentation := blockLen == primaryBlockBaseLen+2 || blockLen == primaryBlockBaseLen+3
	hasCRC := blockLen == primaryBlockBaseLen+1 || blockLen == primaryBlockBaseLen+3

	crcBuff := new(bytes.Buffer)
	if hasCRC {
		_ = cboring.WriteArrayLength(blockLen, crcBuff)
		r = io.TeeReader(r, crcBuff)
	}

	version, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	if version != dtnVersion {
		return fmt.Errorf("expected version %d, got %d", dtnVersion, version)
	}
	pb.Version = version

	if bcf, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		pb.BundleControlFlags = BundleControlFlags(bcf)
	}

	if crcT, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		pb.CRCType = CRCType(crcT)
	}

	for _, eid := range pb.endpoints() {
		if err := cboring.Unmarshal(eid, r); err != nil {
			return fmt.Errorf("EndpointID failed: %v", err)
		}
	}

	if err := cboring.Unmarshal(&pb.CreationTimestamp, r); err != nil {
		return fmt.Errorf("CreationTimestamp failed: %v", err)
	}

	if lt, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		pb.Lifetime = lt
	}

	if hasFragmentation {
		for _, f := range []*uint64{&pb.FragmentOffset, &pb.TotalDataLength} {
			if x, err := cboring.ReadUInt(r); err != nil {
				return err
			} else {
				*f = x
			}
		}
	}

	if !hasCRC {
		return nil
	}

	crcCalc, err := calculateCRCBuff(crcBuff, pb.CRCType)
	if err != nil {
		return err
	}
	crcVal, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	if !bytes.Equal(crcCalc, crcVal) {
		return fmt.Errorf("invalid CRC value: %x instead of expected %x", crcVal, crcCalc)
	}
	pb.CRC = crcVal
	return nil
}

// sourcelessImpliesUnfragmentedAndSilent checks the constraint from section
// 4.1.3: if the source node is omitted (dtn:none), the bundle must not be
// fragmented and no status report may be requested.
func (pb PrimaryBlock) sourcelessImpliesUnfragmentedAndSilent() bool {
	if pb.SourceNode != DtnNone() {
		return true
	}

	return pb.BundleControlFlags.Has(MustNotFragmented) && !pb.BundleControlFlags.hasAnyStatusRequest()
}

func (pb PrimaryBlock) checkValid() (errs error) {
	if pb.Version != dtnVersion {
		errs = multierror.Append(errs, newBundleError(fmt.Sprintf(
			"PrimaryBlock: Wrong Version, %d instead of %d", pb.Version, dtnVersion)))
	}

	if bcfErr := pb.BundleControlFlags.checkValid(); bcfErr != nil {
		errs = multierror.Append(errs, bcfErr)
	}

	for _, eid := range []EndpointID{pb.Destination, pb.SourceNode, pb.ReportTo} {
		if err := eid.checkValid(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if !pb.sourcelessImpliesUnfragmentedAndSilent() {
		errs = multierror.Append(errs, newBundleError("PrimaryBlock: Source Node is dtn:none, but Bundle could "+
			"be fragmented or status report flags are not zero"))
	}

	return
}

// IsLifetimeExceeded returns true if this PrimaryBlock's lifetime is exceeded.
// This method only compares the tuple of the CreationTimestamp and Lifetime
// against the current time.
//
// The hop count block and the bundle age block are not inspected by this method
// and should also be checked.
func (pb PrimaryBlock) IsLifetimeExceeded() bool {
	expiry := pb.CreationTimestamp.DtnTime().Time().Add(time.Duration(pb.Lifetime) * time.Millisecond)
	return time.Now().After(expiry)
}

func (pb PrimaryBlock) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "version: %d, ", pb.Version)
	fmt.Fprintf(&b, "bundle processing control flags: %b, ", pb.BundleControlFlags)
	fmt.Fprintf(&b, "crc type: %v, ", pb.CRCType)
	fmt.Fprintf(&b, "destination: %v, ", pb.Destination)
	fmt.Fprintf(&b, "source node: %v, ", pb.SourceNode)
	fmt.Fprintf(&b, "report to: %v, ", pb.ReportTo)
	fmt.Fprintf(&b, "creation timestamp: %v, ", pb.CreationTimestamp)
	fmt.Fprintf(&b, "lifetime: %d", pb.Lifetime)

	if pb.HasFragmentation() {
		fmt.Fprintf(&b, ", fragment offset: %d, total data length: %d", pb.FragmentOffset, pb.TotalDataLength)
	}
	if pb.HasCRC() {
		fmt.Fprintf(&b, ", crc: %x", pb.CRC)
	}

	return b.String()
}
