package bundle

import (
	"io"

	"github.com/dtn7/cboring"
)

// ExtBlockTypePreviousNodeBlock is the previous-node block's block type
// code, fixed at 6 by section 4.4.1.
const ExtBlockTypePreviousNodeBlock uint64 = 6

// PreviousNodeBlock names the EndpointID of the node that forwarded a
// Bundle to the current node, as defined in section 4.4.1. Nodes attach and
// replace this block on every forward; it is advisory, not authoritative.
type PreviousNodeBlock EndpointID

// NewPreviousNodeBlock names prev as the sender of a Bundle.
func NewPreviousNodeBlock(prev EndpointID) *PreviousNodeBlock {
	pnb := PreviousNodeBlock(prev)
	return &pnb
}

func (pnb *PreviousNodeBlock) BlockTypeCode() uint64 {
	return ExtBlockTypePreviousNodeBlock
}

// Endpoint returns the named sender's EndpointID.
func (pnb *PreviousNodeBlock) Endpoint() EndpointID {
	return EndpointID(*pnb)
}

func (pnb *PreviousNodeBlock) CheckValid() error {
	eid := EndpointID(*pnb)
	return eid.CheckValid()
}

func (pnb *PreviousNodeBlock) MarshalCbor(w io.Writer) error {
	eid := EndpointID(*pnb)
	return cboring.Marshal(&eid, w)
}

func (pnb *PreviousNodeBlock) UnmarshalCbor(r io.Reader) error {
	var eid EndpointID
	if err := cboring.Unmarshal(&eid, r); err != nil {
		return err
	}

	*pnb = PreviousNodeBlock(eid)
	return nil
}
