package bundle

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dtn7/cboring"
)

// dtnEpoch is the reference point DtnTime counts from: 2000-01-01T00:00:00Z,
// as fixed by section 4.1.6.
var dtnEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// DtnTime is an integer indicating an interval of Unix epoch time that has
// elapsed since the start of the year 2000 on the UTC scale. It is specified
// in section 4.1.6.
type DtnTime uint64

// DtnTimeEpoch represents the zero timestamp/epoch, signalling the absence
// of an accurate clock at the creating node.
const DtnTimeEpoch DtnTime = 0

// DtnTimeFromTime converts a time.Time into a DtnTime relative to dtnEpoch.
func DtnTimeFromTime(t time.Time) DtnTime {
	return DtnTime(t.UTC().Sub(dtnEpoch).Seconds())
}

// DtnTimeNow returns the current (UTC) time as DtnTime.
func DtnTimeNow() DtnTime {
	return DtnTimeFromTime(time.Now())
}

// Time returns a UTC-based time.Time for this DtnTime.
func (t DtnTime) Time() time.Time {
	return dtnEpoch.Add(time.Duration(t) * time.Second)
}

// Unix returns the Unix timestamp for this DtnTime.
func (t DtnTime) Unix() int64 {
	return t.Time().Unix()
}

// String returns this DtnTime's string representation.
func (t DtnTime) String() string {
	return t.Time().Format("2006-01-02 15:04:05")
}

// CreationTimestamp is a tuple of a DtnTime and a sequence number (to differ
// bundles with the same DtnTime (seconds) from the same endpoint). It is
// specified in section 4.1.7.
type CreationTimestamp [2]uint64

const (
	creationTimestampTimeIdx = 0
	creationTimestampSeqIdx  = 1
)

// NewCreationTimestamp creates a new creation timestamp from a given DTN time
// and a sequence number, resulting in a hopefully unique tuple.
func NewCreationTimestamp(t DtnTime, sequence uint64) CreationTimestamp {
	var ct CreationTimestamp
	ct[creationTimestampTimeIdx] = uint64(t)
	ct[creationTimestampSeqIdx] = sequence
	return ct
}

// DtnTime returns the creation timestamp's DTN time part.
func (ct CreationTimestamp) DtnTime() DtnTime {
	return DtnTime(ct[creationTimestampTimeIdx])
}

// SequenceNumber returns the creation timestamp's sequence number.
func (ct CreationTimestamp) SequenceNumber() uint64 {
	return ct[creationTimestampSeqIdx]
}

// IsZeroTime returns if the time part is set to zero, indicating the lack of
// an accurate clock.
func (ct CreationTimestamp) IsZeroTime() bool {
	return ct.DtnTime() == DtnTimeEpoch
}

func (ct CreationTimestamp) String() string {
	return fmt.Sprintf("(%v, %d)", ct.DtnTime(), ct.SequenceNumber())
}

// MarshalJSON creates a JSON object representing this CreationTimestamp.
func (ct CreationTimestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date string `json:"date"`
		Seq  uint64 `json:"sequenceNo"`
	}{
		Date: ct.DtnTime().String(),
		Seq:  ct.SequenceNumber(),
	})
}

// MarshalCbor writes a CBOR representation for this CreationTimestamp.
func (ct *CreationTimestamp) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(uint64(len(ct)), w); err != nil {
		return err
	}

	for _, field := range ct {
		if err := cboring.WriteUInt(field, w); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalCbor reads a CBOR representation of a CreationTimestamp.
func (ct *CreationTimestamp) UnmarshalCbor(r io.Reader) error {
	l, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	if want := uint64(len(ct)); l != want {
		return fmt.Errorf("expected array of length %d, got %d", want, l)
	}

	for i := range ct {
		field, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		ct[i] = field
	}

	return nil
}
