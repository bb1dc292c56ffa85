package bundle

import (
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"
)

// EndpointType is the "scheme-specific part" of an EndpointID, as defined in
// section 4.2.5.1. Each supported URI scheme ("dtn", "ipn", ...) implements
// this interface, which replaces the inheritance hierarchy the underlying
// implementation uses for the same purpose.
type EndpointType interface {
	// MarshalCbor writes this EndpointType's scheme-specific-part CBOR
	// representation, i.e. everything after the scheme number.
	MarshalCbor(w io.Writer) error

	// SchemeName is the textual name of the scheme, e.g. "dtn" or "ipn".
	SchemeName() string

	// SchemeNo is this scheme's assigned numeric code.
	SchemeNo() uint64

	// Authority is the authority part of the endpoint's URI.
	Authority() string

	// Path is the path part of the endpoint's URI.
	Path() string

	// CheckValid returns an error if this EndpointType's invariants are broken.
	CheckValid() error

	fmt.Stringer
}

// EndpointID represents an Endpoint ID as defined in section 4.2.5.1. It
// wraps a concrete EndpointType, dispatching (de)serialization and
// validation to it based on the wire-level scheme number.
type EndpointID struct {
	EndpointType
}

// NewEndpointID creates a new EndpointID from a URI string, e.g.,
// "dtn://foo/bar", "dtn:none" or "ipn:23.42".
func NewEndpointID(uri string) (e EndpointID, err error) {
	schemeName := uri
	if i := strings.IndexRune(uri, ':'); i >= 0 {
		schemeName = uri[:i]
	}

	switch schemeName {
	case dtnEndpointSchemeName:
		var et EndpointType
		if et, err = NewDtnEndpoint(uri); err == nil {
			e = EndpointID{et}
		}

	case ipnEndpointSchemeName:
		var et EndpointType
		if et, err = NewIpnEndpoint(uri); err == nil {
			e = EndpointID{et}
		}

	default:
		err = newBundleError(fmt.Sprintf("EndpointID: unknown scheme %q", schemeName))
	}

	return
}

// MustNewEndpointID returns a new EndpointID as NewEndpointID, but panics
// in case of an error.
func MustNewEndpointID(uri string) EndpointID {
	e, err := NewEndpointID(uri)
	if err != nil {
		panic(err)
	}

	return e
}

// checkValid is the internal, lowercase entry point the rest of the bundle
// package's validation chain calls.
func (eid EndpointID) checkValid() error {
	if eid.EndpointType == nil {
		return newBundleError("EndpointID: no EndpointType present")
	}

	return eid.EndpointType.CheckValid()
}

// CheckValid returns an error if this EndpointID's invariants are broken.
func (eid EndpointID) CheckValid() error {
	return eid.checkValid()
}

func (eid EndpointID) String() string {
	if eid.EndpointType == nil {
		return "dtn:none"
	}

	return eid.EndpointType.String()
}

func (eid *EndpointID) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(eid.EndpointType.SchemeNo(), w); err != nil {
		return err
	}

	return eid.EndpointType.MarshalCbor(w)
}

func (eid *EndpointID) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("EndpointID: expected array of length 2, got %d", n)
	}

	schemeNo, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}

	switch schemeNo {
	case dtnEndpointSchemeNo:
		e := new(DtnEndpoint)
		if err := e.UnmarshalCbor(r); err != nil {
			return err
		}
		eid.EndpointType = *e

	case ipnEndpointSchemeNo:
		e := new(IpnEndpoint)
		if err := e.UnmarshalCbor(r); err != nil {
			return err
		}
		eid.EndpointType = *e

	default:
		return fmt.Errorf("EndpointID: unknown scheme number %d", schemeNo)
	}

	return nil
}
