package bundle

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/dtn7/cboring"
)

const (
	dtnEndpointSchemeName string = "dtn"
	dtnEndpointSchemeNo   uint64 = 1
	dtnEndpointDtnNoneSsp string = "none"
)

// dtnEndpointHierarchicalPattern recognizes the "//authority/path" shape of
// an SSP, used only to split Authority()/Path() for endpoints that happen to
// be written that way; any other non-empty SSP text is equally valid.
var dtnEndpointHierarchicalPattern = regexp.MustCompile(`^//([^/]*)(/.*)?$`)

// DtnEndpoint describes the dtn URI for EndpointIDs, as defined in
// ietf-dtn-bpbis. The scheme-specific part is an arbitrary UTF-8 text
// string, with the sentinel value "none" reserved for the null endpoint;
// it is not required to take the "//authority/path" hierarchical form.
type DtnEndpoint struct {
	Ssp string
}

// NewDtnEndpoint parses a URI using the "dtn" scheme: either the null
// endpoint "dtn:none" or "dtn:<ssp>" for an arbitrary, non-empty ssp.
func NewDtnEndpoint(uri string) (EndpointType, error) {
	prefix := dtnEndpointSchemeName + ":"
	if !strings.HasPrefix(uri, prefix) {
		return nil, fmt.Errorf("uri does not match a dtn endpoint")
	}

	e := DtnEndpoint{Ssp: strings.TrimPrefix(uri, prefix)}
	if err := e.CheckValid(); err != nil {
		return nil, err
	}
	return e, nil
}

// SchemeName is "dtn" for DtnEndpoints.
func (DtnEndpoint) SchemeName() string {
	return dtnEndpointSchemeName
}

// SchemeNo is 1 for DtnEndpoints.
func (DtnEndpoint) SchemeNo() uint64 {
	return dtnEndpointSchemeNo
}

// Authority is the authority part of the Endpoint URI for a hierarchical
// SSP, e.g., "foo" for "dtn://foo/bar"; an SSP without that shape has no
// authority and this returns an empty string.
func (e DtnEndpoint) Authority() string {
	authority, _ := e.split()
	return authority
}

// Path is the path part of the Endpoint URI for a hierarchical SSP, e.g.,
// "/bar" for "dtn://foo/bar"; for a plain-text SSP this returns the SSP
// itself, there being no path/authority distinction to make.
func (e DtnEndpoint) Path() string {
	_, path := e.split()
	return path
}

// split parses the DtnEndpoint's SSP into an authority and a path part if
// it takes the hierarchical "//authority/path" shape. The null endpoint is
// special-cased; any other, non-hierarchical SSP is returned whole as the
// path with no authority.
func (e DtnEndpoint) split() (authority, path string) {
	if e.Ssp == dtnEndpointDtnNoneSsp {
		return "none", "/"
	}

	if m := dtnEndpointHierarchicalPattern.FindStringSubmatch(e.Ssp); m != nil {
		if u, err := url.Parse(dtnEndpointSchemeName + ":" + e.Ssp); err == nil {
			return u.Hostname(), u.RequestURI()
		}
	}

	return "", e.Ssp
}

// CheckValid returns an error if this DtnEndpoint's SSP is empty; per the
// dtn URI scheme, any other UTF-8 text is an acceptable scheme-specific
// part, hierarchical or not.
func (e DtnEndpoint) CheckValid() error {
	if e.Ssp == "" {
		return fmt.Errorf("dtn URI has an empty scheme-specific part")
	}
	return nil
}

func (e DtnEndpoint) String() string {
	return fmt.Sprintf("%s:%s", dtnEndpointSchemeName, e.Ssp)
}

// MarshalCbor writes this DtnEndpoint's CBOR representation.
func (e DtnEndpoint) MarshalCbor(w io.Writer) error {
	if e.Ssp == dtnEndpointDtnNoneSsp {
		return cboring.WriteUInt(0, w)
	}
	return cboring.WriteTextString(e.Ssp, w)
}

// UnmarshalCbor reads a CBOR representation.
func (e *DtnEndpoint) UnmarshalCbor(r io.Reader) error {
	m, n, err := cboring.ReadMajors(r)
	if err != nil {
		return err
	}

	switch m {
	case cboring.UInt:
		e.Ssp = dtnEndpointDtnNoneSsp

	case cboring.TextString:
		raw, err := cboring.ReadRawBytes(n, r)
		if err != nil {
			return err
		}
		e.Ssp = string(raw)

	default:
		return fmt.Errorf("DtnEndpoint: wrong major type 0x%X for unmarshalling", m)
	}

	return nil
}

// DtnNone returns the null endpoint "dtn:none".
func DtnNone() EndpointID {
	return EndpointID{DtnEndpoint{Ssp: dtnEndpointDtnNoneSsp}}
}
