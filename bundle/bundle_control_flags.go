package bundle

import "github.com/hashicorp/go-multierror"

// BundleControlFlags is an uint64 which represents the Bundle Processing
// Control Flags as specified in section 4.1.3, using the RFC 9171 bit
// positions. ContainsManifest is not an RFC 9171 flag; every other bit not
// named below is reserved.
type BundleControlFlags uint64

const (
	// IsFragment: The bundle is a fragment.
	IsFragment BundleControlFlags = 0x0001

	// AdministrativeRecordPayload: The bundle's payload is an
	// administrative record.
	AdministrativeRecordPayload BundleControlFlags = 0x0002

	// MustNotFragmented: The bundle must not be fragmented.
	MustNotFragmented BundleControlFlags = 0x0004

	// RequestUserApplicationAck: Acknowledgment by the user application
	// is requested.
	RequestUserApplicationAck BundleControlFlags = 0x0020

	// RequestStatusTime: Status time is requested in all status reports.
	RequestStatusTime BundleControlFlags = 0x0040

	// StatusRequestReception: Request reporting of bundle reception.
	StatusRequestReception BundleControlFlags = 0x4000

	// StatusRequestForward: Request reporting of bundle forwarding.
	StatusRequestForward BundleControlFlags = 0x10000

	// StatusRequestDelivery: Request reporting of bundle delivery.
	StatusRequestDelivery BundleControlFlags = 0x20000

	// StatusRequestDeletion: Request reporting of bundle deletion.
	StatusRequestDeletion BundleControlFlags = 0x40000

	// ContainsManifest: The bundle contains a "manifest" extension block.
	ContainsManifest BundleControlFlags = 0x0200

	bndlCFReservedFields BundleControlFlags = ^(IsFragment | AdministrativeRecordPayload |
		MustNotFragmented | RequestUserApplicationAck | RequestStatusTime |
		StatusRequestReception | StatusRequestForward | StatusRequestDelivery |
		StatusRequestDeletion | ContainsManifest)
)

// statusRequestFlags are the four "transmit a status report if X happens"
// bits, checked together whenever an administrative-record payload forbids
// all of them at once.
var statusRequestFlags = [...]BundleControlFlags{
	StatusRequestReception,
	StatusRequestForward,
	StatusRequestDelivery,
	StatusRequestDeletion,
}

// Has returns true if a given flag or mask of flags is set.
func (bcf BundleControlFlags) Has(flag BundleControlFlags) bool {
	return (bcf & flag) != 0
}

// hasAnyStatusRequest reports whether any status-report-request flag is set.
func (bcf BundleControlFlags) hasAnyStatusRequest() bool {
	for _, f := range statusRequestFlags {
		if bcf.Has(f) {
			return true
		}
	}
	return false
}

func (bcf BundleControlFlags) checkValid() (errs error) {
	if bcf.Has(bndlCFReservedFields) {
		errs = multierror.Append(
			errs, newBundleError(
				"BundleControlFlags: Given flag contains reserved bits"))
	}

	if bcf.Has(IsFragment) && bcf.Has(MustNotFragmented) {
		errs = multierror.Append(errs,
			newBundleError("BundleControlFlags: both 'bundle is a fragment' and "+
				"'bundle must not be fragmented' flags are set"))
	}

	if bcf.Has(AdministrativeRecordPayload) && bcf.hasAnyStatusRequest() {
		errs = multierror.Append(errs, newBundleError(
			"BundleControlFlags: \"payload is administrative record => "+
				"no status report request flags\" failed"))
	}

	return
}
