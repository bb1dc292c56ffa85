package bundle

import (
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
)

func TestBundleControlFlagsHas(t *testing.T) {
	cf := IsFragment | RequestStatusTime

	if !cf.Has(IsFragment) {
		t.Error("cf has no IsFragment flag even though it was set")
	}
	if cf.Has(StatusRequestDeletion) {
		t.Error("cf reports StatusRequestDeletion flag which was never set")
	}
}

func TestBundleControlFlagsFragmentationConflict(t *testing.T) {
	cf := IsFragment | MustNotFragmented
	if err := cf.checkValid(); err == nil {
		t.Error("expected fragment + must-not-fragment to be invalid")
	}
}

func TestBundleControlFlagsAdministrativeRecordImplications(t *testing.T) {
	statusRequests := []BundleControlFlags{
		StatusRequestReception,
		StatusRequestForward,
		StatusRequestDelivery,
		StatusRequestDeletion,
	}

	cf := AdministrativeRecordPayload
	if err := cf.checkValid(); err != nil {
		t.Errorf("administrative record alone should be valid: %v", err)
	}

	for _, flag := range statusRequests {
		combined := cf | flag

		err := combined.checkValid()
		if err == nil {
			t.Errorf("expected admin record + %v to be invalid", flag)
			continue
		}

		merr, ok := err.(*multierror.Error)
		if !ok {
			t.Fatalf("expected *multierror.Error, got %T", err)
		}

		found := false
		for _, wrapped := range merr.WrappedErrors() {
			if strings.Contains(wrapped.Error(), "administrative record") {
				found = true
			}
		}
		if !found {
			t.Errorf("no wrapped error mentioned the administrative record constraint")
		}
	}

	allRequests := cf
	for _, flag := range statusRequests {
		allRequests |= flag
	}
	if err := allRequests.checkValid(); err == nil {
		t.Error("expected admin record + every status request flag to be invalid")
	}
}

func TestBundleControlFlagsReservedBits(t *testing.T) {
	if err := bndlCFReservedFields.checkValid(); err == nil {
		t.Error("expected reserved bits alone to be invalid")
	}
}
