package bundle

import "testing"

func TestBlockControlFlagsHas(t *testing.T) {
	cf := ReplicateBlock | DeleteBundle

	if !cf.Has(ReplicateBlock) {
		t.Error("cf has no ReplicateBlock flag even though it was set")
	}
	if cf.Has(RemoveBlock) {
		t.Error("cf reports RemoveBlock flag which was never set")
	}
}

func TestBlockControlFlagsCheckValid(t *testing.T) {
	tests := map[string]struct {
		cf    BlockControlFlags
		valid bool
	}{
		"no flags":               {0, true},
		"single known flag":      {ReplicateBlock, true},
		"combined known flags":   {ReplicateBlock | DeleteBundle, true},
		"known plus reserved":    {ReplicateBlock | 0x80, false},
		"only reserved bits":     {0x40 | 0x20, false},
		"all four known flags":   {ReplicateBlock | StatusReportBlock | DeleteBundle | RemoveBlock, true},
	}

	for name, test := range tests {
		if err := test.cf.CheckValid(); (err == nil) != test.valid {
			t.Errorf("%s: expected valid=%t, got err=%v", name, test.valid, err)
		}
	}
}

func TestBlockControlFlagsString(t *testing.T) {
	if s := BlockControlFlags(0).String(); s != "" {
		t.Errorf("expected empty String() for no flags, got %q", s)
	}

	s := DeleteBundle.String()
	if s != "DELETE_BUNDLE" {
		t.Errorf("expected DELETE_BUNDLE, got %q", s)
	}
}
