package bundle

import (
	"bytes"
	"reflect"
	"testing"
)

func TestNewDtnEndpointParsing(t *testing.T) {
	valid := map[string]string{
		"dtn:none":          dtnEndpointDtnNoneSsp,
		"dtn:dest":          "dest",
		"dtn:source":        "source",
		"dtn:app":           "app",
		"dtn://foo/":        "//foo/",
		"dtn://foo/bar":     "//foo/bar",
		"dtn://foo/bar/buz": "//foo/bar/buz",
		"dtn:/foo/":         "/foo/",
		"dtn://foo":         "//foo",
	}
	for uri, ssp := range valid {
		ep, err := NewDtnEndpoint(uri)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", uri, err)
		}
		if got := ep.(DtnEndpoint).Ssp; got != ssp {
			t.Fatalf("%s: expected ssp %q, got %q", uri, ssp, got)
		}
	}

	invalid := []string{
		"dtn:",    // missing SSP
		"dtn",     // missing SSP and ":"
		"uff:uff", // wrong scheme
		"",        // nothing
	}
	for _, uri := range invalid {
		if _, err := NewDtnEndpoint(uri); err == nil {
			t.Fatalf("%q: expected an error, got none", uri)
		}
	}
}

func TestDtnEndpointCborRoundTrip(t *testing.T) {
	tests := []struct {
		ep   DtnEndpoint
		data []byte
	}{
		{DtnEndpoint{dtnEndpointDtnNoneSsp}, []byte{0x00}},
		{DtnEndpoint{"foo"}, []byte{0x63, 0x66, 0x6F, 0x6F}},
		{DtnEndpoint{"//foo/"}, []byte{0x66, 0x2F, 0x2F, 0x66, 0x6F, 0x6F, 0x2F}},
		{DtnEndpoint{"dest"}, []byte{0x64, 0x64, 0x65, 0x73, 0x74}},
	}

	for _, test := range tests {
		var buf bytes.Buffer
		if err := test.ep.MarshalCbor(&buf); err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if !bytes.Equal(buf.Bytes(), test.data) {
			t.Fatalf("expected wire bytes %v, got %v", test.data, buf.Bytes())
		}

		var decoded DtnEndpoint
		if err := decoded.UnmarshalCbor(&buf); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if !reflect.DeepEqual(decoded, test.ep) {
			t.Fatalf("expected %v, got %v", test.ep, decoded)
		}
	}
}

func TestDtnEndpointAuthorityAndPath(t *testing.T) {
	tests := []struct {
		ep        DtnEndpoint
		authority string
		path      string
	}{
		{DtnEndpoint{dtnEndpointDtnNoneSsp}, "none", "/"},
		{DtnEndpoint{"//foobar/"}, "foobar", "/"},
		{DtnEndpoint{"//foo/bar"}, "foo", "/bar"},
		{DtnEndpoint{"//foo/bar/"}, "foo", "/bar/"},
		{DtnEndpoint{"dest"}, "", "dest"},
		{DtnEndpoint{"app"}, "", "app"},
	}

	for _, test := range tests {
		if got := test.ep.Authority(); got != test.authority {
			t.Errorf("%v: expected authority %q, got %q", test.ep, test.authority, got)
		}
		if got := test.ep.Path(); got != test.path {
			t.Errorf("%v: expected path %q, got %q", test.ep, test.path, got)
		}
	}
}
