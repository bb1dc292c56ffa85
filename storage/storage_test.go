package storage

import (
	"testing"

	"github.com/dtn7/dtn7-lite/bundle"
)

func mustTestBundle(t *testing.T, dest string) bundle.Bundle {
	t.Helper()

	b, err := bundle.Builder().
		Source("dtn://sender/").
		Destination(dest).
		CreationTimestampNow().
		Lifetime("24h").
		PayloadBlock([]byte("hello")).
		Build()
	if err != nil {
		t.Fatalf("building test bundle: %v", err)
	}
	return b
}
