// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cla

import (
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-lite/bundle"
)

func TestManagerRegisterDuplicate(t *testing.T) {
	log.SetLevel(log.PanicLevel)

	m := NewManager(time.Hour)
	defer m.Close()

	a := NewLoopback("loopback://a/")
	if err := m.Register(a); err != nil {
		t.Fatal(err)
	}

	if err := m.Register(NewLoopback("loopback://a/")); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestManagerAddressablePartition(t *testing.T) {
	m := NewManager(time.Hour)
	defer m.Close()

	if err := m.Register(NewLoopback("loopback://a/")); err != nil {
		t.Fatal(err)
	}

	if l := len(m.Addressable()); l != 1 {
		t.Fatalf("expected one addressable CLA, got %d", l)
	}
	if l := len(m.BroadcastOnly()); l != 0 {
		t.Fatalf("expected no broadcast-only CLA, got %d", l)
	}
}

func TestManagerDispatchesLoopback(t *testing.T) {
	m := NewManager(time.Hour)
	defer m.Close()

	a := NewLoopback("loopback://a/")
	b := NewLoopback("loopback://b/")
	Pair(a, b)

	if err := m.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(b); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)

	var got ReceivedBundle
	m.SetReceiveFunc(func(rb ReceivedBundle) {
		got = rb
		wg.Done()
	})

	bndl, err := bundle.Builder().
		Source("dtn://src/").
		Destination("dtn://dest/").
		CreationTimestampEpoch().
		Lifetime("10m").
		BundleAgeBlock(0).
		PayloadBlock([]byte("hello world")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	if !a.Send(bndl, nil) {
		t.Fatal("Send returned false")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatch")
	}

	if got.FromURI != "loopback://a/" {
		t.Fatalf("expected FromURI loopback://a/, got %q", got.FromURI)
	}
}
