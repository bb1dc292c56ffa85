// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package core implements the Bundle Protocol Agent of section 4.3: bundle
// reception, dispatching, local delivery, forwarding and deletion, built on
// top of the storage, cla and routing packages.
package core

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/cla"
	"github.com/dtn7/dtn7-lite/routing"
	"github.com/dtn7/dtn7-lite/storage"
)

// DeliveryHandler is a locally registered application endpoint. It is kept
// as a plain interface rather than a concrete type so the agent package's
// Endpoint can satisfy it without core importing agent, avoiding the import
// cycle described in the design notes' "cyclic references" guidance.
type DeliveryHandler interface {
	EndpointURI() string
	Deliver(b bundle.Bundle)
}

// BPA is the Bundle Protocol Agent: the single runtime object owning the
// local node's storage, CLA manager, router and registered endpoints, per
// the design notes' "no implicit global singletons" guidance.
type BPA struct {
	opts     Options
	localEID bundle.EndpointID

	store   storage.Storage
	manager *cla.Manager
	router  routing.Router

	idKeeper IdKeeper

	mutex     sync.RWMutex
	endpoints map[string]DeliveryHandler

	receiveQueue chan receiveRequest
	forwardQueue chan storage.BundleInfo

	stopSyn chan struct{}
	stopAck chan struct{}

	optsMutex   sync.RWMutex
	reloadRetry chan time.Duration

	routerMutex sync.RWMutex

	nowMs func() uint64
}

type receiveRequest struct {
	bundle  bundle.Bundle
	fromURI string
}

// NewBPA constructs a BPA around the given storage backend, CLA manager and
// router, using localEID as the local node's own endpoint ID and as the
// previous-node identity stamped on forwarded bundles.
func NewBPA(opts Options, localEID bundle.EndpointID, store storage.Storage, manager *cla.Manager, router routing.Router, nowMs func() uint64) *BPA {
	b := &BPA{
		opts:         opts,
		localEID:     localEID,
		store:        store,
		manager:      manager,
		router:       router,
		idKeeper:     NewIdKeeper(),
		endpoints:    make(map[string]DeliveryHandler),
		receiveQueue: make(chan receiveRequest, opts.ReceiveQueueSize),
		forwardQueue: make(chan storage.BundleInfo, opts.ForwardQueueSize),
		stopSyn:      make(chan struct{}),
		stopAck:      make(chan struct{}),
		reloadRetry:  make(chan time.Duration, 1),
		nowMs:        nowMs,
	}

	manager.SetReceiveFunc(func(rb cla.ReceivedBundle) {
		b.BundleReception(rb.Bundle, rb.FromURI)
	})

	return b
}

// LocalEID returns this node's own endpoint ID.
func (b *BPA) LocalEID() bundle.EndpointID {
	return b.localEID
}

// Options returns a snapshot of this BPA's current Options, so that
// dependents (e.g. the agent package's Endpoint.Send) can honor the same
// clock/hop-count/lifetime knobs without duplicating them.
func (b *BPA) Options() Options {
	b.optsMutex.RLock()
	defer b.optsMutex.RUnlock()

	return b.opts
}

// UpdateOptions atomically applies fn to a copy of the current Options and
// installs the result, so a config-reload path (e.g. cmd/dtn-lited's
// fsnotify watcher) never races with the pipeline goroutines reading
// b.opts. Changing RetryIntervalMs takes effect on the running retry-cycle
// ticker without a restart; every other field is picked up the next time
// it's read.
func (b *BPA) UpdateOptions(fn func(*Options)) {
	b.optsMutex.Lock()
	fn(&b.opts)
	updated := b.opts
	b.optsMutex.Unlock()

	select {
	case b.reloadRetry <- time.Duration(updated.RetryIntervalMs) * time.Millisecond:
	default:
	}
}

// opt returns a thread-safe snapshot of the current Options for internal
// pipeline use.
func (b *BPA) opt() Options {
	b.optsMutex.RLock()
	defer b.optsMutex.RUnlock()

	return b.opts
}

// SetRouter swaps the forwarding policy in use, so a config-reload path can
// rebuild a router with new knobs (SimpleBroadcastRouter.MinForwards,
// EpidemicRouter.RequiredForwards, ...) instead of restarting the daemon.
func (b *BPA) SetRouter(r routing.Router) {
	b.routerMutex.Lock()
	defer b.routerMutex.Unlock()

	b.router = r
}

func (b *BPA) getRouter() routing.Router {
	b.routerMutex.RLock()
	defer b.routerMutex.RUnlock()

	return b.router
}

// Storage exposes the BPA's storage backend for components that need direct
// access, e.g. a discovery mechanism populating known peers.
func (b *BPA) Storage() storage.Storage {
	return b.store
}

// NowMs returns the current node-local millisecond timestamp per this BPA's
// clock source.
func (b *BPA) NowMs() uint64 {
	return b.nowMs()
}

// RegisterEndpoint attaches h under its own EndpointURI.
func (b *BPA) RegisterEndpoint(h DeliveryHandler) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if _, exists := b.endpoints[h.EndpointURI()]; exists {
		return fmt.Errorf("core: endpoint %q is already registered", h.EndpointURI())
	}
	b.endpoints[h.EndpointURI()] = h
	return nil
}

// DeregisterEndpoint removes a previously registered endpoint.
func (b *BPA) DeregisterEndpoint(uri string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	delete(b.endpoints, uri)
}

// HasEndpoint reports whether eid names a locally registered endpoint.
func (b *BPA) HasEndpoint(eid bundle.EndpointID) bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	_, ok := b.endpoints[eid.String()]
	return ok
}

// NextSequenceNumber assigns the (source, creation_time)-scoped sequence
// number for a bundle about to be originated, per section 4.2's id_keeper.
func (b *BPA) NextSequenceNumber(bndl *bundle.Bundle) {
	b.idKeeper.update(bndl)
}

// Run starts the receive-loop and forward-loop goroutines. It returns
// immediately; call Close to stop them.
func (b *BPA) Run() {
	go b.receiveLoop()
	go b.forwardLoop()
	go b.retryCycle()
}

// Close signals the receive-loop, forward-loop and retry-cycle to stop and
// waits for the receive-loop to exit. The queues are left open.
func (b *BPA) Close() {
	close(b.stopSyn)
	<-b.stopAck
}

func (b *BPA) receiveLoop() {
	for {
		select {
		case <-b.stopSyn:
			close(b.stopAck)
			return
		case req := <-b.receiveQueue:
			b.bundleReception(req.bundle, req.fromURI)
		}
	}
}

func (b *BPA) forwardLoop() {
	for {
		select {
		case <-b.stopSyn:
			return
		case bi := <-b.forwardQueue:
			b.BundleForwarding(bi)
		}
	}
}

// BundleTransmission implements section 4.3's bundle_transmission: local
// origination of bndl. The bundle is queued for reception with the local
// URI as its sender; its own source endpoint is left unchanged.
func (b *BPA) BundleTransmission(bndl bundle.Bundle) {
	log.WithFields(log.Fields{"bundle": bndl.ID()}).Info("Transmission of bundle requested")

	b.receiveQueue <- receiveRequest{bundle: bndl, fromURI: b.opt().LocalURI}
}

// BundleReception implements section 4.3's bundle_reception entry point,
// enqueuing the work for the receive-loop rather than running inline, so a
// CLA's push callback never blocks on pipeline processing.
func (b *BPA) BundleReception(bndl bundle.Bundle, fromURI string) {
	b.receiveQueue <- receiveRequest{bundle: bndl, fromURI: fromURI}
}

func (b *BPA) bundleReception(bndl bundle.Bundle, fromURI string) {
	id := bndl.ID()

	log.WithFields(log.Fields{"bundle": id, "from": fromURI}).Debug("Received new bundle")

	if b.store.CheckSeen(id) {
		log.WithFields(log.Fields{"bundle": id}).Debug("Bundle already seen, dropping")
		return
	}
	b.store.StoreSeen(id)

	for i := len(bndl.CanonicalBlocks) - 1; i >= 0; i-- {
		cb := bndl.CanonicalBlocks[i]
		if _, unknown := cb.Value.(*bundle.GenericExtensionBlock); !unknown {
			continue
		}

		if cb.BlockControlFlags.Has(bundle.DeleteBundle) {
			b.bundleDeletion(storage.NewBundleInfo(bndl, b.nowMs()), routing.ReasonBlockUnsupported)
			return
		}
		if cb.BlockControlFlags.Has(bundle.RemoveBlock) {
			bndl.CanonicalBlocks = append(bndl.CanonicalBlocks[:i], bndl.CanonicalBlocks[i+1:]...)
		}
		// StatusReportBlock (REPORT_UNPROCESSABLE) only toggles a status-report
		// hook; emission is out of scope.
	}

	if hcb, err := bndl.ExtensionBlock(bundle.ExtBlockTypeHopCountBlock); err == nil {
		hc := hcb.Value.(*bundle.HopCountBlock)
		if hc.Count >= hc.Limit {
			b.bundleDeletion(storage.NewBundleInfo(bndl, b.nowMs()), routing.ReasonHopLimitExceeded)
			return
		}
	}

	lifetimeMs := bndl.PrimaryBlock.Lifetime
	opts := b.opt()
	if opts.OverrideLifetimeMs != 0 {
		lifetimeMs = opts.OverrideLifetimeMs
	}

	if ab, err := bndl.ExtensionBlock(bundle.ExtBlockTypeBundleAgeBlock); err == nil {
		age := ab.Value.(*bundle.BundleAgeBlock).Age()
		if age >= lifetimeMs {
			b.bundleDeletion(storage.NewBundleInfo(bndl, b.nowMs()), routing.ReasonLifetimeExpired)
			return
		}
	}

	if opts.HasAccurateClock && !bndl.PrimaryBlock.CreationTimestamp.IsZeroTime() {
		creationMs := uint64(bndl.PrimaryBlock.CreationTimestamp.DtnTime().Unix()) * 1000
		if creationMs+lifetimeMs < b.nowMs() {
			b.bundleDeletion(storage.NewBundleInfo(bndl, b.nowMs()), routing.ReasonLifetimeExpired)
			return
		}
	}

	bi := storage.NewBundleInfo(bndl, b.nowMs())

	if fromURI != "none" && fromURI != opts.LocalURI {
		if peer := b.store.GetNode(fromURI); peer.URI != "none" {
			peer.LastSeenMs = b.nowMs()
			bi.AddForwardedTo(peer)
			b.store.AddNode(peer)
		}
	}

	b.bundleDispatching(bi)
}

// BundleDispatching implements section 4.3's bundle_dispatching, exported
// for direct use (e.g. retried bundles handed back by storage).
func (b *BPA) BundleDispatching(bi storage.BundleInfo) {
	b.bundleDispatching(bi)
}

func (b *BPA) bundleDispatching(bi storage.BundleInfo) {
	log.WithFields(log.Fields{"bundle": bi.ID()}).Info("Dispatching bundle")

	if b.HasEndpoint(bi.Bundle.PrimaryBlock.Destination) {
		bi = b.localDelivery(bi)
	}

	b.forwardQueue <- bi
}

// LocalDelivery implements section 4.3's local_delivery.
func (b *BPA) LocalDelivery(bi storage.BundleInfo) storage.BundleInfo {
	return b.localDelivery(bi)
}

func (b *BPA) localDelivery(bi storage.BundleInfo) storage.BundleInfo {
	dest := bi.Bundle.PrimaryBlock.Destination.String()

	b.mutex.RLock()
	handler, ok := b.endpoints[dest]
	b.mutex.RUnlock()

	if ok {
		log.WithFields(log.Fields{"bundle": bi.ID(), "endpoint": dest}).Info("Delivering bundle locally")
		handler.Deliver(bi.Bundle.Clone())
		bi.LocallyDelivered = true
		bi.AddForwardedTo(storage.NewNode(b.opt().LocalURI, b.localEID.String()))
	}

	return bi
}

// BundleForwarding implements section 4.3's bundle_forwarding.
func (b *BPA) BundleForwarding(bi storage.BundleInfo) {
	log.WithFields(log.Fields{"bundle": bi.ID()}).Debug("Forwarding bundle")

	bi.Retention = storage.RetentionForwardPending

	addressable := b.manager.Addressable()
	broadcastOnly := b.manager.BroadcastOnly()
	peers := b.store.GetNodes()

	next, success, reason := b.getRouter().Forward(bi, addressable, broadcastOnly, peers, b.nowMs())

	if success {
		next.Retention = storage.RetentionNone
		b.store.RemoveBundle(next.ID())
		log.WithFields(log.Fields{"bundle": next.ID()}).Info("Bundle forwarded successfully")
		return
	}

	if routing.IsNoFailure(reason) {
		evicted := b.store.Delay(next)
		for _, e := range evicted {
			b.bundleDeletion(e, routing.ReasonDepletedStorage)
		}
		return
	}

	if b.HasEndpoint(next.Bundle.PrimaryBlock.Destination) {
		next.Retention = storage.RetentionNone
		b.store.RemoveBundle(next.ID())
		return
	}

	b.bundleDeletion(next, reason)
}

// BundleDeletion implements section 4.3's bundle_deletion.
func (b *BPA) BundleDeletion(bi storage.BundleInfo, reason routing.ReasonCode) {
	b.bundleDeletion(bi, reason)
}

func (b *BPA) bundleDeletion(bi storage.BundleInfo, reason routing.ReasonCode) {
	log.WithFields(log.Fields{"bundle": bi.ID(), "reason": reason}).Info("Deleting bundle")

	b.store.RemoveBundle(bi.ID())
}

// CancelTransmission implements section 4.3's cancel_transmission: a bundle
// still resident in storage is removed; one in flight through the queues
// cannot be cancelled this way.
func (b *BPA) CancelTransmission(id string) bool {
	return b.store.RemoveBundle(id)
}
