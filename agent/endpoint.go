// Package agent implements the local-application attachment surface of
// section 4.7: an Endpoint owns a local EID and either a callback or a
// polling inbox, and constructs outbound bundles on Send. It also collects
// a few richer application agents (Ping, REST, WebSocket) that the
// distilled specification compresses into "callback or polling inbox" but
// which a complete node needs to be useful off-device.
package agent

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/core"
)

// ErrNotRegistered is returned by Endpoint.Send when the endpoint has not
// been attached to a BPA via Attach.
var ErrNotRegistered = errors.New("agent: endpoint is not attached to a BPA")

// DeliveryCallback receives a bundle delivered to an Endpoint: the payload
// bytes, this endpoint's own URI (the bundle's destination), the sender's
// URI, and the bundle's primary block for any caller that needs more than
// the payload.
type DeliveryCallback func(payload []byte, destination, source string, primary bundle.PrimaryBlock)

// Endpoint is the local-application attachment point of section 4.7. A
// freshly created Endpoint buffers deliveries in an inbox until either
// SetCallback installs a callback or Poll drains it. Send fails with
// ErrNotRegistered until Attach has registered it with a BPA.
type Endpoint struct {
	eid bundle.EndpointID

	mu       sync.Mutex
	bpa      *core.BPA
	callback DeliveryCallback
	inbox    []bundle.Bundle
}

// New creates an unattached Endpoint for the given local EID.
func New(eid bundle.EndpointID) *Endpoint {
	return &Endpoint{eid: eid}
}

// EID returns this endpoint's local endpoint ID.
func (e *Endpoint) EID() bundle.EndpointID {
	return e.eid
}

// EndpointURI satisfies core.DeliveryHandler.
func (e *Endpoint) EndpointURI() string {
	return e.eid.String()
}

// Attach registers this endpoint with bpa under its own URI, as the weak
// back-reference the design notes describe (the endpoint holds a plain
// pointer to the BPA; the BPA's registry owns the endpoint via the
// DeliveryHandler interface, so ownership flows one way).
func (e *Endpoint) Attach(bpa *core.BPA) error {
	if err := bpa.RegisterEndpoint(e); err != nil {
		return err
	}

	e.mu.Lock()
	e.bpa = bpa
	e.mu.Unlock()

	return nil
}

// SetCallback installs f as this endpoint's delivery callback. Any bundles
// already buffered in the inbox are delivered to f synchronously, in
// arrival order, before the inbox is cleared, so no delivery is silently
// dropped by attaching a callback late.
func (e *Endpoint) SetCallback(f DeliveryCallback) {
	e.mu.Lock()
	pending := e.inbox
	e.inbox = nil
	e.callback = f
	e.mu.Unlock()

	for _, b := range pending {
		e.invoke(f, b)
	}
}

// Deliver satisfies core.DeliveryHandler: it either invokes the installed
// callback or appends b to the inbox for a later Poll.
func (e *Endpoint) Deliver(b bundle.Bundle) {
	e.mu.Lock()
	f := e.callback
	if f == nil {
		e.inbox = append(e.inbox, b)
	}
	e.mu.Unlock()

	if f != nil {
		e.invoke(f, b)
	}
}

func (e *Endpoint) invoke(f DeliveryCallback, b bundle.Bundle) {
	var data []byte
	if pb, err := b.PayloadBlock(); err == nil {
		data = pb.Value.(*bundle.PayloadBlock).Data()
	}

	f(data, b.PrimaryBlock.Destination.String(), b.PrimaryBlock.SourceNode.String(), b.PrimaryBlock)
}

// Poll drains one buffered bundle from the inbox, in arrival order. It only
// returns bundles when no callback is installed; ok is false when the inbox
// is empty.
func (e *Endpoint) Poll() (b bundle.Bundle, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.inbox) == 0 {
		return bundle.Bundle{}, false
	}

	b, e.inbox = e.inbox[0], e.inbox[1:]
	return b, true
}

// SendOptions overrides Send's defaults, drawn from the attached BPA's
// Options when a field is left zero.
type SendOptions struct {
	// Anonymous strips the source and report-to EIDs to dtn:none.
	Anonymous bool

	// LifetimeMs overrides the BPA's DefaultLifetimeMs when nonzero.
	LifetimeMs uint64
}

// Send constructs a bundle carrying data addressed to destination and
// submits it to the attached BPA's BundleTransmission, per section 4.7.
// Anonymous sends stamp dtn:none as both source and report-to. When the
// node has no synchronized clock, the creation time is left at the DTN
// epoch and a zero-valued BundleAgeBlock is attached, as RFC 9171 requires
// for unsynchronized originators. Returns ErrNotRegistered if this endpoint
// has not been Attach-ed.
func (e *Endpoint) Send(data []byte, destination string, opts ...SendOptions) (bundle.Bundle, error) {
	e.mu.Lock()
	bpa := e.bpa
	e.mu.Unlock()

	if bpa == nil {
		return bundle.Bundle{}, ErrNotRegistered
	}

	var so SendOptions
	if len(opts) > 0 {
		so = opts[0]
	}

	dst, err := bundle.NewEndpointID(destination)
	if err != nil {
		return bundle.Bundle{}, err
	}

	cfg := bpa.Options()

	lifetime := so.LifetimeMs
	if lifetime == 0 {
		lifetime = cfg.DefaultLifetimeMs
	}

	bldr := bundle.Builder().
		Destination(dst).
		Lifetime(lifetime).
		PayloadBlock(data)

	if so.Anonymous {
		bldr = bldr.Source(bundle.DtnNone()).ReportTo(bundle.DtnNone())
	} else {
		bldr = bldr.Source(e.eid).ReportTo(e.eid)
	}

	if cfg.HasAccurateClock {
		bldr = bldr.CreationTimestampNow()
	} else {
		bldr = bldr.CreationTimestampEpoch().BundleAgeBlock(uint64(0))
	}

	if cfg.AttachHopCount {
		bldr = bldr.HopCountBlock(int(cfg.HopLimit))
	}

	bndl, err := bldr.Build()
	if err != nil {
		return bundle.Bundle{}, err
	}

	bpa.NextSequenceNumber(&bndl)

	log.WithFields(log.Fields{
		"bundle":      bndl.ID(),
		"destination": destination,
	}).Info("Endpoint: submitting bundle for transmission")

	bpa.BundleTransmission(bndl)

	return bndl, nil
}
