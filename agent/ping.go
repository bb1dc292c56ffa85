package agent

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/core"
)

// Ping is a trivial application agent that answers every bundle delivered
// to it with a "pong" payload sent back to the sender, exercising
// Endpoint.Send end-to-end without requiring a real off-device client.
type Ping struct {
	endpoint *Endpoint
}

// NewPing creates and attaches a Ping agent under eid.
func NewPing(bpa *core.BPA, eid bundle.EndpointID) (*Ping, error) {
	p := &Ping{endpoint: New(eid)}

	if err := p.endpoint.Attach(bpa); err != nil {
		return nil, err
	}

	p.endpoint.SetCallback(p.pong)

	return p, nil
}

func (p *Ping) pong(_ []byte, _, source string, _ bundle.PrimaryBlock) {
	entry := log.WithFields(log.Fields{"ping": p.endpoint.EndpointURI(), "peer": source})

	if source == bundle.DtnNone().String() {
		entry.Debug("Ping: no report-to address to answer, dropping")
		return
	}

	if _, err := p.endpoint.Send([]byte("pong"), source); err != nil {
		entry.WithError(err).Warn("Ping: failed to send pong")
	} else {
		entry.Info("Ping: sent pong")
	}
}
