package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/core"
)

// REST is an HTTP application agent exposing an Endpoint over a small JSON
// API: POST to submit a bundle, GET to poll one out of the inbox. It gives
// a local application attached over a process boundary the same
// callback-or-poll surface section 4.7 specifies for in-process endpoints.
type REST struct {
	endpoint *Endpoint
	server   *http.Server
}

// restSendRequest is the JSON body of POST /endpoint/{id}/bundle.
type restSendRequest struct {
	Destination string `json:"destination"`
	Payload     []byte `json:"payload"`
	Anonymous   bool   `json:"anonymous"`
	LifetimeMs  uint64 `json:"lifetime_ms"`
}

// restPollResponse is the JSON body of GET /endpoint/{id}/bundle.
type restPollResponse struct {
	Available   bool   `json:"available"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Payload     []byte `json:"payload,omitempty"`
}

// NewREST creates and attaches a REST agent under eid, serving on addr.
// Call Start to begin listening.
func NewREST(bpa *core.BPA, eid bundle.EndpointID, addr string) (*REST, error) {
	r := &REST{endpoint: New(eid)}

	if err := r.endpoint.Attach(bpa); err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	router.HandleFunc("/endpoint/{id}/bundle", r.handleSend).Methods(http.MethodPost)
	router.HandleFunc("/endpoint/{id}/bundle", r.handlePoll).Methods(http.MethodGet)

	r.server = &http.Server{Addr: addr, Handler: router}

	return r, nil
}

// Start begins serving HTTP requests in the background.
func (r *REST) Start() {
	go func() {
		if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(log.Fields{"error": err, "endpoint": r.endpoint.EndpointURI()}).Error("REST agent stopped")
		}
	}()
}

// Close shuts the HTTP server down.
func (r *REST) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.server.Shutdown(ctx)
}

func (r *REST) handleSend(w http.ResponseWriter, req *http.Request) {
	var body restSendRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sendOpts := SendOptions{Anonymous: body.Anonymous, LifetimeMs: body.LifetimeMs}

	bndl, err := r.endpoint.Send(body.Payload, body.Destination, sendOpts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"bundle": bndl.ID()})
}

func (r *REST) handlePoll(w http.ResponseWriter, _ *http.Request) {
	b, ok := r.endpoint.Poll()

	resp := restPollResponse{Available: ok}
	if ok {
		resp.Source = b.PrimaryBlock.SourceNode.String()
		resp.Destination = b.PrimaryBlock.Destination.String()
		if pb, err := b.PayloadBlock(); err == nil {
			resp.Payload = pb.Value.(*bundle.PayloadBlock).Data()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
