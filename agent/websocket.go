package agent

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/core"
)

// wsMessage is the JSON envelope pushed to a connected WebSocket client for
// each delivered bundle.
type wsMessage struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Payload     []byte `json:"payload"`
}

// WebSocket is a push-delivery application agent: instead of buffering
// deliveries in an inbox, it forwards them immediately to a connected
// client. This realizes section 4.7's "callback" variant over a network
// boundary instead of an in-process closure.
type WebSocket struct {
	endpoint *Endpoint
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewWebSocket creates and attaches a WebSocket agent under eid. Call
// Handler to obtain the http.HandlerFunc to mount on a server mux.
func NewWebSocket(bpa *core.BPA, eid bundle.EndpointID) (*WebSocket, error) {
	ws := &WebSocket{
		endpoint: New(eid),
		clients:  make(map[*websocket.Conn]bool),
	}

	if err := ws.endpoint.Attach(bpa); err != nil {
		return nil, err
	}

	ws.endpoint.SetCallback(ws.broadcast)

	return ws, nil
}

// Handler returns the http.HandlerFunc that upgrades incoming requests to
// WebSocket connections and, on each one, reads outgoing send requests.
func (ws *WebSocket) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Warn("WebSocket: upgrade failed")
			return
		}

		ws.mu.Lock()
		ws.clients[conn] = true
		ws.mu.Unlock()

		go ws.readLoop(conn)
	}
}

func (ws *WebSocket) readLoop(conn *websocket.Conn) {
	defer func() {
		ws.mu.Lock()
		delete(ws.clients, conn)
		ws.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var req restSendRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		sendOpts := SendOptions{Anonymous: req.Anonymous, LifetimeMs: req.LifetimeMs}
		if _, err := ws.endpoint.Send(req.Payload, req.Destination, sendOpts); err != nil {
			log.WithFields(log.Fields{"error": err}).Warn("WebSocket: send failed")
		}
	}
}

func (ws *WebSocket) broadcast(payload []byte, destination, source string, _ bundle.PrimaryBlock) {
	msg := wsMessage{Source: source, Destination: destination, Payload: payload}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	for conn := range ws.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.WithFields(log.Fields{"error": err}).Debug("WebSocket: dropping unresponsive client")
			_ = conn.Close()
			delete(ws.clients, conn)
		}
	}
}
