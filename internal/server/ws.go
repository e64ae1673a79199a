package server

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// StateHandler pushes pipeline state snapshots over a WebSocket. Each
// connection gets its own latest-wins subscription, so a slow client
// observes dropped intermediates rather than growing lag.
type StateHandler struct {
	pipeline *pipeline.Orchestrator
}

// NewStateHandler creates a new StateHandler for the given pipeline.
func NewStateHandler(p *pipeline.Orchestrator) *StateHandler {
	return &StateHandler{pipeline: p}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	states := h.pipeline.Subscribe()
	defer h.pipeline.Unsubscribe(states)

	// Drain client messages to observe disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case st := <-states:
			if err := conn.WriteJSON(st); err != nil {
				return
			}
		}
	}
}
