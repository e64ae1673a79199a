package api

import (
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/pipeline"
)

// ControlHandler starts and stops the pipeline and reports its status.
type ControlHandler struct {
	pipeline *pipeline.Orchestrator
}

// NewControlHandler creates a new ControlHandler for the given pipeline.
func NewControlHandler(p *pipeline.Orchestrator) *ControlHandler {
	return &ControlHandler{pipeline: p}
}

type statusResponse struct {
	Running   bool        `json:"running"`
	Telemetry interface{} `json:"telemetry"`
}

// ServeHTTP implements the http.Handler interface and routes requests to
// appropriate methods.
func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/pipeline, /api/pipeline/start, /api/pipeline/stop
	action := strings.TrimPrefix(r.URL.Path, "/api/pipeline")
	action = strings.TrimPrefix(action, "/")

	switch action {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.status(w, r)
	case "start":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.start(w, r)
	case "stop":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.stop(w, r)
	default:
		http.NotFound(w, r)
	}
}

// status handles GET /api/pipeline and returns the running flag plus the
// current telemetry snapshot.
func (h *ControlHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Running:   h.pipeline.Running(),
		Telemetry: h.pipeline.Recorder().Snapshot(),
	})
}

// start handles POST /api/pipeline/start.
func (h *ControlHandler) start(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.Start(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to start pipeline: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"running": true})
}

// stop handles POST /api/pipeline/stop.
func (h *ControlHandler) stop(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"running": false})
}
