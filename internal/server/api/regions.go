package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/pipeline"
)

// RegionsHandler manages tracked region references: capturing a reference
// from the live camera, listing known regions, and forgetting them.
type RegionsHandler struct {
	pipeline *pipeline.Orchestrator
}

// NewRegionsHandler creates a new RegionsHandler for the given pipeline.
func NewRegionsHandler(p *pipeline.Orchestrator) *RegionsHandler {
	return &RegionsHandler{pipeline: p}
}

// ServeHTTP implements the http.Handler interface and routes requests to
// appropriate methods.
func (h *RegionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/regions or /api/regions/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/regions")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.capture(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id := path
	switch r.Method {
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type captureRegionRequest struct {
	ID string `json:"id"`
}

type regionResponse struct {
	ID string `json:"id"`
}

type listRegionsResponse struct {
	Regions []string `json:"regions"`
}

// list handles GET /api/regions and returns the ids of all regions with a
// stored reference.
func (h *RegionsHandler) list(w http.ResponseWriter, r *http.Request) {
	ids := h.pipeline.Tracker().Regions()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, listRegionsResponse{Regions: ids})
}

// capture handles POST /api/regions. The reference is extracted from the
// next processed frame, so the region shows up in tracking results shortly
// after this call returns.
func (h *RegionsHandler) capture(w http.ResponseWriter, r *http.Request) {
	var req captureRegionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
	}

	if !h.pipeline.Running() {
		writeError(w, http.StatusConflict, "Pipeline is not running")
		return
	}

	id := h.pipeline.CaptureReference(req.ID)
	writeJSON(w, http.StatusAccepted, regionResponse{ID: id})
}

// delete handles DELETE /api/regions/{id} and forgets a region reference.
func (h *RegionsHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	h.pipeline.Tracker().ClearReference(id)
	w.WriteHeader(http.StatusNoContent)
}
