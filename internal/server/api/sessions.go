package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/mudra/internal/store"
)

// defaultFrameLimit bounds a single frames page when the client does not
// ask for one.
const defaultFrameLimit = 500

// SessionsHandler serves archived tracking sessions and their frames.
type SessionsHandler struct {
	store *store.Store
}

// NewSessionsHandler creates a new SessionsHandler with the given store.
func NewSessionsHandler(s *store.Store) *SessionsHandler {
	return &SessionsHandler{store: s}
}

// ServeHTTP implements the http.Handler interface and routes requests to
// appropriate methods.
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/sessions, /api/sessions/{id},
	// /api/sessions/{id}/frames
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	if id, ok := strings.CutSuffix(path, "/frames"); ok {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.frames(w, r, id)
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

type listSessionsResponse struct {
	Sessions []store.Session `json:"sessions"`
}

type framesResponse struct {
	SessionID string              `json:"session_id"`
	Offset    int                 `json:"offset"`
	Frames    []store.FrameRecord `json:"frames"`
}

// list handles GET /api/sessions and returns all sessions, newest first.
func (h *SessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

// frames handles GET /api/sessions/{id}/frames with optional offset and
// limit query parameters.
func (h *SessionsHandler) frames(w http.ResponseWriter, r *http.Request, id string) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultFrameLimit)
	if offset < 0 || limit <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid offset or limit")
		return
	}

	frames, err := h.store.Sessions().GetFrames(id, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load frames")
		return
	}
	if frames == nil {
		frames = []store.FrameRecord{}
	}

	writeJSON(w, http.StatusOK, framesResponse{
		SessionID: id,
		Offset:    offset,
		Frames:    frames,
	})
}

// delete handles DELETE /api/sessions/{id}; frames go with the session.
func (h *SessionsHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Sessions().Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
