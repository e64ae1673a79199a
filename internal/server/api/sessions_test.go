package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func seedSession(t *testing.T, s *store.Store, id string, frames int) {
	t.Helper()

	if err := s.Sessions().Create(id, time.Now()); err != nil {
		t.Fatalf("create session: %v", err)
	}

	records := make([]store.FrameRecord, 0, frames)
	for i := 0; i < frames; i++ {
		records = append(records, store.FrameRecord{
			FrameNumber: i + 1,
			Hands:       json.RawMessage(`[]`),
			Performance: json.RawMessage(`{}`),
		})
	}
	if err := s.Sessions().AppendFrames(id, records); err != nil {
		t.Fatalf("append frames: %v", err)
	}
}

func TestSessionsHandler_List(t *testing.T) {
	s := testStore(t)
	seedSession(t, s, "session-a", 3)
	h := NewSessionsHandler(s)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp struct {
		Sessions []store.Session `json:"sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(resp.Sessions))
	}
	if resp.Sessions[0].ID != "session-a" || resp.Sessions[0].Frames != 3 {
		t.Errorf("unexpected session: %+v", resp.Sessions[0])
	}
}

func TestSessionsHandler_ListEmpty(t *testing.T) {
	h := NewSessionsHandler(testStore(t))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if string(resp["sessions"]) != "[]" {
		t.Errorf("expected empty array, got %s", resp["sessions"])
	}
}

func TestSessionsHandler_Frames(t *testing.T) {
	s := testStore(t)
	seedSession(t, s, "session-b", 10)
	h := NewSessionsHandler(s)

	t.Run("returns all frames by default", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/session-b/frames", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var resp struct {
			SessionID string              `json:"session_id"`
			Frames    []store.FrameRecord `json:"frames"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.SessionID != "session-b" {
			t.Errorf("expected session id session-b, got %s", resp.SessionID)
		}
		if len(resp.Frames) != 10 {
			t.Errorf("expected 10 frames, got %d", len(resp.Frames))
		}
	})

	t.Run("honors offset and limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/session-b/frames?offset=4&limit=3", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var resp struct {
			Offset int                 `json:"offset"`
			Frames []store.FrameRecord `json:"frames"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Offset != 4 {
			t.Errorf("expected offset 4, got %d", resp.Offset)
		}
		if len(resp.Frames) != 3 {
			t.Fatalf("expected 3 frames, got %d", len(resp.Frames))
		}
		if resp.Frames[0].FrameNumber != 5 {
			t.Errorf("expected first frame number 5, got %d", resp.Frames[0].FrameNumber)
		}
	})

	t.Run("rejects negative offset", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/session-b/frames?offset=-1", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})
}

func TestSessionsHandler_Delete(t *testing.T) {
	s := testStore(t)
	seedSession(t, s, "session-c", 2)
	h := NewSessionsHandler(s)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/session-c", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	sessions, err := s.Sessions().List()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected session removed, got %d remaining", len(sessions))
	}
}

func TestSessionsHandler_MethodNotAllowed(t *testing.T) {
	h := NewSessionsHandler(testStore(t))

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestSettingsHandler(t *testing.T) {
	s := testStore(t)
	h := NewSettingsHandler(s)

	t.Run("get missing key returns 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/settings/camera_id", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("put then get round-trips", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/settings/camera_id", strings.NewReader(`{"value":"2"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		req = httptest.NewRequest(http.MethodGet, "/api/settings/camera_id", nil)
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var resp struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Value != "2" {
			t.Errorf("expected value 2, got %q", resp.Value)
		}
	})
}
