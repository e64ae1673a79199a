package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/pipeline"
)

func testPipeline(t *testing.T) *pipeline.Orchestrator {
	t.Helper()

	cfg := pipeline.DefaultConfig()
	cfg.IdleTimeout = time.Hour
	cfg.ArchiveBatchSize = 0

	p := pipeline.New(cfg, capture.NewMockCamera(nil, true), detector.NewMockDetector(), nil, nil)
	t.Cleanup(p.Close)

	return p
}

func TestRegionsHandler_CaptureRequiresRunningPipeline(t *testing.T) {
	h := NewRegionsHandler(testPipeline(t))

	req := httptest.NewRequest(http.MethodPost, "/api/regions", strings.NewReader(`{"id":"desk"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestRegionsHandler_Capture(t *testing.T) {
	p := testPipeline(t)
	if err := p.Start(); err != nil {
		t.Fatalf("start pipeline: %v", err)
	}
	defer p.Stop()

	h := NewRegionsHandler(p)

	t.Run("accepts explicit id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/regions", strings.NewReader(`{"id":"desk"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
		}

		var resp struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.ID != "desk" {
			t.Errorf("expected id desk, got %q", resp.ID)
		}
	})

	t.Run("generates id when body omitted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/regions", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
		}

		var resp struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.ID == "" {
			t.Error("expected generated region id")
		}
	})
}

func TestRegionsHandler_ListAndDelete(t *testing.T) {
	p := testPipeline(t)
	h := NewRegionsHandler(p)

	req := httptest.NewRequest(http.MethodGet, "/api/regions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp struct {
		Regions []string `json:"regions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Regions) != 0 {
		t.Errorf("expected no regions, got %v", resp.Regions)
	}

	// Deleting an unknown region is idempotent.
	req = httptest.NewRequest(http.MethodDelete, "/api/regions/desk", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
}

func TestControlHandler_StatusStartStop(t *testing.T) {
	p := testPipeline(t)
	h := NewControlHandler(p)

	status := func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/pipeline", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var resp struct {
			Running bool `json:"running"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		return resp.Running
	}

	if status() {
		t.Fatal("expected pipeline stopped initially")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/pipeline/start", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !status() {
		t.Error("expected pipeline running after start")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/pipeline/stop", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if status() {
		t.Error("expected pipeline stopped after stop")
	}
}

func TestControlHandler_UnknownAction(t *testing.T) {
	h := NewControlHandler(testPipeline(t))

	req := httptest.NewRequest(http.MethodPost, "/api/pipeline/reset", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
