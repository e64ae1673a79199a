package pipeline

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/telemetry"
)

func TestArchiver_RecordsNormalizedLandmarks(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "mudra.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	a := newArchiver(st, 8)
	a.begin("sess-1", time.Unix(1000, 0))

	lm := detector.OpenPalmLandmarks(0.5, 0.5)
	a.record(1, []HandState{{Slot: 0, Landmarks: &lm}}, telemetry.Sample{})
	a.finish(time.Unix(1001, 0))

	// The flush runs on a background goroutine.
	var frames []store.FrameRecord
	deadline := time.Now().Add(2 * time.Second)
	for {
		frames, err = st.Sessions().GetFrames("sess-1", 0, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(frames) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the archived frame")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var hands []struct {
		Landmarks  *detector.HandLandmarks `json:"landmarks"`
		Normalized *detector.HandLandmarks `json:"normalized"`
	}
	if err := json.Unmarshal(frames[0].Hands, &hands); err != nil {
		t.Fatalf("decode archived hands: %v", err)
	}
	if len(hands) != 1 {
		t.Fatalf("expected one archived hand, got %d", len(hands))
	}
	if hands[0].Normalized == nil {
		t.Fatal("expected normalized landmarks alongside the raw pose")
	}

	w := hands[0].Normalized.Points[detector.Wrist]
	if w.X != 0 || w.Y != 0 || w.Z != 0 {
		t.Errorf("expected wrist at the origin after normalization, got %+v", w)
	}
}
