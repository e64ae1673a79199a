package detector

import (
	"errors"
	"math"
	"testing"
)

func TestCentroid(t *testing.T) {
	hand := &HandLandmarks{}
	for i := range hand.Points {
		hand.Points[i] = Point3D{X: 0.4, Y: 0.6, Z: 0.0}
	}

	c := hand.Centroid()

	if math.Abs(c.X-0.4) > 1e-9 || math.Abs(c.Y-0.6) > 1e-9 {
		t.Errorf("expected centroid (0.4, 0.6), got (%f, %f)", c.X, c.Y)
	}
}

func TestCentroid_OpenPalm(t *testing.T) {
	hand := OpenPalmLandmarks(0.5, 0.5)
	c := hand.Centroid()

	// The synthetic palm is roughly centered; centroid should land nearby.
	if math.Abs(c.X-0.5) > 0.1 || math.Abs(c.Y-0.5) > 0.1 {
		t.Errorf("expected centroid near (0.5, 0.5), got (%f, %f)", c.X, c.Y)
	}
}

func TestNormalize_WristAtOrigin(t *testing.T) {
	hand := OpenPalmLandmarks(0.5, 0.5)

	n := hand.Normalize()

	w := n.Points[Wrist]
	if w.X != 0 || w.Y != 0 || w.Z != 0 {
		t.Errorf("expected wrist at origin after normalize, got %+v", w)
	}

	// Wrist to middle MCP distance must be 1.
	m := n.Points[MiddleMCP]
	d := math.Sqrt(m.X*m.X + m.Y*m.Y + m.Z*m.Z)
	if math.Abs(d-1.0) > 1e-9 {
		t.Errorf("expected unit wrist-to-middle-MCP distance, got %f", d)
	}
}

func TestNormalize_Nil(t *testing.T) {
	var hand *HandLandmarks
	if got := hand.Normalize(); got != nil {
		t.Errorf("expected nil for nil receiver, got %+v", got)
	}
}

func TestMockDetector_FixedHands(t *testing.T) {
	m := NewMockDetector()
	m.SetHands([]HandLandmarks{OpenPalmLandmarks(0.5, 0.5)})

	hands, err := m.Detect(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hands) != 1 {
		t.Fatalf("expected 1 hand, got %d", len(hands))
	}
}

func TestMockDetector_Sequence(t *testing.T) {
	m := NewMockDetector()
	m.SetSequence([][]HandLandmarks{
		{OpenPalmLandmarks(0.2, 0.2)},
		{OpenPalmLandmarks(0.5, 0.5)},
		nil,
	})

	first, _ := m.Detect(nil)
	second, _ := m.Detect(nil)
	third, _ := m.Detect(nil)
	fourth, _ := m.Detect(nil)

	if len(first) != 1 || len(second) != 1 {
		t.Fatal("expected hands from first two sequence entries")
	}
	if first[0].Centroid() == second[0].Centroid() {
		t.Error("expected sequence entries to differ")
	}
	if third != nil || fourth != nil {
		t.Error("expected exhausted sequence to repeat its last entry")
	}
	if m.Calls() != 4 {
		t.Errorf("expected 4 recorded calls, got %d", m.Calls())
	}
}

func TestMockDetector_Error(t *testing.T) {
	m := NewMockDetector()
	m.SetError(errors.New("engine down"))

	if _, err := m.Detect(nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxHands != 2 {
		t.Errorf("expected MaxHands 2, got %d", cfg.MaxHands)
	}
	if cfg.MinConfidence != 0.5 || cfg.MinTrackingConf != 0.5 {
		t.Errorf("expected 0.5 confidence thresholds, got %f %f", cfg.MinConfidence, cfg.MinTrackingConf)
	}
}
