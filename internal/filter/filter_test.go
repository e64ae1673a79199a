package filter

import (
	"math"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

func TestChannel_FirstSamplePassthrough(t *testing.T) {
	c := NewChannel(DefaultConfig())

	got := c.Apply(0.42, time.Unix(0, 0))

	if got != 0.42 {
		t.Errorf("expected first sample returned unchanged, got %f", got)
	}
}

func TestChannel_ConstantInputConverges(t *testing.T) {
	// A constant input held over many samples must converge to the input
	// with no residual offset.
	c := NewChannel(DefaultConfig())

	start := time.Unix(0, 0)
	interval := 33 * time.Millisecond
	const input = 0.7

	var got float64
	for i := 0; i < 60; i++ {
		got = c.Apply(input, start.Add(time.Duration(i)*interval))
	}

	if math.Abs(got-input) > 1e-6 {
		t.Errorf("expected convergence to %f after 60 samples, got %f", input, got)
	}
}

func TestChannel_BetaReducesStepLag(t *testing.T) {
	// A step input must reach 95% of the step in fewer samples with a
	// nonzero beta than with beta=0.
	samplesTo95 := func(beta float64) int {
		cfg := Config{MinCutoff: 1.0, Beta: beta, DCutoff: 1.0}
		c := NewChannel(cfg)

		start := time.Unix(0, 0)
		interval := 33 * time.Millisecond

		// Settle at zero first.
		tick := 0
		for ; tick < 20; tick++ {
			c.Apply(0, start.Add(time.Duration(tick)*interval))
		}

		// Step to 1.0 and count samples until 0.95.
		for i := 0; i < 500; i++ {
			got := c.Apply(1.0, start.Add(time.Duration(tick+i)*interval))
			if got >= 0.95 {
				return i
			}
		}
		return 500
	}

	fast := samplesTo95(0.05)
	slow := samplesTo95(0)

	if fast >= slow {
		t.Errorf("expected beta=0.05 to reach 95%% faster than beta=0, got %d vs %d samples", fast, slow)
	}
}

func TestChannel_NonMonotonicTimestamp(t *testing.T) {
	c := NewChannel(DefaultConfig())

	start := time.Unix(0, 0)
	c.Apply(0.1, start)
	c.Apply(0.2, start.Add(33*time.Millisecond))

	// Same timestamp again: must not NaN or panic, it reuses the previous dt.
	got := c.Apply(0.3, start.Add(33*time.Millisecond))

	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Errorf("expected finite output with repeated timestamp, got %f", got)
	}
}

func TestChannel_DuplicateFirstTimestampHoldsValue(t *testing.T) {
	c := NewChannel(DefaultConfig())

	start := time.Unix(0, 0)
	c.Apply(0.5, start)

	// Second sample at the first sample's timestamp: no interval has been
	// established yet, so a noisy value must not replace the filtered state.
	got := c.Apply(3.0, start)
	if got != 0.5 {
		t.Errorf("expected filtered value held with no usable interval, got %f", got)
	}

	// Normal cadence afterwards still converges.
	var out float64
	for i := 1; i <= 60; i++ {
		out = c.Apply(0.5, start.Add(time.Duration(i)*33*time.Millisecond))
	}
	if math.Abs(out-0.5) > 1e-6 {
		t.Errorf("expected convergence to 0.5 after recovery, got %f", out)
	}
}

func TestChannel_Reset(t *testing.T) {
	c := NewChannel(DefaultConfig())

	start := time.Unix(0, 0)
	c.Apply(0.1, start)
	c.Apply(0.9, start.Add(33*time.Millisecond))
	c.Reset()

	got := c.Apply(0.5, start.Add(66*time.Millisecond))
	if got != 0.5 {
		t.Errorf("expected passthrough after reset, got %f", got)
	}
}

func TestBank_LazySlotCreation(t *testing.T) {
	b := NewBank(DefaultConfig())

	if b.ActiveSlots() != 0 {
		t.Fatalf("expected empty bank, got %d slots", b.ActiveSlots())
	}

	hand := &detector.HandLandmarks{Handedness: "Right", Score: 0.9}
	filtered := b.Apply(0, hand, time.Unix(0, 0))

	if filtered == nil {
		t.Fatal("expected filtered hand, got nil")
	}
	if filtered.Handedness != "Right" || filtered.Score != 0.9 {
		t.Errorf("expected handedness and score to carry over, got %q %f", filtered.Handedness, filtered.Score)
	}
	if b.ActiveSlots() != 1 {
		t.Errorf("expected 1 slot after first apply, got %d", b.ActiveSlots())
	}
}

func TestBank_FirstApplyPassthrough(t *testing.T) {
	b := NewBank(DefaultConfig())

	hand := &detector.HandLandmarks{}
	for i := range hand.Points {
		hand.Points[i] = detector.Point3D{X: float64(i) * 0.01, Y: 0.5, Z: -0.02}
	}

	filtered := b.Apply(0, hand, time.Unix(0, 0))

	for i := range hand.Points {
		if filtered.Points[i] != hand.Points[i] {
			t.Fatalf("landmark %d: expected passthrough on first sample, got %+v", i, filtered.Points[i])
		}
	}
}

func TestBank_ReleaseIdle(t *testing.T) {
	b := NewBank(DefaultConfig())

	start := time.Unix(0, 0)
	hand := &detector.HandLandmarks{}

	b.Apply(0, hand, start)
	b.Apply(1, hand, start.Add(900*time.Millisecond))

	released := b.ReleaseIdle(start.Add(1*time.Second), 500*time.Millisecond)

	if len(released) != 1 || released[0] != 0 {
		t.Errorf("expected slot 0 released, got %v", released)
	}
	if b.ActiveSlots() != 1 {
		t.Errorf("expected 1 remaining slot, got %d", b.ActiveSlots())
	}
}

func TestBank_NilHand(t *testing.T) {
	b := NewBank(DefaultConfig())

	if got := b.Apply(0, nil, time.Unix(0, 0)); got != nil {
		t.Errorf("expected nil for nil hand, got %+v", got)
	}
	if b.ActiveSlots() != 0 {
		t.Errorf("expected no slot created for nil hand, got %d", b.ActiveSlots())
	}
}
