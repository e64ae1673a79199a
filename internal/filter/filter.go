// Package filter provides adaptive low-pass smoothing for noisy landmark
// coordinate streams. The filter raises its cutoff frequency with estimated
// signal speed, so slow jitter is smoothed aggressively while fast motion
// passes through with little lag (the one-euro approach).
package filter

import (
	"math"
	"time"
)

// Config holds tuning parameters for a smoothing channel.
type Config struct {
	// MinCutoff is the cutoff frequency in Hz applied when the signal is
	// still. Lower values smooth more.
	MinCutoff float64

	// Beta scales how quickly the cutoff grows with signal speed.
	// Higher values trade smoothness for responsiveness during fast motion.
	Beta float64

	// DCutoff is the fixed cutoff frequency used to smooth the derivative
	// estimate itself.
	DCutoff float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinCutoff: 1.0,
		Beta:      0.007,
		DCutoff:   1.0,
	}
}

// Channel filters one scalar signal. It keeps the previous raw value,
// filtered value, filtered derivative and timestamp between samples.
type Channel struct {
	config Config

	prevRaw      float64
	prevFiltered float64
	prevDeriv    float64
	prevTime     time.Time
	prevDT       float64
	primed       bool
}

// NewChannel creates a Channel with the given configuration.
func NewChannel(config Config) *Channel {
	return &Channel{config: config}
}

// alphaFor converts a cutoff frequency and sample interval into the blend
// factor of a first-order low-pass filter.
func alphaFor(cutoff, dt float64) float64 {
	tau := 1.0 / (2.0 * math.Pi * cutoff)
	return 1.0 / (1.0 + tau/dt)
}

// Apply filters one sample taken at time t and returns the smoothed value.
//
// The first sample for a channel is returned unchanged since no derivative
// can be estimated yet. Non-monotonic timestamps (dt <= 0) reuse the
// previous interval instead of dividing by zero.
func (c *Channel) Apply(x float64, t time.Time) float64 {
	if !c.primed {
		c.prevRaw = x
		c.prevFiltered = x
		c.prevDeriv = 0
		c.prevTime = t
		c.primed = true
		return x
	}

	dt := t.Sub(c.prevTime).Seconds()
	if dt <= 0 {
		dt = c.prevDT
	}
	if dt <= 0 {
		// No usable interval yet: the sample shares the first sample's
		// timestamp, so hold the filtered value instead of letting an
		// outlier overwrite it.
		c.prevRaw = x
		return c.prevFiltered
	}

	// Smooth the raw derivative with the fixed derivative cutoff.
	deriv := (x - c.prevFiltered) / dt
	dAlpha := alphaFor(c.config.DCutoff, dt)
	smoothedDeriv := dAlpha*deriv + (1-dAlpha)*c.prevDeriv

	// Speed-adaptive cutoff.
	cutoff := c.config.MinCutoff + c.config.Beta*math.Abs(smoothedDeriv)
	alpha := alphaFor(cutoff, dt)
	filtered := alpha*x + (1-alpha)*c.prevFiltered

	c.prevRaw = x
	c.prevFiltered = filtered
	c.prevDeriv = smoothedDeriv
	c.prevTime = t
	c.prevDT = dt

	return filtered
}

// Reset clears the channel state so the next sample is treated as the first.
func (c *Channel) Reset() {
	c.prevRaw = 0
	c.prevFiltered = 0
	c.prevDeriv = 0
	c.prevTime = time.Time{}
	c.prevDT = 0
	c.primed = false
}
