// Package roi predicts where a tracked hand will be in upcoming frames so
// the expensive detector can search a narrowed region instead of the full
// image, forcing a full-frame pass only when motion or elapsed time warrants
// a drift correction.
package roi

import (
	"math"
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// velocityBlend is the weight given to the instantaneous velocity when
// updating the running velocity estimate.
const velocityBlend = 0.3

// Config holds tuning parameters for the predictor.
type Config struct {
	// MinSize and MaxSize bound the ROI edge length (normalized).
	MinSize float64
	MaxSize float64

	// VelocityMultiplier scales hand speed into extra ROI size.
	VelocityMultiplier float64

	// MovementThreshold is the centroid displacement between updates that
	// forces a full-frame detection pass.
	MovementThreshold float64

	// MaxFullFrameInterval is the longest the predictor will go without
	// forcing a full-frame pass, to correct accumulated drift.
	MaxFullFrameInterval time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinSize:              0.2,
		MaxSize:              0.5,
		VelocityMultiplier:   0.5,
		MovementThreshold:    0.03,
		MaxFullFrameInterval: 500 * time.Millisecond,
	}
}

// Region is a normalized rectangle. It always stays within [0,1]x[0,1].
type Region struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether the normalized point lies inside the region.
func (r Region) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}

// Union returns the smallest region covering both r and other.
func (r Region) Union(other Region) Region {
	x0 := math.Min(r.X, other.X)
	y0 := math.Min(r.Y, other.Y)
	x1 := math.Max(r.X+r.W, other.X+other.W)
	y1 := math.Max(r.Y+r.H, other.Y+other.H)
	return Region{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Predictor tracks one hand slot's centroid over time, estimates its
// velocity, and maintains a bounded search region centered on the predicted
// position.
//
// A Predictor is mutated only from the pipeline's orchestration goroutine
// and performs no internal locking.
type Predictor struct {
	config Config

	hasObservation bool
	lastCentroid   detector.Point2D
	lastTime       time.Time
	velocity       detector.Point2D
	predicted      detector.Point2D
	region         Region
	lastFullFrame  time.Time
}

// NewPredictor creates a Predictor with the given configuration. Zero-value
// fields fall back to defaults.
func NewPredictor(config Config) *Predictor {
	def := DefaultConfig()
	if config.MinSize <= 0 {
		config.MinSize = def.MinSize
	}
	if config.MaxSize <= 0 {
		config.MaxSize = def.MaxSize
	}
	if config.VelocityMultiplier <= 0 {
		config.VelocityMultiplier = def.VelocityMultiplier
	}
	if config.MovementThreshold <= 0 {
		config.MovementThreshold = def.MovementThreshold
	}
	if config.MaxFullFrameInterval <= 0 {
		config.MaxFullFrameInterval = def.MaxFullFrameInterval
	}

	return &Predictor{
		config: config,
		region: Region{X: 0, Y: 0, W: 1, H: 1},
	}
}

// Update consumes one detection cycle's result for this slot and reports
// whether the next detector pass must search the full frame.
//
// With no hand this cycle the previous prediction and region are retained;
// a full frame is still forced once MaxFullFrameInterval elapses. With a
// hand, displacement beyond MovementThreshold or the elapsed interval
// forces the full frame, velocity is blended into the running estimate,
// and the region is re-centered on the actual centroid (when forcing) or
// the linearly predicted one.
func (p *Predictor) Update(hand *detector.HandLandmarks, t time.Time) bool {
	if hand == nil {
		if p.fullFrameDue(t) {
			p.lastFullFrame = t
			return true
		}
		return false
	}

	centroid := hand.Centroid()

	if !p.hasObservation {
		p.hasObservation = true
		p.lastCentroid = centroid
		p.lastTime = t
		p.predicted = centroid
		p.lastFullFrame = t
		p.recomputeRegion(centroid)
		return true
	}

	dt := t.Sub(p.lastTime).Seconds()
	if dt > 0 {
		instVX := (centroid.X - p.lastCentroid.X) / dt
		instVY := (centroid.Y - p.lastCentroid.Y) / dt
		p.velocity.X = velocityBlend*instVX + (1-velocityBlend)*p.velocity.X
		p.velocity.Y = velocityBlend*instVY + (1-velocityBlend)*p.velocity.Y
	}

	dx := centroid.X - p.lastCentroid.X
	dy := centroid.Y - p.lastCentroid.Y
	displacement := math.Sqrt(dx*dx + dy*dy)

	force := displacement > p.config.MovementThreshold || p.fullFrameDue(t)

	// Linear prediction one step ahead, clamped to the frame.
	if dt > 0 {
		p.predicted = detector.Point2D{
			X: clamp01(centroid.X + p.velocity.X*dt),
			Y: clamp01(centroid.Y + p.velocity.Y*dt),
		}
	} else {
		p.predicted = centroid
	}

	p.lastCentroid = centroid
	p.lastTime = t

	if force {
		p.recomputeRegion(centroid)
		p.lastFullFrame = t
	} else {
		p.recomputeRegion(p.predicted)
	}

	return force
}

// fullFrameDue reports whether the drift-correction interval has elapsed.
func (p *Predictor) fullFrameDue(t time.Time) bool {
	return t.Sub(p.lastFullFrame) > p.config.MaxFullFrameInterval
}

// recomputeRegion rebuilds the square search region centered on the given
// point. Size grows with hand speed, clamped to [MinSize, MaxSize], and the
// square is shifted so it stays within the frame.
func (p *Predictor) recomputeRegion(center detector.Point2D) {
	speed := math.Sqrt(p.velocity.X*p.velocity.X + p.velocity.Y*p.velocity.Y)

	growth := speed * p.config.VelocityMultiplier
	maxGrowth := p.config.MaxSize - p.config.MinSize
	if growth > maxGrowth {
		growth = maxGrowth
	}
	size := p.config.MinSize + growth

	x := center.X - size/2
	y := center.Y - size/2
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x+size > 1 {
		x = 1 - size
	}
	if y+size > 1 {
		y = 1 - size
	}

	p.region = Region{X: x, Y: y, W: size, H: size}
}

// Region returns the current search region.
func (p *Predictor) Region() Region {
	return p.region
}

// Velocity returns the smoothed velocity estimate in normalized units per
// second.
func (p *Predictor) Velocity() detector.Point2D {
	return p.velocity
}

// PredictedCentroid returns the last linear position prediction.
func (p *Predictor) PredictedCentroid() detector.Point2D {
	return p.predicted
}

// Reset discards all state; the next update behaves like a first
// observation.
func (p *Predictor) Reset() {
	p.hasObservation = false
	p.lastCentroid = detector.Point2D{}
	p.lastTime = time.Time{}
	p.velocity = detector.Point2D{}
	p.predicted = detector.Point2D{}
	p.region = Region{X: 0, Y: 0, W: 1, H: 1}
	p.lastFullFrame = time.Time{}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
