// Package telemetry accumulates named per-stage timings for processed
// frames and publishes immutable snapshots plus Prometheus metrics.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultWindow is how many processed frames the rolling averages cover.
const DefaultWindow = 120

// Sample is an immutable performance snapshot. Stage durations are rolling
// averages in milliseconds over the recorder's window.
type Sample struct {
	Stages          map[string]float64 `json:"stages"`
	TotalMS         float64            `json:"total_ms"`
	FPS             float64            `json:"estimated_fps"`
	FramesProcessed uint64             `json:"frames_processed"`
	FramesSkipped   uint64             `json:"frames_skipped"`
	SkipLevel       int                `json:"skip_level"`
}

// frameRecord is the timing of one processed frame.
type frameRecord struct {
	stages map[string]time.Duration
	total  time.Duration
	at     time.Time
}

// Recorder accumulates frame timings. Consumers only ever see Snapshot
// copies, never the live accumulator.
type Recorder struct {
	mu        sync.Mutex
	window    int
	frames    []frameRecord
	next      int
	filled    int
	processed uint64
	skipped   uint64
	skipLevel int

	framesProcessedTotal prometheus.Counter
	framesSkippedTotal   prometheus.Counter
	skipLevelGauge       prometheus.Gauge
	fpsGauge             prometheus.Gauge
	stageDuration        *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with the given rolling window size and
// registers its Prometheus collectors with reg. A window <= 0 uses
// DefaultWindow; a nil reg skips metric registration (useful in tests).
func NewRecorder(window int, reg prometheus.Registerer) *Recorder {
	if window <= 0 {
		window = DefaultWindow
	}

	r := &Recorder{
		window: window,
		frames: make([]frameRecord, window),
	}

	if reg != nil {
		factory := promauto.With(reg)
		r.framesProcessedTotal = factory.NewCounter(prometheus.CounterOpts{
			Name: "mudra_frames_processed_total",
			Help: "Frames dispatched through the detection pipeline.",
		})
		r.framesSkippedTotal = factory.NewCounter(prometheus.CounterOpts{
			Name: "mudra_frames_skipped_total",
			Help: "Ticks skipped by the adaptive frame scheduler.",
		})
		r.skipLevelGauge = factory.NewGauge(prometheus.GaugeOpts{
			Name: "mudra_skip_level",
			Help: "Current adaptive skip counter (0-5).",
		})
		r.fpsGauge = factory.NewGauge(prometheus.GaugeOpts{
			Name: "mudra_estimated_fps",
			Help: "Estimated processed frames per second over the rolling window.",
		})
		r.stageDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mudra_stage_duration_ms",
			Help:    "Per-stage processing duration in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 20, 33, 50, 100, 250},
		}, []string{"stage"})
	}

	return r
}

// RecordFrame records the named stage durations of one processed frame.
func (r *Recorder) RecordFrame(stages map[string]time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total time.Duration
	copied := make(map[string]time.Duration, len(stages))
	for name, d := range stages {
		copied[name] = d
		total += d
	}

	r.frames[r.next] = frameRecord{stages: copied, total: total, at: time.Now()}
	r.next = (r.next + 1) % r.window
	if r.filled < r.window {
		r.filled++
	}
	r.processed++

	if r.framesProcessedTotal != nil {
		r.framesProcessedTotal.Inc()
		for name, d := range copied {
			r.stageDuration.WithLabelValues(name).Observe(float64(d) / float64(time.Millisecond))
		}
		r.fpsGauge.Set(r.estimateFPSLocked())
	}
}

// RecordSkip records one skipped tick at the given skip level.
func (r *Recorder) RecordSkip(level int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.skipped++
	r.skipLevel = level

	if r.framesSkippedTotal != nil {
		r.framesSkippedTotal.Inc()
		r.skipLevelGauge.Set(float64(level))
	}
}

// SetSkipLevel records the current skip level without counting a skip.
func (r *Recorder) SetSkipLevel(level int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.skipLevel = level
	if r.skipLevelGauge != nil {
		r.skipLevelGauge.Set(float64(level))
	}
}

// Snapshot returns an immutable copy of the current rolling state.
func (r *Recorder) Snapshot() Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	stages := make(map[string]float64)
	var totalMS float64

	if r.filled > 0 {
		sums := make(map[string]time.Duration)
		var totalSum time.Duration
		for i := 0; i < r.filled; i++ {
			rec := &r.frames[i]
			for name, d := range rec.stages {
				sums[name] += d
			}
			totalSum += rec.total
		}
		for name, sum := range sums {
			stages[name] = float64(sum) / float64(r.filled) / float64(time.Millisecond)
		}
		totalMS = float64(totalSum) / float64(r.filled) / float64(time.Millisecond)
	}

	return Sample{
		Stages:          stages,
		TotalMS:         totalMS,
		FPS:             r.estimateFPSLocked(),
		FramesProcessed: r.processed,
		FramesSkipped:   r.skipped,
		SkipLevel:       r.skipLevel,
	}
}

// estimateFPSLocked derives throughput from the timestamps of the oldest
// and newest records in the window. Caller holds r.mu.
func (r *Recorder) estimateFPSLocked() float64 {
	if r.filled < 2 {
		return 0
	}

	newest := (r.next - 1 + r.window) % r.window
	oldest := 0
	if r.filled == r.window {
		oldest = r.next
	}

	elapsed := r.frames[newest].at.Sub(r.frames[oldest].at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(r.filled-1) / elapsed
}
