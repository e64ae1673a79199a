// Package pipeline drives the hand-tracking loop: it ticks at display
// cadence, adaptively skips frames when the detector falls behind, fans each
// processed frame out to the hand detector and the region tracker, and
// merges their asynchronous results into published state.
package pipeline

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/filter"
	"github.com/ayusman/mudra/internal/roi"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/telemetry"
	"github.com/ayusman/mudra/internal/track"
)

// Scheduler constants.
const (
	// DefaultTickRate is the orchestration tick frequency in Hz, matching
	// a common display refresh rate.
	DefaultTickRate = 60
	// DefaultTargetFPS is the detection throughput the skip controller
	// aims for.
	DefaultTargetFPS = 30
	// MaxSkip caps the adaptive skip counter.
	MaxSkip = 5
	// aheadFactor and behindFactor bound the elapsed/target ratio inside
	// which the skip level holds steady.
	aheadFactor  = 0.8
	behindFactor = 1.5
)

// Config holds configuration options for the pipeline.
type Config struct {
	TickRate  int
	TargetFPS int
	MaxHands  int

	// MotionThreshold is the changed-pixel percentage treated as scene
	// motion; no motion for IdleTimeout downshifts to idle cadence.
	MotionThreshold float64
	IdleTimeout     time.Duration

	// SlotTimeout is how long a hand slot may be absent before its filter
	// and predictor state is released.
	SlotTimeout time.Duration

	Filter filter.Config
	ROI    roi.Config

	// MaxFeatures bounds ORB keypoints per frame for region tracking.
	MaxFeatures int

	// ArchiveBatchSize is how many processed frames accumulate before a
	// session archive flush. Zero disables archival even with a store.
	ArchiveBatchSize int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		TickRate:         DefaultTickRate,
		TargetFPS:        DefaultTargetFPS,
		MaxHands:         2,
		MotionThreshold:  1.0,
		IdleTimeout:      2 * time.Second,
		SlotTimeout:      time.Second,
		Filter:           filter.DefaultConfig(),
		ROI:              roi.DefaultConfig(),
		ArchiveBatchSize: 30,
	}
}

// HandState is the published per-slot result of one detection cycle.
type HandState struct {
	Slot      int                     `json:"slot"`
	Landmarks *detector.HandLandmarks `json:"landmarks"`
	Region    roi.Region              `json:"region"`
	FullFrame bool                    `json:"full_frame"`
}

// State is an immutable snapshot published after each merged cycle.
// Consumers always receive the latest value; intermediate states may be
// dropped.
type State struct {
	Hands     []HandState             `json:"hands"`
	Regions   map[string]track.Result `json:"regions"`
	Perf      telemetry.Sample        `json:"perf"`
	Timestamp time.Time               `json:"timestamp"`
}

// Orchestrator owns the tick loop and all per-slot smoothing and prediction
// state. That state is mutated only from the run goroutine (tick handler and
// result merge), so it needs no locking; the mutex below guards only the
// control surface (start/stop, subscriptions, pending reference captures).
//
// Results are merged in arrival order with most-recent-wins semantics. A
// dispatched frame can resolve after later ticks were skipped; accepting
// that minor staleness is a deliberate trade in a soft-real-time pipeline,
// strict reordering is not attempted.
type Orchestrator struct {
	config    Config
	camera    capture.Camera
	det       detector.Detector
	extractor *track.Extractor
	tracker   *track.Tracker
	motion    *capture.MotionDetector
	bank      *filter.Bank
	recorder  *telemetry.Recorder
	archive   *archiver

	// now is the clock; replaced in tests.
	now func() time.Time

	mu          sync.Mutex
	running     bool
	stopCh      chan struct{}
	done        chan struct{}
	subscribers []chan State
	pendingRefs []string

	// Loop-owned state, never touched outside the run goroutine.
	predictors    map[int]*roi.Predictor
	skip          int
	skipBudget    int
	inFlight      bool
	lastProcessed time.Time
	lastMotion    time.Time
	activeMode    bool
	frameNumber   int
	resultCh      chan dispatchResult
	lastErrLog    time.Time
	searchRegion  *roi.Region
	lastRegions   map[string]track.Result
}

// New creates an Orchestrator. The store may be nil to disable archival.
func New(config Config, camera capture.Camera, det detector.Detector, st *store.Store, recorder *telemetry.Recorder) *Orchestrator {
	if config.TickRate <= 0 {
		config.TickRate = DefaultTickRate
	}
	if config.TargetFPS <= 0 {
		config.TargetFPS = DefaultTargetFPS
	}
	if config.MaxHands <= 0 {
		config.MaxHands = 2
	}
	if config.SlotTimeout <= 0 {
		config.SlotTimeout = time.Second
	}
	if config.MaxFeatures <= 0 {
		config.MaxFeatures = track.DefaultMaxFeatures
	}
	if recorder == nil {
		recorder = telemetry.NewRecorder(telemetry.DefaultWindow, nil)
	}

	o := &Orchestrator{
		config:      config,
		camera:      camera,
		det:         det,
		extractor:   track.NewExtractor(config.MaxFeatures),
		tracker:     track.NewTracker(),
		motion:      capture.NewMotionDetector(config.MotionThreshold),
		bank:        filter.NewBank(config.Filter),
		recorder:    recorder,
		now:         time.Now,
		predictors:  make(map[int]*roi.Predictor),
		resultCh:    make(chan dispatchResult, 1),
		lastRegions: make(map[string]track.Result),
		activeMode:  true,
	}
	o.lastMotion = o.now()

	if st != nil && config.ArchiveBatchSize > 0 {
		o.archive = newArchiver(st, config.ArchiveBatchSize)
	}

	return o
}

// Start opens the camera and begins the tick loop.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil
	}

	if err := o.camera.Open(); err != nil {
		return err
	}

	if o.archive != nil {
		o.archive.begin(uuid.NewString(), o.now())
	}

	// Fresh result channel per session: a dispatch that completed during
	// a previous shutdown parked its result in the old channel, and that
	// result must never merge into this session. The in-flight flag from
	// such a dispatch is stale for the same reason.
	o.resultCh = make(chan dispatchResult, 1)
	o.inFlight = false

	o.stopCh = make(chan struct{})
	o.done = make(chan struct{})
	o.running = true
	go o.run(o.stopCh, o.done, o.resultCh)

	log.Println("pipeline started")
	return nil
}

// Stop halts the tick loop, discards any in-flight result, and releases
// resources. In-flight work is never delivered to a torn-down consumer.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	close(o.stopCh)
	done := o.done
	o.mu.Unlock()

	<-done

	if err := o.camera.Close(); err != nil {
		log.Printf("pipeline: error closing camera: %v", err)
	}
	o.motion.Close()
	if o.archive != nil {
		o.archive.finish(o.now())
	}

	log.Println("pipeline stopped")
}

// Close stops the pipeline and releases the detector and tracker engines.
func (o *Orchestrator) Close() {
	o.Stop()

	if err := o.det.Close(); err != nil {
		log.Printf("pipeline: error closing detector: %v", err)
	}
	o.extractor.Close()
	o.tracker.Close()
}

// Running reports whether the tick loop is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Tracker exposes the region tracker for reference management.
func (o *Orchestrator) Tracker() *track.Tracker {
	return o.tracker
}

// Recorder exposes the telemetry recorder.
func (o *Orchestrator) Recorder() *telemetry.Recorder {
	return o.recorder
}

// Camera returns the camera instance.
func (o *Orchestrator) Camera() capture.Camera {
	return o.camera
}

// CaptureReference asks the pipeline to extract features from the next
// processed frame and store them as the reference for regionID. Returns the
// region id for convenience; pass an empty id to have one generated.
func (o *Orchestrator) CaptureReference(regionID string) string {
	if regionID == "" {
		regionID = uuid.NewString()
	}

	o.mu.Lock()
	o.pendingRefs = append(o.pendingRefs, regionID)
	o.mu.Unlock()

	return regionID
}

// Subscribe registers a consumer for published state. The channel carries
// the latest snapshot; slow consumers observe dropped intermediates, never
// a backlog.
func (o *Orchestrator) Subscribe() <-chan State {
	ch := make(chan State, 1)

	o.mu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.mu.Unlock()

	return ch
}

// Unsubscribe removes a consumer registered with Subscribe.
func (o *Orchestrator) Unsubscribe(ch <-chan State) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, sub := range o.subscribers {
		if sub == ch {
			o.subscribers = append(o.subscribers[:i], o.subscribers[i+1:]...)
			return
		}
	}
}

// publish delivers a snapshot to all subscribers, latest value wins.
func (o *Orchestrator) publish(st State) {
	o.mu.Lock()
	subs := o.subscribers
	o.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- st:
		default:
			// Replace the stale pending value.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

// takePendingRefs drains the queued reference capture requests.
func (o *Orchestrator) takePendingRefs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	refs := o.pendingRefs
	o.pendingRefs = nil
	return refs
}

// logThrottled logs at most once per second, for per-tick failure paths.
func (o *Orchestrator) logThrottled(format string, args ...any) {
	now := o.now()
	if now.Sub(o.lastErrLog) < time.Second {
		return
	}
	o.lastErrLog = now
	log.Printf(format, args...)
}
