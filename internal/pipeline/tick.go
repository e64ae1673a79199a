package pipeline

import (
	"image"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/roi"
	"github.com/ayusman/mudra/internal/track"
)

// dispatchResult carries one cycle's asynchronous output back to the loop.
type dispatchResult struct {
	hands      []detector.HandLandmarks
	regions    map[string]track.Result
	capturedAt time.Time
	stages     map[string]time.Duration
	err        error

	// unsavedRefs are reference capture requests this cycle could not
	// fulfill; merge requeues them for the next dispatch.
	unsavedRefs []string
}

// run is the orchestration loop. All per-slot state is owned by this
// goroutine.
func (o *Orchestrator) run(stopCh chan struct{}, done chan struct{}, resultCh chan dispatchResult) {
	defer close(done)

	interval := time.Second / time.Duration(o.config.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.activeMode = true
	o.lastMotion = o.now()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			o.tick(o.now(), stopCh, resultCh)
		case res := <-resultCh:
			o.merge(res)
		}
	}
}

// tick makes one scheduling decision: skip, or capture and dispatch.
//
// The adaptive skip counter rises by one each time the interval since the
// last processed frame exceeds 1.5x the target and falls by one below 0.8x,
// bounded to [0, MaxSkip]. After each processed frame the counter's value is
// spent skipping that many subsequent ticks. Ticks arriving while a frame
// is in flight are skipped outright, never queued.
func (o *Orchestrator) tick(now time.Time, stopCh <-chan struct{}, resultCh chan dispatchResult) {
	if o.inFlight {
		o.recorder.RecordSkip(o.skip)
		return
	}

	if o.skipBudget > 0 {
		o.skipBudget--
		o.recorder.RecordSkip(o.skip)
		return
	}

	targetInterval := time.Second / time.Duration(o.config.TargetFPS)
	if !o.lastProcessed.IsZero() {
		elapsed := now.Sub(o.lastProcessed)
		switch {
		case float64(elapsed) < aheadFactor*float64(targetInterval):
			if o.skip > 0 {
				o.skip--
			}
		case float64(elapsed) > behindFactor*float64(targetInterval):
			if o.skip < MaxSkip {
				o.skip++
			}
		}
		o.recorder.SetSkipLevel(o.skip)
	}

	captureStart := now
	frame, err := o.camera.ReadFrame()
	if err != nil {
		// Transient per-tick failure: log throttled, leave the loop
		// healthy for the next tick.
		o.logThrottled("pipeline: read frame: %v", err)
		return
	}
	captureDur := o.now().Sub(captureStart)
	// Downstream filter and predictor timing all derive from one time
	// source, the loop clock.
	frame.CapturedAt = now

	// Cheap motion gate, run while the loop still owns the frame. A still
	// scene for IdleTimeout downshifts to idle cadence.
	if moving, _ := o.motion.Detect(frame.Mat); moving {
		o.lastMotion = now
		o.activeMode = true
	} else if o.activeMode && now.Sub(o.lastMotion) > o.config.IdleTimeout {
		o.activeMode = false
	}
	if !o.activeMode {
		frame.Close()
		o.skipBudget = MaxSkip
		o.recorder.RecordSkip(o.skip)
		return
	}

	// Narrow the detector's search region when the predictor did not ask
	// for a full-frame pass.
	searchRegion := o.searchRegion
	pendingRefs := o.takePendingRefs()
	regions := o.tracker.Regions()

	o.inFlight = true
	o.lastProcessed = now
	o.skipBudget = o.skip

	// Frame ownership moves to the dispatch goroutine here; the loop must
	// not touch it again.
	go o.dispatch(frame, searchRegion, pendingRefs, regions, captureDur, stopCh, resultCh)
}

// dispatch runs the detector and the region tracker on one frame and sends
// the merged result back to the loop. It owns and always closes the frame.
func (o *Orchestrator) dispatch(frame *capture.Frame, searchRegion *roi.Region, pendingRefs []string, regionIDs []string, captureDur time.Duration, stopCh <-chan struct{}, resultCh chan dispatchResult) {
	defer frame.Close()

	res := dispatchResult{
		capturedAt: frame.CapturedAt,
		stages:     map[string]time.Duration{"capture": captureDur},
	}

	detectStart := o.now()
	res.hands, res.err = o.detectHands(frame, searchRegion)
	res.stages["detect"] = o.now().Sub(detectStart)

	if res.err == nil && (len(pendingRefs) > 0 || len(regionIDs) > 0) {
		trackStart := o.now()
		res.regions, res.unsavedRefs = o.trackRegions(frame, pendingRefs, regionIDs)
		res.stages["track"] = o.now().Sub(trackStart)
	} else {
		// Capture requests already answered Accepted over the API; a
		// failed cycle must not swallow them.
		res.unsavedRefs = pendingRefs
	}

	select {
	case resultCh <- res:
	case <-stopCh:
		// Pipeline torn down mid-flight: discard silently. A send that
		// slips in anyway lands in this session's channel, which the next
		// Start replaces, so it can never merge into a later session.
	}
}

// detectHands runs the external detector, optionally narrowed to a search
// region, and maps region-relative landmarks back to full-frame coordinates.
func (o *Orchestrator) detectHands(frame *capture.Frame, region *roi.Region) ([]detector.HandLandmarks, error) {
	if region == nil {
		return o.det.Detect(frame.Mat)
	}

	rect := regionRect(*region, frame.Width, frame.Height)
	sub := frame.Mat.Region(rect)
	defer sub.Close()

	hands, err := o.det.Detect(&sub)
	if err != nil {
		return nil, err
	}

	// Landmarks come back normalized to the crop; remap into full-frame
	// normalized coordinates.
	for i := range hands {
		for j := range hands[i].Points {
			p := &hands[i].Points[j]
			p.X = region.X + p.X*region.W
			p.Y = region.Y + p.Y*region.H
		}
	}
	return hands, nil
}

// trackRegions extracts features once and matches every known region,
// saving references first for any pending capture requests. Requests that
// could not be saved this cycle come back for requeueing.
func (o *Orchestrator) trackRegions(frame *capture.Frame, pendingRefs []string, regionIDs []string) (map[string]track.Result, []string) {
	features, err := o.extractor.Extract(*frame.Mat)
	if err != nil || features == nil {
		return nil, pendingRefs
	}

	var unsaved []string
	for _, id := range pendingRefs {
		// The reference takes ownership of a fresh extraction so the
		// matching copy below can be closed independently.
		ref, err := o.extractor.Extract(*frame.Mat)
		if err != nil || ref == nil {
			unsaved = append(unsaved, id)
			continue
		}
		o.tracker.SaveReference(id, ref)
		regionIDs = append(regionIDs, id)
	}

	results := make(map[string]track.Result, len(regionIDs))
	for _, id := range regionIDs {
		results[id] = o.tracker.Match(id, features)
	}

	features.Close()
	return results, unsaved
}

// regionRect converts a normalized region to pixel bounds within the frame.
func regionRect(r roi.Region, width, height int) image.Rectangle {
	x0 := int(r.X * float64(width))
	y0 := int(r.Y * float64(height))
	x1 := int((r.X + r.W) * float64(width))
	y1 := int((r.Y + r.H) * float64(height))

	if x1 > width {
		x1 = width
	}
	if y1 > height {
		y1 = height
	}
	return image.Rect(x0, y0, x1, y1)
}
