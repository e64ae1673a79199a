package pipeline

import (
	"time"

	"github.com/ayusman/mudra/internal/roi"
)

// merge folds one dispatch result into loop state: smoothing, prediction,
// telemetry, archival, and publication. The in-flight flag is cleared on
// every path so a failed cycle can never wedge the scheduler.
func (o *Orchestrator) merge(res dispatchResult) {
	o.inFlight = false

	// Reference captures the cycle could not save go back to the front
	// of the queue so the next dispatch retries them.
	if len(res.unsavedRefs) > 0 {
		o.mu.Lock()
		o.pendingRefs = append(res.unsavedRefs, o.pendingRefs...)
		o.mu.Unlock()
	}

	if res.err != nil {
		o.logThrottled("pipeline: dispatch: %v", res.err)
		return
	}

	t := res.capturedAt

	hands := make([]HandState, 0, len(res.hands))
	fullFrameNeeded := false

	for slot := 0; slot < o.config.MaxHands; slot++ {
		if slot < len(res.hands) {
			smoothed := o.bank.Apply(slot, &res.hands[slot], t)
			pred := o.predictor(slot)
			full := pred.Update(smoothed, t)
			if full {
				fullFrameNeeded = true
			}
			hands = append(hands, HandState{
				Slot:      slot,
				Landmarks: smoothed,
				Region:    pred.Region(),
				FullFrame: full,
			})
			continue
		}

		// No hand in this slot this cycle: the predictor keeps its
		// prediction until its timeout forces a refresh.
		if pred, ok := o.predictors[slot]; ok {
			if pred.Update(nil, t) {
				fullFrameNeeded = true
			}
		}
	}

	o.releaseIdleSlots(t)

	// The next dispatch narrows to the union of every live slot's region,
	// so a second hand is never starved by a crop around the first. Any
	// slot requesting a full-frame pass widens the search for all.
	o.searchRegion = nil
	if !fullFrameNeeded {
		for _, pred := range o.predictors {
			r := pred.Region()
			if o.searchRegion == nil {
				o.searchRegion = &r
			} else {
				u := o.searchRegion.Union(r)
				o.searchRegion = &u
			}
		}
	}

	if res.regions != nil {
		o.lastRegions = res.regions
	}

	o.recorder.RecordFrame(res.stages)
	o.frameNumber++

	snapshot := o.recorder.Snapshot()

	if o.archive != nil {
		o.archive.record(o.frameNumber, hands, snapshot)
	}

	o.publish(State{
		Hands:     hands,
		Regions:   o.lastRegions,
		Perf:      snapshot,
		Timestamp: t,
	})
}

// predictor returns the slot's predictor, creating it on first use.
func (o *Orchestrator) predictor(slot int) *roi.Predictor {
	p, ok := o.predictors[slot]
	if !ok {
		p = roi.NewPredictor(o.config.ROI)
		o.predictors[slot] = p
	}
	return p
}

// releaseIdleSlots tears down filter and predictor state for hand slots
// absent beyond the timeout, so a returning hand starts clean.
func (o *Orchestrator) releaseIdleSlots(t time.Time) {
	for _, slot := range o.bank.ReleaseIdle(t, o.config.SlotTimeout) {
		if pred, ok := o.predictors[slot]; ok {
			pred.Reset()
			delete(o.predictors, slot)
		}
	}
}
