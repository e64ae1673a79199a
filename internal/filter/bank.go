package filter

import (
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// LandmarkFilter smooths the three coordinate channels of one landmark
// independently.
type LandmarkFilter struct {
	x, y, z *Channel
}

// NewLandmarkFilter creates a LandmarkFilter with the given channel config.
func NewLandmarkFilter(config Config) *LandmarkFilter {
	return &LandmarkFilter{
		x: NewChannel(config),
		y: NewChannel(config),
		z: NewChannel(config),
	}
}

// Apply filters one landmark sample taken at time t.
func (f *LandmarkFilter) Apply(p detector.Point3D, t time.Time) detector.Point3D {
	return detector.Point3D{
		X: f.x.Apply(p.X, t),
		Y: f.y.Apply(p.Y, t),
		Z: f.z.Apply(p.Z, t),
	}
}

// Reset clears all three channels.
func (f *LandmarkFilter) Reset() {
	f.x.Reset()
	f.y.Reset()
	f.z.Reset()
}

// slotState holds the per-landmark filters of one tracked hand slot.
type slotState struct {
	landmarks [detector.NumLandmarks]*LandmarkFilter
	lastSeen  time.Time
}

// Bank owns one filter array per landmark per tracked hand slot. Slot state
// is created lazily on first use and torn down when the slot is released.
//
// A Bank is mutated only from the pipeline's orchestration goroutine and
// performs no internal locking.
type Bank struct {
	config Config
	slots  map[int]*slotState
}

// NewBank creates an empty Bank using config for every channel.
func NewBank(config Config) *Bank {
	return &Bank{
		config: config,
		slots:  make(map[int]*slotState),
	}
}

// Apply filters all 21 landmarks of a hand observed at time t in the given
// slot and returns a filtered copy. Handedness and score carry over
// unchanged. A nil hand returns nil.
func (b *Bank) Apply(slot int, hand *detector.HandLandmarks, t time.Time) *detector.HandLandmarks {
	if hand == nil {
		return nil
	}

	s, ok := b.slots[slot]
	if !ok {
		s = &slotState{}
		for i := range s.landmarks {
			s.landmarks[i] = NewLandmarkFilter(b.config)
		}
		b.slots[slot] = s
	}
	s.lastSeen = t

	filtered := &detector.HandLandmarks{
		Handedness: hand.Handedness,
		Score:      hand.Score,
	}
	for i := 0; i < detector.NumLandmarks; i++ {
		filtered.Points[i] = s.landmarks[i].Apply(hand.Points[i], t)
	}
	return filtered
}

// Release discards the state of one hand slot.
func (b *Bank) Release(slot int) {
	delete(b.slots, slot)
}

// ReleaseIdle discards every slot that has not received a sample since
// now minus timeout. Returns the released slot indices.
func (b *Bank) ReleaseIdle(now time.Time, timeout time.Duration) []int {
	var released []int
	for slot, s := range b.slots {
		if now.Sub(s.lastSeen) > timeout {
			delete(b.slots, slot)
			released = append(released, slot)
		}
	}
	return released
}

// ActiveSlots returns the number of slots currently holding filter state.
func (b *Bank) ActiveSlots() int {
	return len(b.slots)
}
