package pipeline

import (
	"encoding/json"
	"log"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/telemetry"
)

// archivedHand is the stored form of a hand: the live state plus a
// wrist-origin, scale-normalized copy of the landmarks so archived poses
// compare across sessions regardless of camera distance.
type archivedHand struct {
	HandState
	Normalized *detector.HandLandmarks `json:"normalized,omitempty"`
}

// archiver batches processed frames into the session store. Archival is
// strictly best-effort: flushes run off the loop goroutine and failures are
// logged, never propagated into the live pipeline.
type archiver struct {
	st        *store.Store
	batchSize int
	sessionID string
	batch     []store.FrameRecord
}

func newArchiver(st *store.Store, batchSize int) *archiver {
	return &archiver{
		st:        st,
		batchSize: batchSize,
	}
}

// begin opens a new session row. Called from Start, before the loop runs.
func (a *archiver) begin(sessionID string, at time.Time) {
	a.sessionID = sessionID
	a.batch = a.batch[:0]

	if err := a.st.Sessions().Create(sessionID, at); err != nil {
		log.Printf("archive: create session: %v", err)
		a.sessionID = ""
	}
}

// record buffers one processed frame, flushing asynchronously when the
// batch is full. Called only from the loop goroutine.
func (a *archiver) record(frameNumber int, hands []HandState, perf telemetry.Sample) {
	if a.sessionID == "" {
		return
	}

	archived := make([]archivedHand, len(hands))
	for i, h := range hands {
		archived[i] = archivedHand{
			HandState:  h,
			Normalized: h.Landmarks.Normalize(),
		}
	}

	handsJSON, err := json.Marshal(archived)
	if err != nil {
		return
	}
	perfJSON, err := json.Marshal(perf)
	if err != nil {
		return
	}

	a.batch = append(a.batch, store.FrameRecord{
		FrameNumber: frameNumber,
		Hands:       handsJSON,
		Performance: perfJSON,
	})

	if len(a.batch) >= a.batchSize {
		a.flush()
	}
}

// flush hands the current batch to a background writer.
func (a *archiver) flush() {
	if len(a.batch) == 0 {
		return
	}

	batch := make([]store.FrameRecord, len(a.batch))
	copy(batch, a.batch)
	a.batch = a.batch[:0]

	sessionID := a.sessionID
	go func() {
		if err := a.st.Sessions().AppendFrames(sessionID, batch); err != nil {
			log.Printf("archive: append frames: %v", err)
		}
	}()
}

// finish flushes the remainder and closes the session row. Called from
// Stop, after the loop has exited.
func (a *archiver) finish(at time.Time) {
	if a.sessionID == "" {
		return
	}

	a.flush()
	if err := a.st.Sessions().End(a.sessionID, at); err != nil {
		log.Printf("archive: end session: %v", err)
	}
	a.sessionID = ""
}
