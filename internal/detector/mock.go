package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface. It can
// return a fixed result or play back a scripted sequence, one entry per
// Detect call, which makes it usable as a synthetic hand for pipeline and
// end-to-end tests.
type MockDetector struct {
	mu       sync.Mutex
	hands    []HandLandmarks
	sequence [][]HandLandmarks
	cursor   int
	err      error
	calls    int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by every Detect call.
// Clears any scripted sequence.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
	m.sequence = nil
	m.cursor = 0
}

// SetSequence sets a scripted sequence of results; each Detect call
// consumes one entry. After the sequence is exhausted, Detect returns the
// last entry.
func (m *MockDetector) SetSequence(seq [][]HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = seq
	m.cursor = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of Detect calls made so far.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured hands, sequence entry, or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	if m.err != nil {
		return nil, m.err
	}

	if len(m.sequence) > 0 {
		hands := m.sequence[m.cursor]
		if m.cursor < len(m.sequence)-1 {
			m.cursor++
		}
		return hands, nil
	}

	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// OpenPalmLandmarks returns a preset HandLandmarks representing an open
// palm centered near cx,cy. Useful as a synthetic detection result.
func OpenPalmLandmarks(cx, cy float64) HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	// Offsets roughly shaped like an open right hand around the palm center.
	offsets := [NumLandmarks]Point3D{
		{X: 0.00, Y: 0.20, Z: 0.0},   // Wrist
		{X: 0.05, Y: 0.15, Z: 0.02},  // ThumbCMC
		{X: 0.12, Y: 0.10, Z: 0.03},  // ThumbMCP
		{X: 0.18, Y: 0.05, Z: 0.03},  // ThumbIP
		{X: 0.23, Y: 0.00, Z: 0.03},  // ThumbTip
		{X: 0.05, Y: 0.08, Z: 0.0},   // IndexMCP
		{X: 0.07, Y: -0.05, Z: 0.0},  // IndexPIP
		{X: 0.08, Y: -0.15, Z: 0.0},  // IndexDIP
		{X: 0.08, Y: -0.25, Z: 0.0},  // IndexTip
		{X: 0.00, Y: 0.06, Z: 0.0},   // MiddleMCP
		{X: 0.00, Y: -0.08, Z: 0.0},  // MiddlePIP
		{X: 0.00, Y: -0.20, Z: 0.0},  // MiddleDIP
		{X: 0.00, Y: -0.32, Z: 0.0},  // MiddleTip
		{X: -0.05, Y: 0.08, Z: 0.0},  // RingMCP
		{X: -0.07, Y: -0.05, Z: 0.0}, // RingPIP
		{X: -0.08, Y: -0.15, Z: 0.0}, // RingDIP
		{X: -0.08, Y: -0.25, Z: 0.0}, // RingTip
		{X: -0.10, Y: 0.10, Z: 0.0},  // PinkyMCP
		{X: -0.13, Y: 0.00, Z: 0.0},  // PinkyPIP
		{X: -0.15, Y: -0.10, Z: 0.0}, // PinkyDIP
		{X: -0.16, Y: -0.18, Z: 0.0}, // PinkyTip
	}

	for i, off := range offsets {
		landmarks.Points[i] = Point3D{X: cx + off.X, Y: cy + off.Y, Z: off.Z}
	}

	return landmarks
}
