// Package track re-identifies user-drawn planar regions across frames using
// sparse ORB feature correspondence and RANSAC homography estimation.
package track

import (
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// DefaultMaxFeatures bounds how many keypoints the extractor returns per
// frame.
const DefaultMaxFeatures = 500

// Features holds the keypoints and binary descriptors extracted from one
// image, plus the source dimensions needed to map reference corners later.
// The descriptor Mat is a native resource; Close must be called when the
// Features value is no longer needed.
type Features struct {
	Keypoints   []gocv.KeyPoint
	Descriptors gocv.Mat
	Width       int
	Height      int
	CapturedAt  time.Time

	closed bool
}

// Close releases the native descriptor matrix. Safe to call more than once.
func (f *Features) Close() {
	if f == nil || f.closed {
		return
	}
	f.closed = true
	f.Descriptors.Close()
}

// Extractor detects oriented keypoints and computes binary descriptors on
// grayscale frames using ORB.
type Extractor struct {
	orb      gocv.ORB
	mu       sync.Mutex
	closed   bool
	warnOnce sync.Once
}

// NewExtractor creates an Extractor bounded to maxFeatures keypoints.
// Values <= 0 use DefaultMaxFeatures.
func NewExtractor(maxFeatures int) *Extractor {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}

	return &Extractor{
		orb: gocv.NewORBWithParams(maxFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20),
	}
}

// Extract converts the frame to grayscale and runs keypoint detection plus
// descriptor computation. Returns (nil, nil) when the engine is unavailable
// or the frame is unusable: the caller simply retries on the next frame.
// The caller owns the returned Features and must Close it.
func (e *Extractor) Extract(frame gocv.Mat) (*Features, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.warnOnce.Do(func() {
			log.Println("track: feature extractor not available, skipping extraction")
		})
		return nil, nil
	}

	if frame.Empty() {
		return nil, nil
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	mask := gocv.NewMat()
	defer mask.Close()

	keypoints, descriptors := e.orb.DetectAndCompute(gray, mask)

	return &Features{
		Keypoints:   keypoints,
		Descriptors: descriptors,
		Width:       frame.Cols(),
		Height:      frame.Rows(),
		CapturedAt:  time.Now(),
	}, nil
}

// Close releases the ORB handle. Extract calls after Close return no
// features.
func (e *Extractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.orb.Close()
}
