package track

import (
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// Matching thresholds. Eight correspondences is the minimum for a four-point
// planar homography with some redundancy; below that the estimate is not
// worth attempting.
const (
	// MinKeypoints is the fewest current-frame keypoints worth matching.
	MinKeypoints = 10
	// MinMatches is the fewest descriptor matches worth a homography.
	MinMatches = 8
	// RansacReprojThreshold is the RANSAC reprojection error in pixels.
	RansacReprojThreshold = 3.0
	// MinConfidence is the inlier ratio above which a region counts as
	// tracked.
	MinConfidence = 0.4
)

// Point is a pixel position in the current frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Result reports one tracking attempt for one region. It is produced fresh
// on every attempt and never mutated afterwards. A not-tracked Result is an
// ordinary steady state, not an error.
type Result struct {
	IsTracked   bool       `json:"is_tracked"`
	MatchCount  int        `json:"match_count"`
	InlierCount int        `json:"inlier_count"`
	Confidence  float64    `json:"confidence"`
	Homography  [9]float64 `json:"homography,omitempty"`
	Center      Point      `json:"center"`
	Corners     [4]Point   `json:"corners"`
	RotationDeg float64    `json:"rotation_deg"`
}

// Tracker matches stored reference features against the current frame's
// features and estimates each region's 2D pose. References are an owned
// mapping per tracker instance, so independent trackers never share state.
type Tracker struct {
	mu         sync.Mutex
	references map[string]*Features
}

// NewTracker creates a Tracker with no references.
func NewTracker() *Tracker {
	return &Tracker{
		references: make(map[string]*Features),
	}
}

// SaveReference stores the features of a region. Any existing reference for
// the same id is released before the new one is stored, so there is at most
// one live reference per region id. The tracker takes ownership of f.
func (t *Tracker) SaveReference(regionID string, f *Features) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.references[regionID]; ok {
		old.Close()
	}
	t.references[regionID] = f
}

// ClearReference releases and removes a region's reference. Unknown ids are
// a no-op.
func (t *Tracker) ClearReference(regionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.references[regionID]; ok {
		old.Close()
		delete(t.references, regionID)
	}
}

// Regions returns the ids of all stored references.
func (t *Tracker) Regions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.references))
	for id := range t.references {
		ids = append(ids, id)
	}
	return ids
}

// Close releases every stored reference.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, f := range t.references {
		f.Close()
		delete(t.references, id)
	}
}

// Match attempts to locate the region in the current frame's features.
//
// Pipeline: cross-checked Hamming descriptor matching, RANSAC homography on
// the matched point pairs, inlier counting from the RANSAC mask, then
// reprojection of the reference center and corners for overlay. Every stage
// degrades to a not-tracked Result rather than returning an error.
func (t *Tracker) Match(regionID string, current *Features) Result {
	// Held for the full match: SaveReference and ClearReference release
	// the reference's native Mats, so the matcher must never read them
	// unlocked.
	t.mu.Lock()
	defer t.mu.Unlock()

	ref, ok := t.references[regionID]
	if !ok || current == nil || len(current.Keypoints) < MinKeypoints {
		return Result{}
	}
	if len(ref.Keypoints) == 0 || ref.Descriptors.Empty() || current.Descriptors.Empty() {
		return Result{}
	}

	matcher := gocv.NewBFMatcherWithParams(gocv.NormHamming, true)
	defer matcher.Close()

	matches := matcher.Match(ref.Descriptors, current.Descriptors)
	if len(matches) < MinMatches {
		return Result{MatchCount: len(matches)}
	}

	// Matched point pairs as n x 1 two-channel matrices for RANSAC.
	srcPoints := gocv.NewMatWithSize(len(matches), 1, gocv.MatTypeCV64FC2)
	defer srcPoints.Close()
	dstPoints := gocv.NewMatWithSize(len(matches), 1, gocv.MatTypeCV64FC2)
	defer dstPoints.Close()

	for i, m := range matches {
		rp := ref.Keypoints[m.QueryIdx]
		cp := current.Keypoints[m.TrainIdx]
		srcPoints.SetDoubleAt(i, 0, rp.X)
		srcPoints.SetDoubleAt(i, 1, rp.Y)
		dstPoints.SetDoubleAt(i, 0, cp.X)
		dstPoints.SetDoubleAt(i, 1, cp.Y)
	}

	mask := gocv.NewMat()
	defer mask.Close()

	homography := gocv.FindHomography(srcPoints, &dstPoints, gocv.HomographyMethodRANSAC,
		RansacReprojThreshold, &mask, 2000, 0.995)
	defer homography.Close()

	if homography.Empty() {
		return Result{MatchCount: len(matches)}
	}

	inliers := 0
	for i := 0; i < mask.Rows(); i++ {
		if mask.GetUCharAt(i, 0) != 0 {
			inliers++
		}
	}

	confidence := float64(inliers) / float64(len(matches))

	result := Result{
		IsTracked:   confidence > MinConfidence,
		MatchCount:  len(matches),
		InlierCount: inliers,
		Confidence:  confidence,
	}

	if !result.IsTracked {
		return result
	}

	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			result.Homography[r*3+c] = homography.GetDoubleAt(r, c)
		}
	}

	// Reproject the reference center and corners into the current frame.
	w := float64(ref.Width)
	h := float64(ref.Height)
	projected := projectPoints(homography, []Point{
		{X: w / 2, Y: h / 2},
		{X: 0, Y: 0},
		{X: w, Y: 0},
		{X: w, Y: h},
		{X: 0, Y: h},
	})
	result.Center = projected[0]
	copy(result.Corners[:], projected[1:])

	result.RotationDeg = rotationFromHomography(result.Homography)

	return result
}

// projectPoints maps points through a 3x3 homography Mat.
func projectPoints(homography gocv.Mat, points []Point) []Point {
	src := gocv.NewMatWithSize(len(points), 1, gocv.MatTypeCV64FC2)
	defer src.Close()

	for i, p := range points {
		src.SetDoubleAt(i, 0, p.X)
		src.SetDoubleAt(i, 1, p.Y)
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.PerspectiveTransform(src, &dst, homography)

	out := make([]Point, len(points))
	for i := range out {
		out[i] = Point{
			X: dst.GetDoubleAt(i, 0),
			Y: dst.GetDoubleAt(i, 1),
		}
	}
	return out
}

// rotationFromHomography derives an in-plane rotation angle in degrees from
// the upper-left 2x2 block. Two angle estimates are averaged; this is an
// approximation that ignores perspective and shear, good enough for a flat
// marker overlay.
func rotationFromHomography(h [9]float64) float64 {
	a, b := h[0], h[1]
	c, d := h[3], h[4]

	angle1 := math.Atan2(b, a)
	angle2 := math.Atan2(-c, d)

	return (angle1 + angle2) / 2 * 180 / math.Pi
}
