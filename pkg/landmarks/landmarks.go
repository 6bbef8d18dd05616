// Package landmarks defines the typed keypoint model consumed by the
// proctoring pipeline. Upstream detectors produce per-frame landmark sets
// for faces, poses, and hands; this package gives those arrays named
// indices and validated coordinates so downstream code never indexes
// blindly into raw slices.
package landmarks

import (
	"math"
	"time"
)

// Point is a single detector keypoint, normalized to [0,1] relative to
// the frame dimensions. Z is detector-relative depth and may be zero.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// Set is one detected landmark group: a face mesh, a pose skeleton, or a
// single hand.
type Set []Point

// Frame is the per-frame input contract from the landmark detector.
// Zero-or-more sets per region; an empty Faces slice means no face was
// detected this frame.
type Frame struct {
	Timestamp time.Time `json:"timestamp"`
	Faces     []Set     `json:"faces,omitempty"`
	Poses     []Set     `json:"poses,omitempty"`
	Hands     []Set     `json:"hands,omitempty"`
}

// Face mesh indices (MediaPipe 468-point topology, iris refinement at
// 468+). Only the subset the extractors need is named here.
const (
	NoseTip = 1
	Chin    = 152

	LeftEyeOuter  = 33
	LeftEyeInner  = 133
	RightEyeInner = 362
	RightEyeOuter = 263

	LeftIrisCenter  = 468
	RightIrisCenter = 473

	UpperLipInner    = 13
	LowerLipInner    = 14
	MouthCornerLeft  = 61
	MouthCornerRight = 291
)

// Eye aspect ratio rings: corner, two upper lid points, opposite corner,
// two lower lid points. Order matters for the EAR formula.
var (
	LeftEyeRing  = [6]int{33, 160, 158, 133, 153, 144}
	RightEyeRing = [6]int{362, 385, 387, 263, 373, 380}
)

// Hand indices (21-point model).
const (
	Wrist     = 0
	ThumbTip  = 4
	IndexMCP  = 5
	IndexTip  = 8
	MiddleMCP = 9
	MiddleTip = 12
	RingTip   = 16
	PinkyTip  = 20

	HandPoints = 21
)

// Has reports whether every index is present in the set.
func (s Set) Has(indices ...int) bool {
	for _, i := range indices {
		if i < 0 || i >= len(s) {
			return false
		}
	}
	return true
}

// Centroid returns the mean position of the given indices. The caller
// must have checked Has first; out-of-range indices are skipped.
func (s Set) Centroid(indices []int) Point {
	var sum Point
	n := 0
	for _, i := range indices {
		if i < 0 || i >= len(s) {
			continue
		}
		sum.X += s[i].X
		sum.Y += s[i].Y
		n++
	}
	if n == 0 {
		return Point{}
	}
	return Point{X: sum.X / float64(n), Y: sum.Y / float64(n)}
}

// Dist returns the 2D Euclidean distance between two points. Depth is
// ignored: detectors disagree on Z scaling, X/Y share one space.
func Dist(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// Normalize clamps every coordinate into the [0,1] domain in place and
// stamps missing timestamps. Detectors occasionally emit slightly
// out-of-range points at the frame edge; clamping keeps the geometry
// math well-defined.
func (f *Frame) Normalize(now time.Time) {
	if f.Timestamp.IsZero() {
		f.Timestamp = now
	}
	for _, group := range [][]Set{f.Faces, f.Poses, f.Hands} {
		for _, set := range group {
			for i := range set {
				set[i].X = clamp01(set[i].X)
				set[i].Y = clamp01(set[i].Y)
			}
		}
	}
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
