package features

import "github.com/sensai-labs/go-proctor/pkg/landmarks"

// Eye selects which eye an extractor operates on.
type Eye int

const (
	EyeLeft Eye = iota
	EyeRight
)

func (e Eye) String() string {
	if e == EyeRight {
		return "right"
	}
	return "left"
}

// DefaultEAR is substituted when the eye geometry is degenerate (zero
// horizontal corner distance). 0.3 is a typical open-eye ratio, so a
// broken measurement never reads as a closure.
const DefaultEAR = 0.3

// EyeAspectRatio computes the ratio of the two vertical eyelid
// distances to the horizontal eye-corner distance over the six-point
// eye ring. Low values indicate a closed or closing eye. Returns
// ok=false when the face set lacks the ring landmarks.
func EyeAspectRatio(face landmarks.Set, eye Eye) (float64, bool) {
	ring := landmarks.LeftEyeRing
	if eye == EyeRight {
		ring = landmarks.RightEyeRing
	}
	if !face.Has(ring[:]...) {
		return 0, false
	}

	corner1 := face[ring[0]]
	upper1 := face[ring[1]]
	upper2 := face[ring[2]]
	corner2 := face[ring[3]]
	lower2 := face[ring[4]]
	lower1 := face[ring[5]]

	horizontal := landmarks.Dist(corner1, corner2)
	if horizontal == 0 {
		return DefaultEAR, true
	}

	v1 := landmarks.Dist(upper1, lower1)
	v2 := landmarks.Dist(upper2, lower2)
	return (v1 + v2) / (2 * horizontal), true
}
