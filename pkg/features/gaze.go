package features

import "github.com/sensai-labs/go-proctor/pkg/landmarks"

// GazeVector returns the offset between the combined eye center and the
// nose tip, in the same normalized coordinate space as the input
// landmarks. When iris landmarks are present they refine the eye
// centers; otherwise the six-point eye rings are averaged. Returns
// ok=false when the face set lacks both eye rings.
func GazeVector(face landmarks.Set) (Vec2, bool) {
	left, lok := eyeRingCenter(face, landmarks.LeftEyeRing, landmarks.LeftIrisCenter)
	right, rok := eyeRingCenter(face, landmarks.RightEyeRing, landmarks.RightIrisCenter)
	if !lok || !rok || !face.Has(landmarks.NoseTip) {
		return Vec2{}, false
	}

	center := landmarks.Midpoint(left, right)
	nose := face[landmarks.NoseTip]
	return Vec2{X: center.X - nose.X, Y: center.Y - nose.Y}, true
}

// GazeDirection classifies a gaze offset by its dominant axis. Used for
// evidence payloads, not for thresholding.
func GazeDirection(g Vec2) string {
	ax, ay := abs(g.X), abs(g.Y)
	if ax == 0 && ay == 0 {
		return "center"
	}
	if ax > ay {
		if g.X > 0 {
			return "right"
		}
		return "left"
	}
	if g.Y > 0 {
		return "down"
	}
	return "up"
}

// EyeCenter returns the midpoint of both eye ring centers. Frame-to-
// frame deltas of this point drive the rapid-eye-movement rule.
func EyeCenter(face landmarks.Set) (landmarks.Point, bool) {
	left, lok := eyeRingCenter(face, landmarks.LeftEyeRing, landmarks.LeftIrisCenter)
	right, rok := eyeRingCenter(face, landmarks.RightEyeRing, landmarks.RightIrisCenter)
	if !lok || !rok {
		return landmarks.Point{}, false
	}
	return landmarks.Midpoint(left, right), true
}

func eyeRingCenter(face landmarks.Set, ring [6]int, iris int) (landmarks.Point, bool) {
	if face.Has(iris) {
		return face[iris], true
	}
	if !face.Has(ring[:]...) {
		return landmarks.Point{}, false
	}
	return face.Centroid(ring[:]), true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
