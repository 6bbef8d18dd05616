package features

import "github.com/sensai-labs/go-proctor/pkg/landmarks"

// Grip labels the object a hand appears to be holding.
type Grip string

const (
	GripNone   Grip = "none"
	GripPhone  Grip = "phone-grip"
	GripTablet Grip = "tablet-grip"
	GripPen    Grip = "pen-grip"
)

// Fixed confidences per grip class. The geometry either matches a
// class or it does not, so confidence reflects how distinctive the
// pose is rather than a per-frame fit score.
const (
	phoneGripConfidence  = 0.85
	tabletGripConfidence = 0.80
	penGripConfidence    = 0.65
)

// Geometry thresholds, all expressed as ratios of palm length so the
// classifier is invariant to hand distance from the camera.
const (
	penPinchMax     = 0.30 // thumb tip to index tip, tight pinch
	penCurlMax      = 1.10 // remaining fingers curled toward the palm
	tabletSpreadMin = 1.10 // index tip to pinky tip, fingers fanned out
	tabletCurlMin   = 1.40 // fingers extended, flat hand
	phoneCurlMax    = 1.25 // fingers wrapped around a narrow object
	phoneSpreadMax  = 0.95
)

// ClassifyGrip inspects a 21-point hand set and reports which grip
// class its geometry matches, with that class's fixed confidence.
// Hands with fewer than 21 points or a degenerate palm classify as
// GripNone.
func ClassifyGrip(hand landmarks.Set) (Grip, float64) {
	if len(hand) < landmarks.HandPoints {
		return GripNone, 0
	}

	wrist := hand[landmarks.Wrist]
	palm := landmarks.Dist(wrist, hand[landmarks.MiddleMCP])
	if palm == 0 {
		return GripNone, 0
	}

	pinch := landmarks.Dist(hand[landmarks.ThumbTip], hand[landmarks.IndexTip]) / palm
	spread := landmarks.Dist(hand[landmarks.IndexTip], hand[landmarks.PinkyTip]) / palm
	curl := (landmarks.Dist(wrist, hand[landmarks.MiddleTip]) +
		landmarks.Dist(wrist, hand[landmarks.RingTip]) +
		landmarks.Dist(wrist, hand[landmarks.PinkyTip])) / (3 * palm)

	switch {
	case pinch < penPinchMax && curl < penCurlMax:
		return GripPen, penGripConfidence
	case spread > tabletSpreadMin && curl > tabletCurlMin:
		return GripTablet, tabletGripConfidence
	case curl < phoneCurlMax && spread < phoneSpreadMax:
		return GripPhone, phoneGripConfidence
	default:
		return GripNone, 0
	}
}
