package features

import "github.com/sensai-labs/go-proctor/pkg/landmarks"

// MouthRatio returns the mouth-open ratio: inner lip gap divided by
// mouth width. A closed mouth sits near zero; sustained values above a
// small threshold indicate talking.
func MouthRatio(face landmarks.Set) (float64, bool) {
	if !face.Has(landmarks.UpperLipInner, landmarks.LowerLipInner, landmarks.MouthCornerLeft, landmarks.MouthCornerRight) {
		return 0, false
	}
	width := landmarks.Dist(face[landmarks.MouthCornerLeft], face[landmarks.MouthCornerRight])
	if width == 0 {
		return 0, true
	}
	gap := landmarks.Dist(face[landmarks.UpperLipInner], face[landmarks.LowerLipInner])
	return gap / width, true
}
