package features

import "github.com/sensai-labs/go-proctor/pkg/landmarks"

// FaceGeometry returns the face center and apparent size for a single
// face. The center is the midpoint of the nose tip and chin when both
// are present, otherwise the nose tip alone. Size is the diagonal of
// the landmark bounding box, so it grows as the face approaches the
// camera.
func FaceGeometry(face landmarks.Set) (center landmarks.Point, size float64, ok bool) {
	if !face.Has(landmarks.NoseTip) {
		return landmarks.Point{}, 0, false
	}

	center = face[landmarks.NoseTip]
	if face.Has(landmarks.Chin) {
		center = landmarks.Midpoint(center, face[landmarks.Chin])
	}

	minX, minY := face[0].X, face[0].Y
	maxX, maxY := minX, minY
	for _, p := range face {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	size = Vec2{X: maxX - minX, Y: maxY - minY}.Norm()
	return center, size, true
}
