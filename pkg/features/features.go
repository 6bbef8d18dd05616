// Package features turns raw landmark sets into the geometric measures
// the violation pipeline reasons about: eye aspect ratio, gaze offset,
// face position and size, mouth openness, and hand-grip patterns.
// Every extractor is a pure function; missing landmarks yield a
// no-signal result instead of an error.
package features

import (
	"math"
	"time"

	"github.com/sensai-labs/go-proctor/pkg/landmarks"
)

// Vec2 is a 2D offset in normalized frame coordinates.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns v minus o.
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

// Norm returns the Euclidean magnitude of the vector.
func (v Vec2) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}

// Sample is the full set of measurements derived from one frame.
// Validity flags distinguish "measured zero" from "not measurable this
// frame"; consumers must check them before using the paired value.
type Sample struct {
	Timestamp time.Time

	FaceCount   int
	PersonCount int
	HandCount   int

	EARLeft  float64
	EARRight float64
	EARValid bool

	Gaze      Vec2
	GazeValid bool

	FaceCenter landmarks.Point
	FaceSize   float64
	FaceValid  bool

	EyeCenter landmarks.Point
	EyeValid  bool

	MouthRatio float64
	MouthValid bool

	Grip           Grip
	GripConfidence float64
}

// Extract derives a Sample from one frame. Counts cover every detected
// set; geometric measures are taken from the primary (first) face and
// the first hand that classifies to a known grip.
func Extract(frame landmarks.Frame) Sample {
	s := Sample{
		Timestamp:   frame.Timestamp,
		FaceCount:   len(frame.Faces),
		PersonCount: len(frame.Poses),
		HandCount:   len(frame.Hands),
		Grip:        GripNone,
	}

	if len(frame.Faces) > 0 {
		face := frame.Faces[0]

		left, lok := EyeAspectRatio(face, EyeLeft)
		right, rok := EyeAspectRatio(face, EyeRight)
		if lok && rok {
			s.EARLeft = left
			s.EARRight = right
			s.EARValid = true
		}

		if gaze, ok := GazeVector(face); ok {
			s.Gaze = gaze
			s.GazeValid = true
		}

		if center, size, ok := FaceGeometry(face); ok {
			s.FaceCenter = center
			s.FaceSize = size
			s.FaceValid = true
		}

		if eye, ok := EyeCenter(face); ok {
			s.EyeCenter = eye
			s.EyeValid = true
		}

		if ratio, ok := MouthRatio(face); ok {
			s.MouthRatio = ratio
			s.MouthValid = true
		}
	}

	for _, hand := range frame.Hands {
		grip, conf := ClassifyGrip(hand)
		if grip != GripNone && conf > s.GripConfidence {
			s.Grip = grip
			s.GripConfidence = conf
		}
	}

	return s
}
