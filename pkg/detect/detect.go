// Package detect provides server-side face and object detection for
// snapshot spot checks. Detectors run on demand against single JPEG
// frames; the per-frame landmark pipeline never waits on them.
package detect

import (
	"github.com/sensai-labs/go-proctor/pkg/landmarks"
)

// Box is a detection bounding box, normalized to the frame.
type Box struct {
	X, Y       float64 // top-left corner (0-1 normalized)
	W, H       float64 // width and height (0-1 normalized)
	Confidence float64 // detection confidence (0-1)
}

// Center returns the center point of the box.
func (b Box) Center() (x, y float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns the area of the box.
func (b Box) Area() float64 {
	return b.W * b.H
}

// Face is one detected face with the five YuNet keypoints.
type Face struct {
	Box
	RightEye   landmarks.Point
	LeftEye    landmarks.Point
	NoseTip    landmarks.Point
	MouthRight landmarks.Point
	MouthLeft  landmarks.Point
}

// FaceDetector is the interface for face detection backends.
type FaceDetector interface {
	// Detect finds faces in the JPEG image.
	Detect(jpeg []byte) ([]Face, error)

	// Close releases resources.
	Close() error
}

// ObjectDetector is the interface for object detection backends.
type ObjectDetector interface {
	// Detect finds objects in the JPEG image.
	Detect(jpeg []byte) ([]Object, error)

	// Close releases resources.
	Close() error
}

// FaceConfig holds face detector configuration.
type FaceConfig struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultFaceConfig returns production defaults for YuNet.
func DefaultFaceConfig() FaceConfig {
	return FaceConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// SelectPrimary picks the candidate's face from multiple detections,
// scoring confidence*0.7 + area*0.3.
func SelectPrimary(faces []Face) *Face {
	if len(faces) == 0 {
		return nil
	}
	if len(faces) == 1 {
		return &faces[0]
	}

	maxArea := 0.0
	for _, f := range faces {
		if f.Area() > maxArea {
			maxArea = f.Area()
		}
	}

	bestScore := -1.0
	var best *Face
	for i := range faces {
		score := faces[i].Confidence*0.7 + (faces[i].Area()/maxArea)*0.3
		if score > bestScore {
			bestScore = score
			best = &faces[i]
		}
	}
	return best
}
