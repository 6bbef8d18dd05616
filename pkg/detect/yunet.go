package detect

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/sensai-labs/go-proctor/internal/log"
	"github.com/sensai-labs/go-proctor/pkg/landmarks"
)

// YuNet uses OpenCV's FaceDetectorYN for face detection.
type YuNet struct {
	detector gocv.FaceDetectorYN
	cfg      FaceConfig
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a YuNet face detector using GoCV's built-in
// FaceDetectorYN.
func NewYuNet(cfg FaceConfig) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	// Input size is updated per image before each detection.
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{
		detector: detector,
		cfg:      cfg,
	}, nil
}

// Detect finds faces in the JPEG image. Each detection carries the
// five YuNet keypoints: eyes, nose tip, and mouth corners.
func (d *YuNet) Detect(jpeg []byte) ([]Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	out := gocv.NewMat()
	defer out.Close()

	d.detector.Detect(img, &out)

	// YuNet output rows have 15 columns: bounding box (0-3), five
	// keypoints as x,y pairs (4-13), and the face score (14).
	var faces []Face
	for r := 0; r < out.Rows(); r++ {
		f := Face{
			Box: Box{
				X:          float64(out.GetFloatAt(r, 0)) / imgW,
				Y:          float64(out.GetFloatAt(r, 1)) / imgH,
				W:          float64(out.GetFloatAt(r, 2)) / imgW,
				H:          float64(out.GetFloatAt(r, 3)) / imgH,
				Confidence: float64(out.GetFloatAt(r, 14)),
			},
			RightEye:   keypointAt(out, r, 4, imgW, imgH),
			LeftEye:    keypointAt(out, r, 6, imgW, imgH),
			NoseTip:    keypointAt(out, r, 8, imgW, imgH),
			MouthRight: keypointAt(out, r, 10, imgW, imgH),
			MouthLeft:  keypointAt(out, r, 12, imgW, imgH),
		}
		faces = append(faces, f)
	}

	if len(faces) > 0 {
		log.Debug("yunet detected faces", "count", len(faces))
	}
	return faces, nil
}

// Close releases the detector resources.
func (d *YuNet) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

func keypointAt(m gocv.Mat, row, col int, imgW, imgH float64) landmarks.Point {
	return landmarks.Point{
		X: float64(m.GetFloatAt(row, col)) / imgW,
		Y: float64(m.GetFloatAt(row, col+1)) / imgH,
	}
}
