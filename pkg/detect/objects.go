package detect

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/sensai-labs/go-proctor/internal/log"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// Object is a detected object with class info.
type Object struct {
	Box
	ClassID   int    // COCO class ID
	ClassName string // Human-readable class name
}

// YOLO uses YOLOv8 for general object detection.
type YOLO struct {
	net       gocv.Net
	cfg       ObjectConfig
	mu        sync.Mutex
	inputSize image.Point
}

// ObjectConfig holds YOLO detector configuration.
type ObjectConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
}

// DefaultObjectConfig returns production defaults for YOLOv8n.
func DefaultObjectConfig() ObjectConfig {
	return ObjectConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// NewYOLO creates a YOLO object detector.
func NewYOLO(cfg ObjectConfig) (*YOLO, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLO{
		net:       net,
		cfg:       cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect finds objects in the JPEG image.
func (d *YOLO) Detect(jpeg []byte) ([]Object, error) {
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

	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	objects := d.parseYOLOv8Output(output, imgW, imgH)
	if len(objects) > 0 {
		log.Debug("yolo detected objects", "count", len(objects))
	}
	return objects, nil
}

// parseYOLOv8Output parses the YOLOv8 output tensor. Output shape is
// [1, 84, 8400]: 4 bbox values plus 80 class scores per detection.
func (d *YOLO) parseYOLOv8Output(output gocv.Mat, imgW, imgH float32) []Object {
	var objects []Object
	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	rows := output.Cols() // 8400 detections
	cols := output.Rows() // 84 (4 bbox + 80 classes)

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil
	}

	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < cols; c++ {
			score := data[c*rows+i]
			if score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}
		if maxScore < d.cfg.ConfidenceThresh {
			continue
		}

		// Center-format bbox, scaled to image size.
		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		x1 := int((cx - w/2) * imgW / float32(d.cfg.InputWidth))
		y1 := int((cy - h/2) * imgH / float32(d.cfg.InputHeight))
		x2 := int((cx + w/2) * imgW / float32(d.cfg.InputWidth))
		y2 := int((cy + h/2) * imgH / float32(d.cfg.InputHeight))

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	if len(boxes) == 0 {
		return objects
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.cfg.ConfidenceThresh, d.cfg.NMSThresh)
	for _, idx := range indices {
		box := boxes[idx]
		objects = append(objects, Object{
			Box: Box{
				X:          float64(box.Min.X) / float64(imgW),
				Y:          float64(box.Min.Y) / float64(imgH),
				W:          float64(box.Dx()) / float64(imgW),
				H:          float64(box.Dy()) / float64(imgH),
				Confidence: float64(confidences[idx]),
			},
			ClassID:   classIDs[idx],
			ClassName: COCOClasses[classIDs[idx]],
		})
	}
	return objects
}

// Close releases the detector resources.
func (d *YOLO) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.Close()
	return nil
}

// COCOClasses contains the 80 COCO class names.
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// IsPerson returns true if the class is a person.
func IsPerson(className string) bool {
	return className == "person"
}

// contraband maps exam-prohibited object classes to their violation
// severity. Phones are graded above reference material.
var contraband = map[string]violation.Severity{
	"cell phone": violation.SeverityCritical,
	"book":       violation.SeverityHigh,
	"remote":     violation.SeverityHigh,
}

// IsContraband returns true if the class is prohibited during an exam.
func IsContraband(className string) bool {
	_, ok := contraband[className]
	return ok
}
