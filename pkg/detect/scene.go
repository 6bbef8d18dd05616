package detect

import (
	"fmt"

	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// Scene is the outcome of one snapshot scan.
type Scene struct {
	Faces      []Face   `json:"faces"`
	People     []Object `json:"people"`
	Contraband []Object `json:"contraband"`

	// Which detectors actually ran. Absence rules only fire for
	// checks that happened.
	FacesChecked   bool `json:"faces_checked"`
	ObjectsChecked bool `json:"objects_checked"`
}

// Scanner composes the face and object detectors. Either may be nil
// when its model is not deployed.
type Scanner struct {
	faces   FaceDetector
	objects ObjectDetector
}

// NewScanner builds a scanner over the given detectors.
func NewScanner(faces FaceDetector, objects ObjectDetector) *Scanner {
	return &Scanner{faces: faces, objects: objects}
}

// Scan runs every configured detector against one JPEG frame.
func (s *Scanner) Scan(jpeg []byte) (Scene, error) {
	var scene Scene

	if s.faces != nil {
		faces, err := s.faces.Detect(jpeg)
		if err != nil {
			return Scene{}, fmt.Errorf("face scan: %w", err)
		}
		scene.Faces = faces
		scene.FacesChecked = true
	}

	if s.objects != nil {
		objects, err := s.objects.Detect(jpeg)
		if err != nil {
			return Scene{}, fmt.Errorf("object scan: %w", err)
		}
		for _, o := range objects {
			switch {
			case IsPerson(o.ClassName):
				scene.People = append(scene.People, o)
			case IsContraband(o.ClassName):
				scene.Contraband = append(scene.Contraband, o)
			}
		}
		scene.ObjectsChecked = true
	}

	return scene, nil
}

// Close closes the underlying detectors.
func (s *Scanner) Close() error {
	var first error
	if s.faces != nil {
		if err := s.faces.Close(); err != nil {
			first = err
		}
	}
	if s.objects != nil {
		if err := s.objects.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Candidates converts scan findings into violation candidates. The
// caller decides whether they become events or review flags.
func (sc Scene) Candidates() []violation.Candidate {
	var out []violation.Candidate

	if sc.FacesChecked {
		switch n := len(sc.Faces); {
		case n == 0:
			out = append(out, violation.Candidate{
				Type:        violation.FaceAbsent,
				Severity:    violation.SeverityHigh,
				Confidence:  0.95,
				Description: "no face visible in snapshot",
				Evidence:    map[string]any{"source": "snapshot"},
			})
		case n > 1:
			out = append(out, violation.Candidate{
				Type:        violation.FaceMultiple,
				Severity:    violation.SeverityCritical,
				Confidence:  0.9,
				Description: fmt.Sprintf("%d faces visible in snapshot", n),
				Evidence:    map[string]any{"source": "snapshot", "faces": n},
			})
		}
	}

	if sc.ObjectsChecked && len(sc.People) > 1 {
		out = append(out, violation.Candidate{
			Type:        violation.MultiplePeople,
			Severity:    violation.SeverityCritical,
			Confidence:  0.9,
			Description: fmt.Sprintf("%d people visible in snapshot", len(sc.People)),
			Evidence:    map[string]any{"source": "snapshot", "people": len(sc.People)},
		})
	}

	for _, o := range sc.Contraband {
		out = append(out, violation.Candidate{
			Type:        violation.UnauthorizedObjectGrip,
			Severity:    contraband[o.ClassName],
			Confidence:  o.Confidence,
			Description: fmt.Sprintf("%s visible in snapshot", o.ClassName),
			Evidence:    map[string]any{"source": "snapshot", "object": o.ClassName},
		})
	}

	return out
}
