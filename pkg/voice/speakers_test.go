package voice

import (
	"math"
	"strings"
	"testing"
)

func TestAnalyzeSpeakers(t *testing.T) {
	tests := []struct {
		name         string
		segments     []Segment
		wantCount    int
		wantRatio    float64
		wantSwitches int
		wantOverlap  float64
		wantPatterns []string
	}{
		{
			name:      "no segments",
			wantCount: 0,
			wantRatio: 1,
		},
		{
			name: "single speaker",
			segments: []Segment{
				{Speaker: "A", Start: 0, End: 10},
				{Speaker: "A", Start: 12, End: 20},
			},
			wantCount: 1,
			wantRatio: 1,
		},
		{
			name: "two balanced speakers",
			segments: []Segment{
				{Speaker: "A", Start: 0, End: 10},
				{Speaker: "B", Start: 10, End: 20},
			},
			wantCount:    2,
			wantRatio:    0.5,
			wantSwitches: 1,
			wantPatterns: []string{
				"multiple speakers detected (2)",
				"no dominant speaker",
			},
		},
		{
			name: "coaching cadence",
			segments: []Segment{
				{Speaker: "A", Start: 0, End: 2},
				{Speaker: "B", Start: 2, End: 4},
				{Speaker: "A", Start: 4, End: 6},
				{Speaker: "B", Start: 6, End: 8},
				{Speaker: "A", Start: 8, End: 10},
				{Speaker: "B", Start: 10, End: 12},
				{Speaker: "A", Start: 12, End: 14},
			},
			wantCount:    2,
			wantRatio:    8.0 / 14.0,
			wantSwitches: 6,
			wantPatterns: []string{
				"multiple speakers detected (2)",
				"no dominant speaker",
				"rapid alternating speakers",
			},
		},
		{
			name: "overlapping speech",
			segments: []Segment{
				{Speaker: "A", Start: 0, End: 10},
				{Speaker: "B", Start: 4, End: 12},
			},
			wantCount:    2,
			wantRatio:    10.0 / 18.0,
			wantSwitches: 1,
			wantOverlap:  6,
			wantPatterns: []string{
				"multiple speakers detected (2)",
				"no dominant speaker",
				"overlapping speech (6.0s)",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeSpeakers(tt.segments)
			if got.SpeakerCount != tt.wantCount {
				t.Errorf("SpeakerCount = %d, want %d", got.SpeakerCount, tt.wantCount)
			}
			if math.Abs(got.PrimarySpeakerRatio-tt.wantRatio) > eps {
				t.Errorf("PrimarySpeakerRatio = %v, want %v", got.PrimarySpeakerRatio, tt.wantRatio)
			}
			if got.SpeakerSwitches != tt.wantSwitches {
				t.Errorf("SpeakerSwitches = %d, want %d", got.SpeakerSwitches, tt.wantSwitches)
			}
			if math.Abs(got.OverlapSeconds-tt.wantOverlap) > eps {
				t.Errorf("OverlapSeconds = %v, want %v", got.OverlapSeconds, tt.wantOverlap)
			}
			if joined := strings.Join(got.SuspiciousPatterns, "; "); joined != strings.Join(tt.wantPatterns, "; ") {
				t.Errorf("SuspiciousPatterns = %q, want %q", joined, strings.Join(tt.wantPatterns, "; "))
			}
		})
	}
}

func TestAnalyzeSpeakersUnsortedInput(t *testing.T) {
	ordered := AnalyzeSpeakers([]Segment{
		{Speaker: "A", Start: 0, End: 2},
		{Speaker: "B", Start: 2, End: 4},
		{Speaker: "A", Start: 4, End: 6},
	})
	shuffled := AnalyzeSpeakers([]Segment{
		{Speaker: "A", Start: 4, End: 6},
		{Speaker: "A", Start: 0, End: 2},
		{Speaker: "B", Start: 2, End: 4},
	})
	if ordered.SpeakerSwitches != shuffled.SpeakerSwitches {
		t.Errorf("switches differ for reordered input: %d vs %d",
			ordered.SpeakerSwitches, shuffled.SpeakerSwitches)
	}
}

func TestSpeakerReportEvidence(t *testing.T) {
	r := SpeakerReport{
		SpeakerCount:        3,
		PrimarySpeakerRatio: 0.35,
		SpeakerSwitches:     25,
	}
	ev := r.Evidence()
	if ev.SpeakerCount != 3 || ev.SpeakerSwitches != 25 {
		t.Errorf("evidence counts = %d/%d, want 3/25", ev.SpeakerCount, ev.SpeakerSwitches)
	}
	if math.Abs(ev.PrimarySpeakerRatio-0.35) > eps {
		t.Errorf("PrimarySpeakerRatio = %v, want 0.35", ev.PrimarySpeakerRatio)
	}
}

func TestEstimateSpeakers(t *testing.T) {
	steady := squareWave(1000, 8, 3277)

	varied := make([]int16, 1000)
	for i := range varied {
		amp := int16(8000)
		if (i/100)%2 == 1 {
			amp = 200
		}
		if i%8 < 4 {
			varied[i] = amp
		} else {
			varied[i] = -amp
		}
	}

	if n, cv := EstimateSpeakers(steady); n != 1 || cv > eps {
		t.Errorf("steady audio: speakers = %d cv = %v, want 1 speaker with no variation", n, cv)
	}
	if n, cv := EstimateSpeakers(varied); n != 2 {
		t.Errorf("varied audio: speakers = %d (cv %v), want 2", n, cv)
	}
	if n, _ := EstimateSpeakers(nil); n != 1 {
		t.Errorf("empty audio: speakers = %d, want 1", n)
	}
}
