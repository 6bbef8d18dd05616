// Analyze - replay recorded landmark frames through the violation
// pipeline. Input is one JSON frame per line; frame timestamps drive
// all temporal logic, so a replay produces the same violations as the
// live stream it was recorded from.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sensai-labs/go-proctor/internal/log"
	"github.com/sensai-labs/go-proctor/pkg/calibration"
	"github.com/sensai-labs/go-proctor/pkg/client"
	"github.com/sensai-labs/go-proctor/pkg/landmarks"
	"github.com/sensai-labs/go-proctor/pkg/pipeline"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

func main() {
	input := flag.String("input", "", "JSONL file of landmark frames (default stdin)")
	profile := flag.String("profile", "default", "Pipeline profile: default, strict, lenient (local mode)")
	session := flag.String("session", "replay", "Session id stamped on events")
	server := flag.String("server", "", "Stream to a running server (ws://host:8080) instead of the local pipeline")
	jsonOut := flag.Bool("json", false, "Emit violations as JSON lines")
	flag.Parse()

	// Keep pipeline internals quiet on the CLI.
	log.Init("warn")

	var cfg pipeline.Config
	switch *profile {
	case "", "default":
		cfg = pipeline.DefaultConfig()
	case "strict":
		cfg = pipeline.StrictConfig()
	case "lenient":
		cfg = pipeline.LenientConfig()
	default:
		fmt.Fprintf(os.Stderr, "unknown profile %q\n", *profile)
		os.Exit(1)
	}

	var r io.Reader = os.Stdin
	source := "stdin"
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
		source = *input
	}

	if *server != "" {
		if !*jsonOut {
			fmt.Println("🎬 Frame Replay Analyzer")
			fmt.Printf("   Source:  %s\n", source)
			fmt.Printf("   Server:  %s\n", *server)
			fmt.Println()
		}
		if err := replayToServer(r, *server, *session, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		return
	}

	if !*jsonOut {
		fmt.Println("🎬 Frame Replay Analyzer")
		fmt.Printf("   Source:  %s\n", source)
		fmt.Printf("   Profile: %s\n", *profile)
		fmt.Println()
	}

	// Replay is single-goroutine; violations are read off each frame
	// result, so the pipeline's sink has nothing to do.
	p := pipeline.New(*session, cfg, pipeline.SinkFunc(
		func(context.Context, violation.Event) error { return nil }))
	defer p.Close()

	enc := json.NewEncoder(os.Stdout)
	calibrated := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 16<<20) // frames with full meshes are wide
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var frame landmarks.Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", lineNo, err)
			continue
		}

		result := p.ProcessFrame(frame)

		if !calibrated && !result.Calibrating && !result.Skipped {
			calibrated = true
			if !*jsonOut {
				if prof, ok := p.Profile(); ok {
					fmt.Printf("✅ Calibrated after %d frames (EAR %.3f/%.3f, face size %.3f)\n\n",
						prof.Frames, prof.EARLeft, prof.EARRight, prof.FaceSize)
				}
			}
		}

		for _, ev := range result.Events {
			if *jsonOut {
				enc.Encode(ev)
				continue
			}
			fmt.Printf("⚠️  %s  %-22s %-8s conf=%.2f  %s\n",
				ev.Timestamp.Format("15:04:05.000"),
				ev.Type, ev.Severity, ev.Confidence, ev.Description)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ read: %v\n", err)
		os.Exit(1)
	}

	m := p.Metrics()
	if *jsonOut {
		enc.Encode(map[string]any{"metrics": m})
		return
	}

	fmt.Println()
	fmt.Println("📊 Replay Stats:")
	fmt.Printf("   Frames seen:      %d\n", m.FramesSeen)
	fmt.Printf("   Frames processed: %d\n", m.FramesProcessed)
	fmt.Printf("   Frames skipped:   %d\n", m.FramesSkipped)
	fmt.Printf("   Candidates:       %d\n", m.Candidates)
	fmt.Printf("   Emitted:          %d\n", m.Emitted)
	fmt.Printf("   Suppressed:       %d\n", m.Suppressed)
	fmt.Printf("   Low confidence:   %d\n", m.LowConfidence)
}

// replayToServer streams the recording over the live websocket, pacing
// frames by their recorded timestamps so the server's rate limiter sees
// the original cadence. Violations arrive pushed from the server.
func replayToServer(r io.Reader, server, session string, jsonOut bool) error {
	enc := json.NewEncoder(os.Stdout)

	cl := client.NewClient(client.Config{
		ServerURL: server,
		SessionID: session,
		OnCalibrated: func(prof calibration.Profile) {
			if !jsonOut {
				fmt.Printf("✅ Calibrated after %d frames (EAR %.3f/%.3f, face size %.3f)\n\n",
					prof.Frames, prof.EARLeft, prof.EARRight, prof.FaceSize)
			}
		},
		OnViolation: func(ev violation.Event) {
			if jsonOut {
				enc.Encode(ev)
				return
			}
			fmt.Printf("⚠️  %s  %-22s %-8s conf=%.2f  %s\n",
				ev.Timestamp.Format("15:04:05.000"),
				ev.Type, ev.Severity, ev.Confidence, ev.Description)
		},
		OnError: func(text string, fatal bool) {
			fmt.Fprintf(os.Stderr, "server: %s\n", text)
		},
	})
	if err := cl.Connect(); err != nil {
		return err
	}
	defer cl.Close()

	var prev time.Time
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 16<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var frame landmarks.Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", lineNo, err)
			continue
		}

		if !prev.IsZero() {
			if gap := frame.Timestamp.Sub(prev); gap > 0 {
				if gap > 100*time.Millisecond {
					gap = 100 * time.Millisecond
				}
				time.Sleep(gap)
			}
		}
		prev = frame.Timestamp

		if err := cl.SendFrame(frame); err != nil {
			return fmt.Errorf("send frame %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read: %w", err)
	}

	summary, err := cl.End(10 * time.Second)
	if err != nil {
		return err
	}
	if jsonOut {
		return enc.Encode(map[string]any{"summary": summary})
	}
	fmt.Println()
	fmt.Println("📊 Session Summary:")
	fmt.Printf("   Integrity score:  %.0f\n", summary.IntegrityScore)
	fmt.Printf("   Frames seen:      %d\n", summary.FramesSeen)
	fmt.Printf("   Frames processed: %d\n", summary.FramesProcessed)
	fmt.Printf("   Emitted:          %d\n", summary.Emitted)
	fmt.Printf("   Suppressed:       %d\n", summary.Suppressed)
	return nil
}
