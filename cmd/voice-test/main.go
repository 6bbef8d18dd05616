// Voice Test - run the audio integrity analyzer over a recording.
// Accepts a PCM WAV file or raw little-endian PCM16.
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/sensai-labs/go-proctor/pkg/voice"
)

func main() {
	input := flag.String("input", "", "WAV or raw PCM16 file")
	rate := flag.Int("rate", 16000, "Sample rate for raw PCM input")
	chunkSec := flag.Float64("chunk", 3, "Analysis chunk length in seconds")
	speakers := flag.Bool("speakers", false, "Estimate speaker count from energy variation")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: voice-test -input recording.wav")
		os.Exit(1)
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	samples, sampleRate, err := decodeInput(data, *rate)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	if len(samples) == 0 {
		fmt.Println("❌ No audio samples found")
		os.Exit(1)
	}

	fmt.Println("🎤 Voice Integrity Test")
	fmt.Println("=======================")
	fmt.Printf("   File:    %s\n", *input)
	fmt.Printf("   Samples: %d (%.1fs at %d Hz)\n",
		len(samples), float64(len(samples))/float64(sampleRate), sampleRate)
	fmt.Println()

	cfg := voice.DefaultConfig()
	cfg.SampleRate = sampleRate
	proc := voice.NewProcessor(cfg)

	chunk := int(*chunkSec * float64(sampleRate))
	if chunk < 1 {
		chunk = sampleRate
	}

	for start := 0; start < len(samples); start += chunk {
		end := start + chunk
		if end > len(samples) {
			end = len(samples)
		}
		stats, indicators := proc.Process(samples[start:end])
		if len(indicators) > 0 {
			fmt.Printf("⚠️  %6.1fs  rms=%.4f zcr=%.2f  %v\n",
				float64(start)/float64(sampleRate), stats.RMS, stats.ZeroCrossRate, indicators)
		}
	}

	sum := proc.Summary()
	fmt.Println()
	fmt.Println("📊 Audio Summary:")
	fmt.Printf("   Analyzed:   %.1fs\n", sum.AnalyzedSeconds)
	fmt.Printf("   Speech:     %.1fs (%.0f%%)\n", sum.SpeechSeconds, sum.SpeechRatio*100)
	fmt.Printf("   Silence:    %.1fs\n", sum.SilenceSeconds)
	fmt.Printf("   Avg RMS:    %.4f\n", sum.AvgSpeechRMS)
	fmt.Printf("   Suspicious: %d chunks\n", sum.SuspiciousCount)

	if *speakers {
		count, cv := voice.EstimateSpeakers(samples)
		fmt.Printf("\n🗣  Estimated speakers: %d (energy variation %.2f)\n", count, cv)
	}
}

// decodeInput accepts a RIFF/WAVE file or raw little-endian PCM16.
func decodeInput(data []byte, fallbackRate int) ([]int16, int, error) {
	if len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return decodeWAV(data)
	}
	return voice.DecodePCM16(data), fallbackRate, nil
}

// decodeWAV walks RIFF chunks for a 16-bit PCM data chunk, mixing
// multi-channel audio down to mono.
func decodeWAV(data []byte) ([]int16, int, error) {
	sampleRate := 0
	channels := 0

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			return nil, 0, fmt.Errorf("truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, 0, fmt.Errorf("unsupported WAV format %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != 16 {
				return nil, 0, fmt.Errorf("unsupported bit depth %d (want 16)", bits)
			}

		case "data":
			if sampleRate == 0 {
				return nil, 0, fmt.Errorf("data chunk before fmt")
			}
			samples := voice.DecodePCM16(data[body : body+size])
			if channels > 1 {
				samples = mixMono(samples, channels)
			}
			return samples, sampleRate, nil
		}

		pos = body + size
		if size%2 == 1 {
			pos++ // chunks are word aligned
		}
	}
	return nil, 0, fmt.Errorf("no data chunk found")
}

func mixMono(samples []int16, channels int) []int16 {
	mono := make([]int16, 0, len(samples)/channels)
	for i := 0; i+channels <= len(samples); i += channels {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i+c])
		}
		mono = append(mono, int16(sum/channels))
	}
	return mono
}
