// Package voice analyzes examinee audio for integrity signals:
// chunk-level activity detection, whisper and distortion flags, and
// speaker patterns. Input is PCM16; Opus/RTP streams are decoded at
// the edge.
package voice

import (
	"encoding/binary"
	"math"
)

// ChunkStats summarizes one audio chunk. Amplitudes are normalized to
// [-1, 1].
type ChunkStats struct {
	RMS           float64 `json:"rms"`
	ZeroCrossRate float64 `json:"zero_cross_rate"`
	Peak          float64 `json:"peak"`
	Seconds       float64 `json:"seconds"`
	Speech        bool    `json:"speech"`
}

// AnalyzePCM computes energy and spectral-proxy statistics for a chunk
// of PCM16 samples. Speech is judged by RMS against threshold.
func AnalyzePCM(samples []int16, sampleRate int, threshold float64) ChunkStats {
	var stats ChunkStats
	if len(samples) == 0 || sampleRate <= 0 {
		return stats
	}

	var sumSq float64
	crossings := 0
	prevSign := sign(samples[0])
	for _, s := range samples {
		v := float64(s) / 32768.0
		sumSq += v * v
		if a := math.Abs(v); a > stats.Peak {
			stats.Peak = a
		}
		if sg := sign(s); sg != prevSign {
			crossings++
			prevSign = sg
		}
	}

	stats.RMS = math.Sqrt(sumSq / float64(len(samples)))
	stats.ZeroCrossRate = float64(crossings) / float64(len(samples))
	stats.Seconds = float64(len(samples)) / float64(sampleRate)
	stats.Speech = stats.RMS > threshold
	return stats
}

func sign(s int16) int {
	switch {
	case s > 0:
		return 1
	case s < 0:
		return -1
	}
	return 0
}

// DecodePCM16 converts little-endian PCM16 bytes to samples. A
// trailing odd byte is dropped.
func DecodePCM16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// EncodePCM16 converts samples to little-endian PCM16 bytes.
func EncodePCM16(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}
