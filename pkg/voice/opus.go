package voice

import (
	"fmt"

	"github.com/pion/rtp"
	"gopkg.in/hraban/opus.v2"
)

// maxFrameSamples fits the longest legal Opus frame, 120ms at 48kHz.
const maxFrameSamples = 5760

// seqTracker counts missing RTP sequence numbers with uint16 wraparound.
type seqTracker struct {
	last uint16
	have bool
	lost uint64
}

func (t *seqTracker) observe(seq uint16) {
	if t.have {
		// Gaps of 2^15 or more read as reordering, not loss.
		if gap := seq - t.last; gap > 1 && gap < 1<<15 {
			t.lost += uint64(gap - 1)
		}
	}
	t.last = seq
	t.have = true
}

// OpusStream decodes an RTP-wrapped Opus audio stream into PCM16 and
// tracks packet loss. Not safe for concurrent use.
type OpusStream struct {
	dec      *opus.Decoder
	channels int
	frame    []int16
	seq      seqTracker
	decoded  uint64
}

// NewOpusStream builds a decoder for the given stream format. Zero
// values default to 48kHz mono.
func NewOpusStream(sampleRate, channels int) (*OpusStream, error) {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	if channels <= 0 {
		channels = 1
	}
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusStream{
		dec:      dec,
		channels: channels,
		frame:    make([]int16, maxFrameSamples*channels),
	}, nil
}

// DecodeRTP unwraps one RTP datagram and decodes its Opus payload. The
// returned samples are valid until the next call.
func (s *OpusStream) DecodeRTP(datagram []byte) ([]int16, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(datagram); err != nil {
		return nil, fmt.Errorf("unmarshal rtp packet: %w", err)
	}
	s.seq.observe(pkt.SequenceNumber)
	return s.DecodePayload(pkt.Payload)
}

// DecodePayload decodes one bare Opus packet.
func (s *OpusStream) DecodePayload(payload []byte) ([]int16, error) {
	n, err := s.dec.Decode(payload, s.frame)
	if err != nil {
		return nil, fmt.Errorf("decode opus packet: %w", err)
	}
	s.decoded++
	return s.frame[:n*s.channels], nil
}

// Stats reports decoded and missing packet counts.
func (s *OpusStream) Stats() (decoded, lost uint64) {
	return s.decoded, s.seq.lost
}
