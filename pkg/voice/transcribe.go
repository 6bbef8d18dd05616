package voice

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/listen"

	"github.com/sensai-labs/go-proctor/internal/log"
)

// TranscriberConfig holds live transcription parameters.
type TranscriberConfig struct {
	APIKey     string
	Model      string // empty selects nova-2
	Language   string // empty selects en
	SampleRate int    // Hz, PCM16 mono
}

// Transcript is one finalized utterance.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Transcriber streams exam audio to Deepgram and collects finalized
// transcripts with their confidences. The running mean confidence
// feeds the audio integrity scorer.
type Transcriber struct {
	client *listen.WSCallback
	cb     *transcriberCallback
}

// NewTranscriber builds a live transcription client. An empty API key
// is an error; callers treat transcription as optional.
func NewTranscriber(ctx context.Context, cfg TranscriberConfig) (*Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("voice: transcription api key not set")
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}

	options := &interfaces.LiveTranscriptionOptions{
		Model:          cfg.Model,
		Language:       cfg.Language,
		Encoding:       "linear16",
		SampleRate:     cfg.SampleRate,
		Channels:       1,
		InterimResults: false,
		Punctuate:      true,
	}
	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}

	cb := &transcriberCallback{}
	client, err := listen.NewWebSocketUsingCallback(ctx, cfg.APIKey, clientOptions, options, cb)
	if err != nil {
		return nil, err
	}
	return &Transcriber{client: client, cb: cb}, nil
}

// Connect opens the websocket. It reports false when the connection
// could not be established.
func (t *Transcriber) Connect() bool {
	return t.client.Connect()
}

// Send streams PCM16 bytes to the transcription service.
func (t *Transcriber) Send(data []byte) error {
	err := t.client.Stream(bufio.NewReader(bytes.NewReader(data)))
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

// Close stops the websocket.
func (t *Transcriber) Close() {
	t.client.Stop()
}

// Transcripts returns the finalized utterances so far.
func (t *Transcriber) Transcripts() []Transcript {
	return t.cb.snapshot()
}

// MeanConfidence returns the running mean transcript confidence, or
// zero before any utterance finalizes.
func (t *Transcriber) MeanConfidence() float64 {
	return t.cb.meanConfidence()
}

// transcriberCallback receives Deepgram websocket events.
type transcriberCallback struct {
	mu          sync.Mutex
	transcripts []Transcript
	confSum     float64
}

func (c *transcriberCallback) snapshot() []Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Transcript, len(c.transcripts))
	copy(out, c.transcripts)
	return out
}

func (c *transcriberCallback) meanConfidence() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.transcripts) == 0 {
		return 0
	}
	return c.confSum / float64(len(c.transcripts))
}

func (c *transcriberCallback) Open(or *msginterfaces.OpenResponse) error {
	log.Info("transcription socket opened")
	return nil
}

func (c *transcriberCallback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" || !mr.IsFinal {
		return nil
	}

	c.mu.Lock()
	c.transcripts = append(c.transcripts, Transcript{Text: text, Confidence: alt.Confidence})
	c.confSum += alt.Confidence
	c.mu.Unlock()

	log.Debug("transcript finalized", "confidence", alt.Confidence, "chars", len(text))
	return nil
}

func (c *transcriberCallback) Metadata(md *msginterfaces.MetadataResponse) error {
	return nil
}

func (c *transcriberCallback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	return nil
}

func (c *transcriberCallback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	return nil
}

func (c *transcriberCallback) Close(cr *msginterfaces.CloseResponse) error {
	log.Info("transcription socket closed")
	return nil
}

func (c *transcriberCallback) Error(er *msginterfaces.ErrorResponse) error {
	log.Error("transcription socket error", "description", er.Description)
	return nil
}

func (c *transcriberCallback) UnhandledEvent(byData []byte) error {
	log.Debug("unhandled transcription event", "bytes", len(byData))
	return nil
}
