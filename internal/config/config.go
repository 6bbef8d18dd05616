// Package config loads proctord configuration from a YAML file with
// environment overrides for deployment-specific values and secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/sensai-labs/go-proctor/pkg/archive"
	"github.com/sensai-labs/go-proctor/pkg/detect"
	"github.com/sensai-labs/go-proctor/pkg/notify"
	"github.com/sensai-labs/go-proctor/pkg/pipeline"
	"github.com/sensai-labs/go-proctor/pkg/sessions"
	"github.com/sensai-labs/go-proctor/pkg/voice"
)

// Config is the full proctord configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Sessions SessionsConfig `yaml:"sessions"`
	Store    StoreConfig    `yaml:"store"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Detect   DetectConfig   `yaml:"detect"`
	Voice    VoiceConfig    `yaml:"voice"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

// ServerConfig configures the HTTP/websocket server.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	CORSOrigins string `yaml:"cors_origins"`
	BodyLimitMB int    `yaml:"body_limit_mb"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// PipelineConfig selects a pipeline profile and optionally overrides
// individual thresholds. Zero values keep the profile's setting.
type PipelineConfig struct {
	Profile       string  `yaml:"profile"` // default, strict, lenient
	FrameSkip     int     `yaml:"frame_skip"`
	WarmupFrames  int     `yaml:"warmup_frames"`
	ConfirmFrames int     `yaml:"confirm_frames"`
	GazeThreshold float64 `yaml:"gaze_threshold"`
	MinConfidence float64 `yaml:"min_confidence"`
	EmitTimeout   string  `yaml:"emit_timeout"`

	parsedEmitTimeout time.Duration
}

// SessionsConfig configures the session arena.
type SessionsConfig struct {
	MaxSessions   int     `yaml:"max_sessions"`
	IdleTimeout   string  `yaml:"idle_timeout"`
	SweepInterval string  `yaml:"sweep_interval"`
	FrameRate     float64 `yaml:"frame_rate"`
	FrameBurst    int     `yaml:"frame_burst"`

	parsedIdleTimeout   time.Duration
	parsedSweepInterval time.Duration
}

// StoreConfig configures persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ArchiveConfig configures the GCS evidence uploader.
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsPath string `yaml:"credentials_path"`
	UploadTimeout   string `yaml:"upload_timeout"`

	parsedUploadTimeout time.Duration
}

// DetectConfig configures the snapshot detectors.
type DetectConfig struct {
	Enabled     bool    `yaml:"enabled"`
	FaceModel   string  `yaml:"face_model"`
	ObjectModel string  `yaml:"object_model"`
	Confidence  float64 `yaml:"confidence"`
}

// VoiceConfig configures audio analysis. The Deepgram key only comes
// from the environment, never from the file.
type VoiceConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SampleRate int    `yaml:"sample_rate"`
	Model      string `yaml:"model"`
	Language   string `yaml:"language"`
	APIKey     string `yaml:"-"`
}

// WebhookConfig configures outbound violation alerts. An empty URL
// disables the notifier.
type WebhookConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`

	parsedTimeout time.Duration
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, and parses duration strings. An empty path loads pure
// defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.parseDurations(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BodyLimitMB <= 0 {
		c.Server.BodyLimitMB = 8 // JPEG snapshots fit comfortably
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Pipeline.Profile == "" {
		c.Pipeline.Profile = "default"
	}
	if c.Store.Path == "" {
		c.Store.Path = "proctor.db"
	}
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "proctor"
	}
	if c.Voice.SampleRate <= 0 {
		c.Voice.SampleRate = 16000
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PROCTOR_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PROCTOR_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("PROCTOR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PROCTOR_PROFILE"); v != "" {
		c.Pipeline.Profile = v
	}
	if v := os.Getenv("PROCTOR_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sessions.MaxSessions = n
		}
	}
	if v := os.Getenv("DEEPGRAM_API_KEY"); v != "" {
		c.Voice.APIKey = v
	}
	if v := os.Getenv("PROCTOR_WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && c.Archive.CredentialsPath == "" {
		c.Archive.CredentialsPath = v
	}
}

func (c *Config) parseDurations() error {
	var err error
	if c.Pipeline.parsedEmitTimeout, err = parseOptional("pipeline.emit_timeout", c.Pipeline.EmitTimeout); err != nil {
		return err
	}
	if c.Sessions.parsedIdleTimeout, err = parseOptional("sessions.idle_timeout", c.Sessions.IdleTimeout); err != nil {
		return err
	}
	if c.Sessions.parsedSweepInterval, err = parseOptional("sessions.sweep_interval", c.Sessions.SweepInterval); err != nil {
		return err
	}
	if c.Archive.parsedUploadTimeout, err = parseOptional("archive.upload_timeout", c.Archive.UploadTimeout); err != nil {
		return err
	}
	if c.Webhook.parsedTimeout, err = parseOptional("webhook.timeout", c.Webhook.Timeout); err != nil {
		return err
	}
	return nil
}

func parseOptional(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

// PipelineConfig resolves the named profile and applies overrides.
func (c Config) PipelineConfig() (pipeline.Config, error) {
	var pc pipeline.Config
	switch c.Pipeline.Profile {
	case "", "default":
		pc = pipeline.DefaultConfig()
	case "strict":
		pc = pipeline.StrictConfig()
	case "lenient":
		pc = pipeline.LenientConfig()
	default:
		return pipeline.Config{}, fmt.Errorf("unknown pipeline profile %q", c.Pipeline.Profile)
	}

	if c.Pipeline.FrameSkip > 0 {
		pc.FrameSkip = c.Pipeline.FrameSkip
	}
	if c.Pipeline.WarmupFrames > 0 {
		pc.Calibration.WarmupFrames = c.Pipeline.WarmupFrames
	}
	if c.Pipeline.ConfirmFrames > 0 {
		pc.Smoothing.ConfirmFrames = c.Pipeline.ConfirmFrames
	}
	if c.Pipeline.GazeThreshold > 0 {
		pc.Classify.GazeThreshold = c.Pipeline.GazeThreshold
	}
	if c.Pipeline.MinConfidence > 0 {
		pc.Throttle.MinConfidence = c.Pipeline.MinConfidence
	}
	if c.Pipeline.parsedEmitTimeout > 0 {
		pc.EmitTimeout = c.Pipeline.parsedEmitTimeout
	}
	return pc.Normalize(), nil
}

// SessionsConfig builds the session arena configuration, embedding the
// resolved pipeline config.
func (c Config) SessionsConfig() (sessions.Config, error) {
	pc, err := c.PipelineConfig()
	if err != nil {
		return sessions.Config{}, err
	}

	sc := sessions.DefaultConfig()
	sc.Pipeline = pc
	if c.Sessions.MaxSessions > 0 {
		sc.MaxSessions = c.Sessions.MaxSessions
	}
	if c.Sessions.parsedIdleTimeout > 0 {
		sc.IdleTimeout = c.Sessions.parsedIdleTimeout
	}
	if c.Sessions.parsedSweepInterval > 0 {
		sc.SweepInterval = c.Sessions.parsedSweepInterval
	}
	if c.Sessions.FrameRate > 0 {
		sc.FrameRate = rate.Limit(c.Sessions.FrameRate)
	}
	if c.Sessions.FrameBurst > 0 {
		sc.FrameBurst = c.Sessions.FrameBurst
	}
	return sc, nil
}

// ArchiveConfig builds the evidence uploader configuration.
func (c Config) ArchiveConfig() archive.Config {
	ac := archive.DefaultConfig()
	ac.Bucket = c.Archive.Bucket
	if c.Archive.Prefix != "" {
		ac.Prefix = c.Archive.Prefix
	}
	ac.CredentialsPath = c.Archive.CredentialsPath
	if c.Archive.parsedUploadTimeout > 0 {
		ac.UploadTimeout = c.Archive.parsedUploadTimeout
	}
	return ac
}

// NotifyConfig builds the webhook notifier configuration.
func (c Config) NotifyConfig() notify.Config {
	nc := notify.DefaultConfig()
	nc.URL = c.Webhook.URL
	if c.Webhook.parsedTimeout > 0 {
		nc.Timeout = c.Webhook.parsedTimeout
	}
	return nc
}

// DetectConfigs builds the snapshot detector configurations.
func (c Config) DetectConfigs() (detect.FaceConfig, detect.ObjectConfig) {
	fc := detect.DefaultFaceConfig()
	if c.Detect.FaceModel != "" {
		fc.ModelPath = c.Detect.FaceModel
	}
	if c.Detect.Confidence > 0 {
		fc.ConfidenceThresh = c.Detect.Confidence
	}

	oc := detect.DefaultObjectConfig()
	if c.Detect.ObjectModel != "" {
		oc.ModelPath = c.Detect.ObjectModel
	}
	if c.Detect.Confidence > 0 {
		oc.ConfidenceThresh = float32(c.Detect.Confidence)
	}
	return fc, oc
}

// VoiceConfigs builds the audio analyzer and transcriber
// configurations.
func (c Config) VoiceConfigs() (voice.Config, voice.TranscriberConfig) {
	vc := voice.DefaultConfig()
	if c.Voice.SampleRate > 0 {
		vc.SampleRate = c.Voice.SampleRate
	}

	tc := voice.TranscriberConfig{
		APIKey:     c.Voice.APIKey,
		Model:      c.Voice.Model,
		Language:   c.Voice.Language,
		SampleRate: vc.SampleRate,
	}
	return vc, tc
}
