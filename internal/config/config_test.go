package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proctord.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level %q, want info", cfg.Logging.Level)
	}
	if cfg.Store.Path != "proctor.db" {
		t.Errorf("store path %q", cfg.Store.Path)
	}
	if cfg.Voice.SampleRate != 16000 {
		t.Errorf("sample rate %d, want 16000", cfg.Voice.SampleRate)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  body_limit_mb: 16
pipeline:
  profile: strict
  frame_skip: 5
  emit_timeout: 500ms
sessions:
  max_sessions: 10
  idle_timeout: 2m
store:
  path: /tmp/exams.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.BodyLimitMB != 16 {
		t.Errorf("server %+v", cfg.Server)
	}
	if cfg.Store.Path != "/tmp/exams.db" {
		t.Errorf("store path %q", cfg.Store.Path)
	}

	pc, err := cfg.PipelineConfig()
	if err != nil {
		t.Fatalf("pipeline config: %v", err)
	}
	// Strict profile with explicit frame skip override.
	if pc.FrameSkip != 5 {
		t.Errorf("frame skip %d, want 5", pc.FrameSkip)
	}
	if pc.Classify.GazeThreshold != 0.15 {
		t.Errorf("gaze threshold %v, want strict 0.15", pc.Classify.GazeThreshold)
	}
	if pc.EmitTimeout != 500*time.Millisecond {
		t.Errorf("emit timeout %v", pc.EmitTimeout)
	}

	sc, err := cfg.SessionsConfig()
	if err != nil {
		t.Fatalf("sessions config: %v", err)
	}
	if sc.MaxSessions != 10 {
		t.Errorf("max sessions %d, want 10", sc.MaxSessions)
	}
	if sc.IdleTimeout != 2*time.Minute {
		t.Errorf("idle timeout %v, want 2m", sc.IdleTimeout)
	}
	if sc.Pipeline.FrameSkip != 5 {
		t.Errorf("embedded pipeline frame skip %d", sc.Pipeline.FrameSkip)
	}
}

func TestProfileOverride(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  profile: lenient
  gaze_threshold: 0.3
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	pc, err := cfg.PipelineConfig()
	if err != nil {
		t.Fatalf("pipeline config: %v", err)
	}
	if pc.Classify.GazeThreshold != 0.3 {
		t.Errorf("gaze threshold %v, want explicit 0.3 over lenient 0.4", pc.Classify.GazeThreshold)
	}
}

func TestUnknownProfile(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  profile: paranoid\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := cfg.PipelineConfig(); err == nil {
		t.Error("unknown profile accepted")
	}
	if _, err := cfg.SessionsConfig(); err == nil {
		t.Error("sessions config accepted unknown profile")
	}
}

func TestInvalidDuration(t *testing.T) {
	path := writeConfig(t, "sessions:\n  idle_timeout: sometimes\n")
	if _, err := Load(path); err == nil {
		t.Error("invalid duration accepted")
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/proctord.yaml"); err == nil {
		t.Error("missing file accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PROCTOR_ADDR", ":7777")
	t.Setenv("PROCTOR_DB", "/var/db/p.db")
	t.Setenv("DEEPGRAM_API_KEY", "dg-test-key")
	t.Setenv("PROCTOR_MAX_SESSIONS", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Errorf("addr %q", cfg.Server.Addr)
	}
	if cfg.Store.Path != "/var/db/p.db" {
		t.Errorf("store path %q", cfg.Store.Path)
	}
	if cfg.Sessions.MaxSessions != 3 {
		t.Errorf("max sessions %d", cfg.Sessions.MaxSessions)
	}

	_, tc := cfg.VoiceConfigs()
	if tc.APIKey != "dg-test-key" {
		t.Errorf("transcriber key %q", tc.APIKey)
	}
	if tc.SampleRate != 16000 {
		t.Errorf("transcriber sample rate %d", tc.SampleRate)
	}
}

func TestDetectConfigs(t *testing.T) {
	path := writeConfig(t, `
detect:
  enabled: true
  face_model: /models/yunet.onnx
  confidence: 0.6
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	fc, oc := cfg.DetectConfigs()
	if fc.ModelPath != "/models/yunet.onnx" {
		t.Errorf("face model %q", fc.ModelPath)
	}
	if fc.ConfidenceThresh != 0.6 {
		t.Errorf("face confidence %v", fc.ConfidenceThresh)
	}
	if oc.ConfidenceThresh != 0.6 {
		t.Errorf("object confidence %v", oc.ConfidenceThresh)
	}
	// Object model keeps its default when unset.
	if oc.ModelPath == "" {
		t.Error("object model should default")
	}
}

func TestArchiveConfig(t *testing.T) {
	path := writeConfig(t, `
archive:
  enabled: true
  bucket: exam-evidence
  upload_timeout: 10s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ac := cfg.ArchiveConfig()
	if ac.Bucket != "exam-evidence" {
		t.Errorf("bucket %q", ac.Bucket)
	}
	if ac.Prefix != "proctor" {
		t.Errorf("prefix %q, want default", ac.Prefix)
	}
	if ac.UploadTimeout != 10*time.Second {
		t.Errorf("upload timeout %v", ac.UploadTimeout)
	}
}

func TestWebhookConfig(t *testing.T) {
	path := writeConfig(t, `
webhook:
  url: https://lms.example.com/hooks/violations
  timeout: 2s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	nc := cfg.NotifyConfig()
	if nc.URL != "https://lms.example.com/hooks/violations" {
		t.Errorf("url %q", nc.URL)
	}
	if nc.Timeout != 2*time.Second {
		t.Errorf("timeout %v", nc.Timeout)
	}

	// Unset URL leaves the notifier disabled but keeps a sane timeout.
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	nc = cfg.NotifyConfig()
	if nc.URL != "" {
		t.Errorf("default url %q, want empty", nc.URL)
	}
	if nc.Timeout != 5*time.Second {
		t.Errorf("default timeout %v", nc.Timeout)
	}

	t.Setenv("PROCTOR_WEBHOOK_URL", "https://env.example.com/hook")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if cfg.Webhook.URL != "https://env.example.com/hook" {
		t.Errorf("env url %q", cfg.Webhook.URL)
	}
}
