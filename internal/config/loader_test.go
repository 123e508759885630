package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/atlasvoice/atlas/internal/capture"
	"github.com/atlasvoice/atlas/internal/config"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: debug
capture:
  mode: wake-word
  wake_word: "hey atlas"
  wake_window: 15s
  confidence_floor: 0.5
pipeline:
  intent_threshold: 0.7
  dispatch_timeout: 5s
  turn_expiry: 90s
  queue_capacity: 16
providers:
  input:
    name: wsbridge
  output:
    name: wsbridge
storage:
  settings_file: /var/lib/atlas/settings.yaml
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Capture.Mode != capture.ModeWakeWord {
		t.Errorf("capture.mode: got %q, want %q", cfg.Capture.Mode, capture.ModeWakeWord)
	}
	if cfg.Capture.WakeWindow.Std() != 15*time.Second {
		t.Errorf("wake_window: got %v, want 15s", cfg.Capture.WakeWindow.Std())
	}
	if cfg.Pipeline.DispatchTimeout.Std() != 5*time.Second {
		t.Errorf("dispatch_timeout: got %v, want 5s", cfg.Pipeline.DispatchTimeout.Std())
	}
	if cfg.Pipeline.QueueCapacity != 16 {
		t.Errorf("queue_capacity: got %d, want 16", cfg.Pipeline.QueueCapacity)
	}
	if cfg.Providers.Output.Name != "wsbridge" {
		t.Errorf("providers.output.name: got %q, want %q", cfg.Providers.Output.Name, "wsbridge")
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_levle: info
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_WakeWordModeRequiresPhrase(t *testing.T) {
	t.Parallel()
	yaml := `
capture:
  mode: wake-word
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for wake-word mode without phrase, got nil")
	}
	if !strings.Contains(err.Error(), "wake_word") {
		t.Errorf("error should mention wake_word, got: %v", err)
	}
}

func TestValidate_InvalidCaptureMode(t *testing.T) {
	t.Parallel()
	yaml := `
capture:
  mode: loud
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid capture mode, got nil")
	}
	if !strings.Contains(err.Error(), "capture.mode") {
		t.Errorf("error should mention capture.mode, got: %v", err)
	}
}

func TestValidate_OutOfRangeThresholds(t *testing.T) {
	t.Parallel()
	yaml := `
capture:
  confidence_floor: 1.5
pipeline:
  intent_threshold: -0.1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range thresholds, got nil")
	}
	if !strings.Contains(err.Error(), "confidence_floor") {
		t.Errorf("error should mention confidence_floor, got: %v", err)
	}
	if !strings.Contains(err.Error(), "intent_threshold") {
		t.Errorf("error should mention intent_threshold, got: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/atlas/cert.pem
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for TLS with missing key_file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestLoadFromReader_InvalidDuration(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  dispatch_timeout: soon
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "duration") {
		t.Errorf("error should mention duration, got: %v", err)
	}
}

func TestValidate_EmptyConfigIsValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != "" {
		t.Errorf("listen_addr: got %q, want empty", cfg.Server.ListenAddr)
	}
}
