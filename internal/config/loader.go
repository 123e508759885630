package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/atlasvoice/atlas/internal/capture"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"input":  {"wsbridge", "mock"},
	"output": {"wsbridge", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Capture
	if cfg.Capture.Mode != "" && !cfg.Capture.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("capture.mode %q is invalid; valid values: manual, continuous, wake-word", cfg.Capture.Mode))
	}
	if cfg.Capture.Mode == capture.ModeWakeWord && cfg.Capture.WakeWord == "" {
		errs = append(errs, errors.New("capture.wake_word is required when capture.mode is wake-word"))
	}
	if cfg.Capture.ConfidenceFloor < 0 || cfg.Capture.ConfidenceFloor > 1 {
		errs = append(errs, fmt.Errorf("capture.confidence_floor %.2f is out of range [0, 1]", cfg.Capture.ConfidenceFloor))
	}
	if cfg.Capture.WakeWindow < 0 {
		errs = append(errs, errors.New("capture.wake_window must not be negative"))
	}

	// Pipeline
	if cfg.Pipeline.IntentThreshold < 0 || cfg.Pipeline.IntentThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.intent_threshold %.2f is out of range [0, 1]", cfg.Pipeline.IntentThreshold))
	}
	if cfg.Pipeline.DispatchTimeout < 0 {
		errs = append(errs, errors.New("pipeline.dispatch_timeout must not be negative"))
	}
	if cfg.Pipeline.TurnExpiry < 0 {
		errs = append(errs, errors.New("pipeline.turn_expiry must not be negative"))
	}
	if cfg.Pipeline.QueueCapacity < 0 {
		errs = append(errs, errors.New("pipeline.queue_capacity must not be negative"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("input", cfg.Providers.Input.Name)
	validateProviderName("output", cfg.Providers.Output.Name)

	// Storage availability warnings
	if cfg.Storage.PostgresDSN == "" && cfg.Storage.SettingsFile == "" {
		slog.Warn("storage has neither postgres_dsn nor settings_file; voice settings will not persist across restarts")
	}
	if cfg.Storage.Profile != "" && cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.profile is set but only applies to the postgres backend", "profile", cfg.Storage.Profile)
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
