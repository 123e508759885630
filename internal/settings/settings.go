// Package settings holds the user-tunable voice parameters and the store
// contract for persisting them. Settings are read at session start; changes
// made while a session runs take effect on the next restart.
package settings

import (
	"context"
	"errors"
	"fmt"
)

// VoiceSettings carries everything a capture/synthesis session needs from
// user preferences.
type VoiceSettings struct {
	Language        string  `yaml:"language" json:"language"`
	Rate            float64 `yaml:"rate" json:"rate"`
	Pitch           float64 `yaml:"pitch" json:"pitch"`
	Volume          float64 `yaml:"volume" json:"volume"`
	AutoSpeak       bool    `yaml:"autoSpeak" json:"autoSpeak"`
	WakeWordEnabled bool    `yaml:"wakeWordEnabled" json:"wakeWordEnabled"`
}

// Defaults returns the out-of-the-box settings.
func Defaults() VoiceSettings {
	return VoiceSettings{
		Language:  "en-US",
		Rate:      1.0,
		Pitch:     1.0,
		Volume:    1.0,
		AutoSpeak: true,
	}
}

// Validate checks ranges. Rate and pitch follow the usual speech synthesis
// bounds; volume is a 0..1 gain.
func (v VoiceSettings) Validate() error {
	var errs []error
	if v.Language == "" {
		errs = append(errs, errors.New("language must not be empty"))
	}
	if v.Rate < 0.1 || v.Rate > 10 {
		errs = append(errs, fmt.Errorf("rate %v out of range [0.1, 10]", v.Rate))
	}
	if v.Pitch < 0 || v.Pitch > 2 {
		errs = append(errs, fmt.Errorf("pitch %v out of range [0, 2]", v.Pitch))
	}
	if v.Volume < 0 || v.Volume > 1 {
		errs = append(errs, fmt.Errorf("volume %v out of range [0, 1]", v.Volume))
	}
	return errors.Join(errs...)
}

// Patch is a partial settings update; nil fields are left unchanged.
type Patch struct {
	Language        *string  `json:"language,omitempty"`
	Rate            *float64 `json:"rate,omitempty"`
	Pitch           *float64 `json:"pitch,omitempty"`
	Volume          *float64 `json:"volume,omitempty"`
	AutoSpeak       *bool    `json:"autoSpeak,omitempty"`
	WakeWordEnabled *bool    `json:"wakeWordEnabled,omitempty"`
}

// Apply returns v with the patch's non-nil fields overridden.
func (p Patch) Apply(v VoiceSettings) VoiceSettings {
	if p.Language != nil {
		v.Language = *p.Language
	}
	if p.Rate != nil {
		v.Rate = *p.Rate
	}
	if p.Pitch != nil {
		v.Pitch = *p.Pitch
	}
	if p.Volume != nil {
		v.Volume = *p.Volume
	}
	if p.AutoSpeak != nil {
		v.AutoSpeak = *p.AutoSpeak
	}
	if p.WakeWordEnabled != nil {
		v.WakeWordEnabled = *p.WakeWordEnabled
	}
	return v
}

// Store persists VoiceSettings across restarts.
type Store interface {
	// Load returns the stored settings, or Defaults() when nothing has been
	// saved yet.
	Load(ctx context.Context) (VoiceSettings, error)
	// Save persists the settings.
	Save(ctx context.Context, v VoiceSettings) error
}
