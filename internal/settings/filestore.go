package settings

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore persists settings as a YAML file. Writes go through a temp file
// and rename so a crash mid-write never leaves a truncated settings file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the settings file. A missing file yields Defaults().
func (s *FileStore) Load(_ context.Context) (VoiceSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Defaults(), nil
	}
	if err != nil {
		return VoiceSettings{}, fmt.Errorf("settings: read %s: %w", s.path, err)
	}

	v := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&v); err != nil {
		return VoiceSettings{}, fmt.Errorf("settings: parse %s: %w", s.path, err)
	}
	if err := v.Validate(); err != nil {
		return VoiceSettings{}, fmt.Errorf("settings: invalid %s: %w", s.path, err)
	}
	return v, nil
}

// Save writes the settings file atomically.
func (s *FileStore) Save(_ context.Context, v VoiceSettings) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("settings: refusing to save invalid settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("settings: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("settings: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}
