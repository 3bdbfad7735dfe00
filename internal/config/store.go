package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"laughtrackr/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// DefaultPath is the settings file location under the user's home.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(homeDir, ".laughtrackr", "settings.json"), nil
}

// Load reads settings from disk or returns defaults when missing.
// Fields absent from the file keep their default values.
func (s *JSONStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}

		return domain.Settings{}, err
	}

	cfg := DefaultSettings()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("parse %s: %w", s.path, err)
	}

	return Normalize(cfg), nil
}

// Save writes settings as indented JSON and creates parent directories.
func (s *JSONStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(Normalize(cfg), "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}

// Normalize trims user inputs and restores defaults for empty values.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()
	settings.APIBase = strings.TrimRight(strings.TrimSpace(settings.APIBase), "/")
	settings.DataDir = strings.TrimSpace(settings.DataDir)
	settings.LogLevel = strings.ToLower(strings.TrimSpace(settings.LogLevel))
	if settings.DataDir == "" {
		settings.DataDir = defaults.DataDir
	}
	if settings.LogLevel == "" {
		settings.LogLevel = defaults.LogLevel
	}
	if settings.PollIntervalMs <= 0 {
		settings.PollIntervalMs = defaults.PollIntervalMs
	}
	return settings
}
