package config

import (
	"os"
	"path/filepath"
	"time"

	"laughtrackr/internal/domain"
)

const (
	// DefaultBaseURL is used when neither an override nor a page host is configured.
	DefaultBaseURL = "http://localhost:8000"
	// AlternatePort is the analysis API port next to the page host.
	AlternatePort = 8000
	// DefaultPollInterval is the status polling cadence.
	DefaultPollInterval = 1200 * time.Millisecond
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		DataDir:        filepath.Join(homeDir, ".laughtrackr"),
		LogLevel:       "info",
		PollIntervalMs: int(DefaultPollInterval / time.Millisecond),
	}
}

// PollInterval converts the persisted millisecond setting, falling back to the default.
func PollInterval(settings domain.Settings) time.Duration {
	if settings.PollIntervalMs <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(settings.PollIntervalMs) * time.Millisecond
}
