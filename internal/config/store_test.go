package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"laughtrackr/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.LogLevel != "info" {
		t.Fatalf("log level = %q, want info", cfg.LogLevel)
	}
	if cfg.DataDir == "" {
		t.Fatal("expected non-empty data dir")
	}
	if cfg.APIBase != "" {
		t.Fatalf("api base = %q, want empty so resolution can fall back", cfg.APIBase)
	}
	if PollInterval(cfg) != 1200*time.Millisecond {
		t.Fatalf("poll interval = %s, want 1.2s", PollInterval(cfg))
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.LogLevel != "info" {
		t.Fatalf("log level = %q, want info", got.LogLevel)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := domain.Settings{
		APIBase:        "http://analysis.local:9000",
		DataDir:        "/data",
		LogLevel:       "debug",
		PollIntervalMs: 500,
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestJSONStoreLoadPartialFileKeepsDefaults checks missing keys fall back.
func TestJSONStoreLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"apiBase":"http://x:1/ "}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.APIBase != "http://x:1" {
		t.Fatalf("api base = %q, want trimmed", got.APIBase)
	}
	if got.PollIntervalMs != 1200 {
		t.Fatalf("poll interval = %d, want default", got.PollIntervalMs)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}
