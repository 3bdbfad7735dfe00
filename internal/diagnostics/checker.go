package diagnostics

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"laughtrackr/internal/domain"
)

const probeTimeout = 3 * time.Second

// Checker validates the analysis API and required filesystem paths.
type Checker struct {
	probe      func(url string) (int, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real network and OS dependencies.
func NewChecker() *Checker {
	client := &http.Client{Timeout: probeTimeout}
	return &Checker{
		probe:      httpProbe(client),
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings, baseURL string) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkAPI(baseURL),
		c.checkDataDir(settings.DataDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkAPI passes on any HTTP response; only a network failure is fatal.
func (c *Checker) checkAPI(baseURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "api_base",
		Name: "Analysis API",
	}

	if strings.TrimSpace(baseURL) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "API base URL is empty."
		item.Hint = "Set apiBase in settings or LAUGHTRACKR_API_BASE in the environment."
		return item
	}

	code, err := c.probe(baseURL)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Analysis API is not reachable: %s", baseURL)
		item.Hint = "Start the analysis server (or `laughtrackr devserver`) and check the base URL."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Reachable at %s (HTTP %d)", baseURL, code)
	return item
}

// checkDataDir validates data directory existence and write access.
func (c *Checker) checkDataDir(dataDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "data_dir",
		Name: "Data directory",
	}

	if strings.TrimSpace(dataDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Data directory is empty."
		item.Hint = "Set a data directory where analysis history can be stored."
		return item
	}

	if err := c.mkdirAll(dataDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create data directory: %s", dataDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dataDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Data directory is not writable: %s", dataDir)
		item.Hint = "Choose a writable directory for analysis history."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dataDir)
	return item
}

func httpProbe(client *http.Client) func(string) (int, error) {
	return func(url string) (int, error) {
		resp, err := client.Get(url)
		if err != nil {
			return 0, err
		}
		_ = resp.Body.Close()
		return resp.StatusCode, nil
	}
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	probe func(string) (int, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		probe:      probe,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
