package bootstrap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"laughtrackr/internal/diagnostics"
	"laughtrackr/internal/domain"
	"laughtrackr/internal/history"
	"laughtrackr/internal/jobs"
	"laughtrackr/internal/logging"
	"laughtrackr/internal/transport"
	"laughtrackr/internal/waveform"
)

// fakeStore returns deterministic settings for App tests.
type fakeStore struct {
	settings domain.Settings
	saved    []domain.Settings
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	return s.settings, nil
}

// Save records the settings it was given.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.saved = append(s.saved, settings)
	s.settings = settings
	return nil
}

// fakeTransport completes every upload with one canned segment.
type fakeTransport struct {
	uploadErr error
}

func (f *fakeTransport) SelectFile(path string) (domain.SourceFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.SourceFile{}, err
	}
	return domain.SourceFile{Path: path, Name: filepath.Base(path), Size: info.Size(), MIMEType: "audio/wav"}, nil
}

func (f *fakeTransport) Upload(ctx context.Context, file domain.SourceFile, onProgress func(float64)) (string, error) {
	onProgress(0.5)
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	onProgress(1)
	return "srv-1", nil
}

func (f *fakeTransport) FetchStatus(ctx context.Context, jobID string) (domain.StatusSnapshot, error) {
	return domain.StatusSnapshot{Status: domain.AnalysisDone, Message: "Complete"}, nil
}

func (f *fakeTransport) FetchResult(ctx context.Context, jobID string) (transport.Result, error) {
	peak := -4.0
	return transport.Result{Segments: domain.SegmentSet{
		{StartSec: 61, EndSec: 63.5, DurationSec: 2.5, PeakDbfs: &peak},
	}}, nil
}

func newTestApp(t *testing.T, ft *fakeTransport, hist historyStore) (*App, *waveform.Memory) {
	t.Helper()
	surface := waveform.NewMemory()
	app := &App{
		Store:   &fakeStore{settings: domain.Settings{DataDir: t.TempDir(), LogLevel: "info", PollIntervalMs: 5}},
		BaseURL: "http://api.test",
		checker: diagnostics.NewCheckerForTests(
			func(string) (int, error) { return 200, nil },
			os.MkdirAll,
			os.CreateTemp,
			os.Remove,
		),
		history: hist,
		logger:  logging.Discard(),
	}
	app.Controller = app.newController(ft, surface, 2*time.Millisecond)
	t.Cleanup(app.Controller.Close)
	return app, surface
}

func writeRecording(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "club night.wav")
	if err := os.WriteFile(path, []byte("RIFF----WAVEfmt "), 0o644); err != nil {
		t.Fatalf("write recording: %v", err)
	}
	return path
}

// TestSelectAndAnalyzePublishesEventsAndRows checks the desktop flow end to end.
func TestSelectAndAnalyzePublishesEventsAndRows(t *testing.T) {
	app, surface := newTestApp(t, &fakeTransport{}, nil)
	path := writeRecording(t)

	if _, err := app.SelectFile("  " + path + "  "); err != nil {
		t.Fatalf("select: %v", err)
	}
	if !strings.HasPrefix(surface.Source(), mediaRoute+"?name=club+night.wav") {
		t.Fatalf("surface source = %q", surface.Source())
	}
	if _, err := app.StartAnalysis(); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitForPhase(t, app, domain.PhaseDone)
	events := app.JobEvents(0)
	assertEventTypeExists(t, events, jobs.EventTypeStatus)
	assertEventTypeExists(t, events, jobs.EventTypeProgress)
	assertEventTypeExists(t, events, jobs.EventTypeResult)

	rows := app.ResultRows()
	if len(rows) != 1 || rows[0].When != "1:01–1:03" || rows[0].PeakDbfs != "-4.0 dBFS" {
		t.Fatalf("rows = %+v", rows)
	}

	if err := app.PlaySegment(0); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := app.SetZoom(500); err != nil {
		t.Fatalf("zoom: %v", err)
	}
	if surface.ZoomLevel() != waveform.MaxZoom {
		t.Fatalf("zoom = %v, want clamped to %v", surface.ZoomLevel(), waveform.MaxZoom)
	}
}

// TestUploadFailureSurfacesInCurrentJob checks the failed path.
func TestUploadFailureSurfacesInCurrentJob(t *testing.T) {
	app, _ := newTestApp(t, &fakeTransport{uploadErr: &transport.UploadError{StatusCode: 502}}, nil)

	if _, err := app.SelectFile(writeRecording(t)); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := app.StartAnalysis(); err != nil {
		t.Fatalf("start: %v", err)
	}

	snap := waitForPhase(t, app, domain.PhaseFailed)
	if !strings.Contains(snap.Error, "502") {
		t.Fatalf("error slot = %q", snap.Error)
	}
	assertEventTypeExists(t, app.JobEvents(0), jobs.EventTypeError)
	if rows := app.ResultRows(); len(rows) != 0 {
		t.Fatalf("rows = %+v, want none", rows)
	}
}

// TestSelectFileRequiresPath checks the empty-path guard.
func TestSelectFileRequiresPath(t *testing.T) {
	app, _ := newTestApp(t, &fakeTransport{}, nil)
	if _, err := app.SelectFile("   "); !errors.Is(err, jobs.ErrNoFileSelected) {
		t.Fatalf("err = %v, want %v", err, jobs.ErrNoFileSelected)
	}
}

// TestMediaHandlerServesSelectedFile checks the renderer's media route.
func TestMediaHandlerServesSelectedFile(t *testing.T) {
	app, _ := newTestApp(t, &fakeTransport{}, nil)
	handler := app.mediaHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "asset")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, mediaRoute, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status before select = %d, want 404", rec.Code)
	}

	if _, err := app.SelectFile(writeRecording(t)); err != nil {
		t.Fatalf("select: %v", err)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, mediaRoute+"?name=x", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "RIFF----WAVEfmt " {
		t.Fatalf("media response = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	if rec.Body.String() != "asset" {
		t.Fatalf("fallthrough body = %q", rec.Body.String())
	}
}

// TestCompletedJobsLandInHistory checks history wiring.
func TestCompletedJobsLandInHistory(t *testing.T) {
	store, err := history.OpenInDir(t.TempDir())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	app, _ := newTestApp(t, &fakeTransport{}, store)

	if entries, err := app.ListHistory(10); err != nil || len(entries) != 0 {
		t.Fatalf("initial history = %v, %v", entries, err)
	}

	if _, err := app.SelectFile(writeRecording(t)); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := app.StartAnalysis(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForPhase(t, app, domain.PhaseDone)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := app.ListHistory(10)
		if err != nil {
			t.Fatalf("list history: %v", err)
		}
		if len(entries) == 1 {
			if entries[0].FileName != "club night.wav" || entries[0].SegmentCount != 1 {
				t.Fatalf("entry = %+v", entries[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("history entry not recorded")
}

// TestListHistoryWithoutStore checks the disabled-history path.
func TestListHistoryWithoutStore(t *testing.T) {
	app, _ := newTestApp(t, &fakeTransport{}, nil)
	entries, err := app.ListHistory(5)
	if err != nil || entries == nil || len(entries) != 0 {
		t.Fatalf("entries = %v, err = %v", entries, err)
	}
}

// TestSaveSettingsNormalizesAndRefreshesDiagnostics checks settings flow.
func TestSaveSettingsNormalizesAndRefreshesDiagnostics(t *testing.T) {
	app, _ := newTestApp(t, &fakeTransport{}, nil)
	dataDir := filepath.Join(t.TempDir(), "data")

	saved, err := app.SaveSettings(domain.Settings{APIBase: " http://analysis.local:8000/ ", DataDir: dataDir, LogLevel: "DEBUG"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.APIBase != "http://analysis.local:8000" || saved.LogLevel != "debug" || saved.PollIntervalMs <= 0 {
		t.Fatalf("saved = %+v", saved)
	}

	report := app.GetDiagnostics()
	if report.HasFailures || len(report.Items) != 2 {
		t.Fatalf("diagnostics = %+v", report)
	}

	got, err := app.GetSettings()
	if err != nil || got != saved {
		t.Fatalf("GetSettings = %+v, %v", got, err)
	}

	refreshed, err := app.RefreshDiagnostics()
	if err != nil || refreshed.HasFailures {
		t.Fatalf("refresh = %+v, %v", refreshed, err)
	}
}

// TestRuntimeDependentCallsFailBeforeStartup checks the missing runtime guard.
func TestRuntimeDependentCallsFailBeforeStartup(t *testing.T) {
	app, _ := newTestApp(t, &fakeTransport{}, nil)
	if _, err := app.PickInputFile(); !errors.Is(err, errRuntimeNotReady) {
		t.Fatalf("err = %v, want %v", err, errRuntimeNotReady)
	}

	emitter := wailsEmitter{app: app}
	emitter.Emit(waveform.EventLoad, "ignored")
	cancel := emitter.On(waveform.EventRegionClick, func(...any) {})
	cancel()
}

// waitForPhase polls until the job reaches desired phase or times out.
func waitForPhase(t *testing.T, app *App, want domain.Phase) domain.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := app.CurrentJob(); snap.Job.Phase == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("phase = %s, want %s", app.CurrentJob().Job.Phase, want)
	return domain.Snapshot{}
}

// assertEventTypeExists verifies at least one event of given type exists.
func assertEventTypeExists(t *testing.T, events []jobs.Event, want jobs.EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}
