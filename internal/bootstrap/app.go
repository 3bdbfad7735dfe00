package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"laughtrackr/internal/config"
	"laughtrackr/internal/diagnostics"
	"laughtrackr/internal/domain"
	"laughtrackr/internal/history"
	"laughtrackr/internal/jobs"
	"laughtrackr/internal/logging"
	"laughtrackr/internal/report"
	"laughtrackr/internal/transport"
	"laughtrackr/internal/waveform"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// EventJob carries jobs.Event values to the page.
const EventJob = "job:event"

// mediaRoute serves the selected recording to the waveform renderer.
const mediaRoute = "/media/current"

var audioDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Audio files",
		Pattern:     "*.wav;*.mp3;*.m4a;*.flac;*.aac;*.ogg;*.opus;*.webm",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// historyStore is the part of history.Store the app uses.
type historyStore interface {
	jobs.Recorder
	List(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
	Close() error
}

// App wires configuration, the job controller, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Controller  *jobs.Controller
	Diagnostics domain.DiagnosticReport
	BaseURL     string
	assets      fs.FS
	checker     *diagnostics.Checker
	history     historyStore
	logger      *slog.Logger

	mu         sync.Mutex
	runtimeCtx context.Context
	mediaPath  string
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	_ = godotenv.Load()

	settingsPath, err := config.DefaultPath()
	if err != nil {
		return nil, err
	}
	store := config.NewJSONStore(settingsPath)
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	logger, err := logging.New(logging.Options{Level: settings.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	baseURL, source, err := config.Resolve(viper.New(), "", settings.APIBase)
	if err != nil {
		return nil, fmt.Errorf("resolve api base: %w", err)
	}
	logger.Info("analysis api resolved", "base_url", baseURL, "source", source)

	var hist historyStore
	if hs, err := history.OpenInDir(settings.DataDir); err != nil {
		logger.Warn("history disabled", "data_dir", settings.DataDir, "error", err)
	} else {
		hist = hs
	}

	checker := diagnostics.NewChecker()
	app := &App{
		Settings:    settings,
		Store:       store,
		Diagnostics: checker.Run(settings, baseURL),
		BaseURL:     baseURL,
		assets:      assets,
		checker:     checker,
		history:     hist,
		logger:      logger,
	}

	client := transport.NewClient(baseURL, transport.WithLogger(logger))
	app.Controller = app.newController(client, waveform.NewBridge(wailsEmitter{app: app}), config.PollInterval(settings))
	return app, nil
}

// newController builds the controller and forwards its events to the page.
func (a *App) newController(t jobs.Transport, surface waveform.Surface, interval time.Duration) *jobs.Controller {
	opts := jobs.Options{
		PollInterval: interval,
		Logger:       a.logger,
		MediaURL:     a.publishMedia,
	}
	if a.history != nil {
		opts.History = a.history
	}
	controller := jobs.NewController(t, surface, opts)
	controller.Events().Listen(a.emitEvent)
	return controller
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{Handler: a.mediaHandler(http.FileServer(http.Dir("./frontend")))}
	if a.assets != nil {
		assetOptions.Assets = a.assets
		assetOptions.Handler = a.mediaHandler(http.NotFoundHandler())
	}

	return wails.Run(&options.App{
		Title:       "LaughTrackr",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown stops the active job and releases history.
func (a *App) Shutdown(ctx context.Context) {
	a.Controller.Close()
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("close history", "error", err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
// A changed API base or poll interval applies on the next launch.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized, a.BaseURL)
	}
	a.mu.Unlock()

	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns startup checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	a.Diagnostics = a.checker.Run(settings, a.BaseURL)
	return a.Diagnostics, nil
}

// PickInputFile opens a native file dialog for audio selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select a recording",
		Filters: audioDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// SelectFile validates path and makes it the current job.
func (a *App) SelectFile(path string) (domain.Job, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.Job{}, jobs.ErrNoFileSelected
	}
	return a.Controller.Select(path)
}

// StartAnalysis uploads the selected file and follows the analysis.
func (a *App) StartAnalysis() (domain.Job, error) {
	return a.Controller.StartAnalysis()
}

// CurrentJob returns the current job and the error slot.
func (a *App) CurrentJob() domain.Snapshot {
	return a.Controller.Snapshot()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.Controller.Events().Since(sinceSeq)
}

// ResultRows returns the formatted results table of the finished job.
func (a *App) ResultRows() []report.Row {
	snap := a.Controller.Snapshot()
	if snap.Job.Phase != domain.PhaseDone {
		return []report.Row{}
	}
	return report.Rows(snap.Job.Result)
}

// SetZoom changes the waveform zoom in pixels per second.
func (a *App) SetZoom(pxPerSec float64) error {
	return a.Controller.Zoom(pxPerSec)
}

// PlaySegment plays one row of the results table.
func (a *App) PlaySegment(index int) error {
	return a.Controller.PlaySegment(index)
}

// ListHistory returns recent completed analyses, newest first.
func (a *App) ListHistory(limit int) ([]domain.HistoryEntry, error) {
	if a.history == nil {
		return []domain.HistoryEntry{}, nil
	}
	entries, err := a.history.List(context.Background(), limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// publishMedia remembers the selected file and returns the URL the renderer
// loads it from.
func (a *App) publishMedia(file domain.SourceFile) string {
	a.mu.Lock()
	a.mediaPath = file.Path
	a.mu.Unlock()
	return mediaRoute + "?name=" + url.QueryEscape(file.Name)
}

// mediaHandler serves the selected recording on mediaRoute and defers
// everything else to next.
func (a *App) mediaHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != mediaRoute {
			next.ServeHTTP(w, r)
			return
		}
		a.mu.Lock()
		path := a.mediaPath
		a.mu.Unlock()
		if path == "" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	})
}

// emitEvent pushes a job event to the page.
func (a *App) emitEvent(event jobs.Event) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return
	}
	wailsruntime.EventsEmit(ctx, EventJob, event)
}

// runtimeContext returns current Wails runtime context for dialog and event APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, errRuntimeNotReady
	}
	return a.runtimeCtx, nil
}

var errRuntimeNotReady = errors.New("runtime context is not initialized")

// wailsEmitter carries waveform commands over the Wails event bus.
type wailsEmitter struct {
	app *App
}

func (e wailsEmitter) Emit(name string, data ...any) {
	ctx, err := e.app.runtimeContext()
	if err != nil {
		return
	}
	wailsruntime.EventsEmit(ctx, name, data...)
}

func (e wailsEmitter) On(name string, callback func(data ...any)) func() {
	ctx, err := e.app.runtimeContext()
	if err != nil {
		return func() {}
	}
	return wailsruntime.EventsOn(ctx, name, callback)
}
