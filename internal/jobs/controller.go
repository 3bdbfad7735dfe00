package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"laughtrackr/internal/domain"
	"laughtrackr/internal/logging"
	"laughtrackr/internal/regions"
	"laughtrackr/internal/transport"
	"laughtrackr/internal/waveform"
)

// ErrClosed is returned by intents issued after Close.
var ErrClosed = errors.New("controller closed")

// Transport is the analysis API as seen by the controller.
type Transport interface {
	SelectFile(path string) (domain.SourceFile, error)
	Upload(ctx context.Context, file domain.SourceFile, onProgress func(float64)) (string, error)
	FetchStatus(ctx context.Context, jobID string) (domain.StatusSnapshot, error)
	FetchResult(ctx context.Context, jobID string) (transport.Result, error)
}

// Recorder persists completed jobs.
type Recorder interface {
	Record(ctx context.Context, entry domain.HistoryEntry) error
}

// Options tunes a Controller. Zero values select defaults.
type Options struct {
	PollInterval time.Duration
	PollGiveUp   time.Duration
	Logger       *slog.Logger
	Events       *EventBus
	History      Recorder
	// MediaURL maps a selected file to the source handed to Surface.Load.
	MediaURL func(domain.SourceFile) string
}

// Controller drives one analysis job at a time: upload, status polling,
// result fetch, and region projection onto the waveform surface.
type Controller struct {
	jobs      *Manager
	transport Transport
	surface   waveform.Surface
	regions   *regions.Synchronizer
	events    *EventBus
	history   Recorder
	logger    *slog.Logger
	poller    *poller
	mediaURL  func(domain.SourceFile) string

	// mu serializes job replacement against region projection so a
	// replaced job can never draw onto the surface.
	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
	// done is closed when the most recent job goroutine returns.
	done chan struct{}
}

// NewController wires a controller around transport and surface.
func NewController(t Transport, surface waveform.Surface, opts Options) *Controller {
	logger := logging.OrDefault(opts.Logger)
	events := opts.Events
	if events == nil {
		events = NewEventBus(1000)
	}
	mediaURL := opts.MediaURL
	if mediaURL == nil {
		mediaURL = func(f domain.SourceFile) string { return f.Path }
	}

	return &Controller{
		jobs:      NewManager(),
		transport: t,
		surface:   surface,
		regions:   regions.New(logger),
		events:    events,
		history:   opts.History,
		logger:    logger,
		poller:    newPoller(opts.PollInterval, opts.PollGiveUp),
		mediaURL:  mediaURL,
	}
}

// Select validates path and makes it the current job, discarding the previous
// job, its in-flight requests and its regions.
func (c *Controller) Select(path string) (domain.Job, error) {
	file, err := c.transport.SelectFile(path)
	if err != nil {
		c.logger.Warn("file rejected", "path", path, "error", err)
		_ = c.jobs.Report("", err.Error())
		c.events.Publish(jobEvent(c.jobs.Current(), EventTypeError, err.Error()))
		return domain.Job{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.Job{}, ErrClosed
	}

	c.cancelActiveLocked()
	if err := c.regions.Reset(c.surface); err != nil {
		c.logger.Warn("clear regions failed", "error", err)
	}

	job := c.jobs.Select(file)
	if err := c.surface.Load(c.mediaURL(file)); err != nil {
		c.logger.Warn("waveform load failed", "file", file.Name, "error", err)
		_ = c.jobs.Report(job.Key, fmt.Sprintf("load waveform: %v", err))
	}

	c.logger.Info("file selected", "job_key", job.Key, "file", file.Name, "bytes", file.Size)
	c.events.Publish(jobEvent(job, EventTypeStatus, "File selected"))
	return job, nil
}

// StartAnalysis uploads the selected file and follows the analysis to the end.
func (c *Controller) StartAnalysis() (domain.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.Job{}, ErrClosed
	}

	job, err := c.jobs.BeginUpload(c.jobs.Current().Key)
	if err != nil {
		return domain.Job{}, err
	}

	c.logger.Info("analysis started", "job_key", job.Key, "file", job.Source.Name)
	c.events.Publish(jobEvent(job, EventTypeStatus, "Uploading"))

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	prev, done := c.done, make(chan struct{})
	c.done = done
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		// A replaced job may still be unwinding its upload; the transport
		// allows one upload at a time.
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				return
			}
		}
		c.run(ctx, job)
	}()
	return job, nil
}

// Zoom forwards a zoom level to the surface; valid in every phase.
func (c *Controller) Zoom(pxPerSec float64) error {
	return c.surface.Zoom(waveform.ClampZoom(pxPerSec))
}

// PlaySegment plays segment i of the finished job.
func (c *Controller) PlaySegment(i int) error {
	job := c.jobs.Current()
	if job.Phase != domain.PhaseDone {
		return fmt.Errorf("no result to play in phase %s", job.Phase)
	}
	if i < 0 || i >= len(job.Result) {
		return fmt.Errorf("segment %d out of range [0, %d)", i, len(job.Result))
	}
	seg := job.Result[i]
	return c.surface.Play(waveform.Span{Start: seg.StartSec, End: seg.EndSec})
}

// Snapshot returns the current job and error slot.
func (c *Controller) Snapshot() domain.Snapshot {
	return c.jobs.Snapshot()
}

// Events exposes the controller's event stream.
func (c *Controller) Events() *EventBus {
	return c.events
}

// Bindings returns the current segment-to-region bindings.
func (c *Controller) Bindings() []regions.Binding {
	return c.regions.Bindings()
}

// Close stops any in-flight work, clears the surface and returns to idle.
// It waits for the job goroutine to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelActiveLocked()
	if err := c.regions.Reset(c.surface); err != nil {
		c.logger.Warn("clear regions failed", "error", err)
	}
	c.jobs.Reset()
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) cancelActiveLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// run is the body of one job goroutine.
func (c *Controller) run(ctx context.Context, job domain.Job) {
	id, err := c.transport.Upload(ctx, *job.Source, func(p float64) {
		updated, err := c.jobs.SetUploadProgress(job.Key, p)
		if err != nil {
			return
		}
		c.events.Publish(jobEvent(updated, EventTypeProgress, ""))
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.fail(job.Key, err)
		return
	}

	queued, err := c.jobs.UploadSucceeded(job.Key, id)
	if err != nil {
		return
	}
	c.logger.Info("upload accepted", "job_key", job.Key, "job_id", id)
	c.events.Publish(jobEvent(queued, EventTypeStatus, "Queued for analysis"))

	c.poller.run(ctx, c.statusTick(queued), func(lastErr error) {
		c.fail(job.Key, fmt.Errorf("status polling gave up: %w", lastErr))
	})
}

// statusTick builds the poll tick for job.
func (c *Controller) statusTick(job domain.Job) pollTick {
	return func(ctx context.Context) (bool, error) {
		snap, err := c.transport.FetchStatus(ctx, job.ID)
		if ctx.Err() != nil {
			return true, nil
		}
		if err != nil {
			msg := fmt.Sprintf("Lost connection while checking status: %v", err)
			if reportErr := c.jobs.Report(job.Key, msg); reportErr != nil {
				return true, nil
			}
			c.logger.Warn("status poll failed", "job_key", job.Key, "job_id", job.ID, "error", err)
			c.events.Publish(jobEvent(c.jobs.Current(), EventTypeError, msg))
			return false, err
		}

		updated, fetchResult, err := c.jobs.ApplyStatus(job.Key, snap)
		if errors.Is(err, ErrStaleJob) {
			return true, nil
		}
		if err != nil {
			c.logger.Warn("status ignored", "job_key", job.Key, "status", snap.Status, "error", err)
			return false, nil
		}

		switch {
		case updated.Phase == domain.PhaseFailed:
			c.logger.Warn("analysis failed", "job_key", job.Key, "job_id", job.ID, "message", updated.ErrorMessage)
			c.events.Publish(jobEvent(updated, EventTypeError, updated.ErrorMessage))
			return true, nil
		case fetchResult:
			c.finish(ctx, updated)
			return true, nil
		default:
			c.events.Publish(jobEvent(updated, EventTypeStatus, snap.Message))
			return false, nil
		}
	}
}

// finish fetches the result once, completes the job and projects regions.
func (c *Controller) finish(ctx context.Context, job domain.Job) {
	res, err := c.transport.FetchResult(ctx, job.ID)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.fail(job.Key, fmt.Errorf("fetch result: %w", err))
		return
	}

	c.mu.Lock()
	if !c.jobs.IsCurrent(job.Key) {
		c.mu.Unlock()
		return
	}
	// Regions land before the phase flips so observers of done see them.
	if err := c.regions.Sync(res.Segments, c.surface); err != nil {
		c.logger.Warn("region sync failed", "job_key", job.Key, "error", err)
		_ = c.jobs.Report(job.Key, fmt.Sprintf("draw regions: %v", err))
	}
	var dropped string
	if len(res.Rejected) > 0 {
		dropped = fmt.Sprintf("%d malformed segment(s) dropped from result", len(res.Rejected))
		_ = c.jobs.Report(job.Key, dropped)
	}
	done, err := c.jobs.Complete(job.Key, res.Segments)
	if err != nil {
		_ = c.regions.Reset(c.surface)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if dropped != "" {
		c.events.Publish(jobEvent(done, EventTypeError, dropped))
	}

	c.logger.Info("analysis complete", "job_key", job.Key, "job_id", job.ID, "segments", len(done.Result))
	c.events.Publish(jobEvent(done, EventTypeResult, "Complete"))
	c.record(done)
}

func (c *Controller) record(job domain.Job) {
	if c.history == nil || job.Source == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := domain.HistoryEntry{
		Key:          job.Key,
		JobID:        job.ID,
		FileName:     job.Source.Name,
		FileSize:     job.Source.Size,
		SegmentCount: len(job.Result),
		Segments:     job.Result,
		CompletedAt:  time.Now().UTC(),
	}
	if err := c.history.Record(ctx, entry); err != nil {
		c.logger.Warn("history record failed", "job_key", job.Key, "error", err)
	}
}

// fail moves job to failed unless it was replaced meanwhile.
func (c *Controller) fail(key string, cause error) {
	failed, err := c.jobs.Fail(key, cause.Error())
	if err != nil {
		return
	}
	c.logger.Warn("job failed", "job_key", key, "error", cause)
	c.events.Publish(jobEvent(failed, EventTypeError, cause.Error()))
}
