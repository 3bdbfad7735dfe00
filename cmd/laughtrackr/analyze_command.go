package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"laughtrackr/internal/config"
	"laughtrackr/internal/domain"
	"laughtrackr/internal/history"
	"laughtrackr/internal/jobs"
	"laughtrackr/internal/report"
	"laughtrackr/internal/transport"
	"laughtrackr/internal/waveform"
)

type analyzeOutput struct {
	File     string            `json:"file"`
	JobID    string            `json:"jobId"`
	Segments domain.SegmentSet `json:"segments"`
	Rows     []report.Row      `json:"rows"`
	Warning  string            `json:"warning,omitempty"`
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOut   bool
		quiet     bool
		noHistory bool
		interval  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Upload a recording and list the detected laughter segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = config.PollInterval(ctx.settings)
			}

			opts := jobs.Options{PollInterval: interval, Logger: ctx.logger}
			if !noHistory {
				store, err := history.OpenInDir(ctx.settings.DataDir)
				if err != nil {
					ctx.logger.Warn("history disabled", "error", err)
				} else {
					defer store.Close()
					opts.History = store
				}
			}

			client := transport.NewClient(ctx.baseURL, transport.WithLogger(ctx.logger))
			controller := jobs.NewController(client, waveform.NewMemory(), opts)
			defer controller.Close()

			newView := func(size int64) progressView {
				return newProgressView(cmd.ErrOrStderr(), size, quiet || jsonOut)
			}
			snap, err := runAnalysis(cmd.Context(), controller, args[0], newView)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, analyzeOutput{
					File:     filepath.Base(args[0]),
					JobID:    snap.Job.ID,
					Segments: snap.Job.Result,
					Rows:     report.Rows(snap.Job.Result),
					Warning:  snap.Error,
				})
			}
			if snap.Error != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", snap.Error)
			}
			if len(snap.Job.Result) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No laughter detected.")
				return nil
			}
			report.WriteSegments(cmd.OutOrStdout(), snap.Job.Result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide upload and analysis progress")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the analysis in local history")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Status poll interval (default from settings)")
	return cmd
}

// runAnalysis selects path, starts the job and follows its events until the
// job ends or ctx is cancelled.
func runAnalysis(ctx context.Context, controller *jobs.Controller, path string, newView func(size int64) progressView) (domain.Snapshot, error) {
	queue := newEventQueue()
	controller.Events().Listen(queue.push)

	if _, err := controller.Select(path); err != nil {
		return domain.Snapshot{}, err
	}
	job, err := controller.StartAnalysis()
	if err != nil {
		return domain.Snapshot{}, err
	}
	var size int64
	if job.Source != nil {
		size = job.Source.Size
	}
	view := newView(size)
	defer view.Done()

	for {
		for _, event := range queue.drain() {
			renderEvent(view, event)
		}

		snap := controller.Snapshot()
		switch snap.Job.Phase {
		case domain.PhaseDone:
			return snap, nil
		case domain.PhaseFailed:
			return snap, fmt.Errorf("analysis failed: %s", snap.Job.ErrorMessage)
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-queue.ready:
		}
	}
}

// eventQueue buffers bus events for the render loop. push never blocks.
type eventQueue struct {
	mu     sync.Mutex
	events []jobs.Event
	ready  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

func (q *eventQueue) push(event jobs.Event) {
	q.mu.Lock()
	q.events = append(q.events, event)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() []jobs.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

func renderEvent(view progressView, event jobs.Event) {
	switch event.Type {
	case jobs.EventTypeProgress:
		view.Upload(event.UploadProgress)
	case jobs.EventTypeStatus:
		if event.Phase == domain.PhaseSelected || event.Phase == domain.PhaseUploading {
			return
		}
		view.Status(statusLine(event))
	case jobs.EventTypeError:
		view.Status("error: " + event.Message)
	}
}

func statusLine(event jobs.Event) string {
	line := string(event.Phase)
	if event.AnalysisProgress != nil {
		line += fmt.Sprintf(" %3.0f%%", *event.AnalysisProgress*100)
	}
	if event.Message != "" {
		line += " · " + event.Message
	}
	return line
}
