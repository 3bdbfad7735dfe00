package jobs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"laughtrackr/internal/domain"
)

// ErrJobAlreadyRunning is returned when analysis starts while a job is active.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoFileSelected is returned when analysis starts without a selected file.
var ErrNoFileSelected = errors.New("no file selected")

// ErrStaleJob is returned for updates addressed to a job that was replaced.
var ErrStaleJob = errors.New("stale job")

// AnalysisError is a server-reported analysis failure.
type AnalysisError struct {
	Message string
}

// Error returns the server message verbatim.
func (e *AnalysisError) Error() string {
	if e.Message == "" {
		return "analysis failed"
	}
	return e.Message
}

// Manager owns the single current job and validates its transitions.
// Every mutation names the job key it targets; updates for any other key
// are rejected with ErrStaleJob.
type Manager struct {
	mu        sync.RWMutex
	current   domain.Job
	errorSlot string
	// resultRequested guards the one result fetch allowed per job.
	resultRequested bool
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{Phase: domain.PhaseIdle},
	}
}

// Select replaces the current job with a new one for file. Valid from any phase.
func (m *Manager) Select(file domain.SourceFile) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := file
	m.current = domain.Job{
		Key:    uuid.NewString(),
		Source: &src,
		Phase:  domain.PhaseSelected,
	}
	m.errorSlot = ""
	m.resultRequested = false
	return m.current.Clone()
}

// BeginUpload moves the selected job to uploading.
func (m *Manager) BeginUpload(key string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.current.Phase == domain.PhaseIdle || m.current.Source == nil:
		return domain.Job{}, ErrNoFileSelected
	case m.current.Phase.IsActive():
		return domain.Job{}, ErrJobAlreadyRunning
	}
	if err := m.checkKey(key); err != nil {
		return domain.Job{}, err
	}
	if err := m.transition(domain.PhaseUploading); err != nil {
		return domain.Job{}, err
	}
	m.current.UploadProgress = 0
	m.errorSlot = ""
	return m.current.Clone(), nil
}

// SetUploadProgress records upload progress, never moving it backwards.
func (m *Manager) SetUploadProgress(key string, fraction float64) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkKey(key); err != nil {
		return domain.Job{}, err
	}
	if m.current.Phase != domain.PhaseUploading {
		return domain.Job{}, fmt.Errorf("upload progress in phase %s", m.current.Phase)
	}
	fraction = clamp01(fraction)
	if fraction > m.current.UploadProgress {
		m.current.UploadProgress = fraction
	}
	return m.current.Clone(), nil
}

// UploadSucceeded stores the server id and moves the job to queued.
func (m *Manager) UploadSucceeded(key, jobID string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkKey(key); err != nil {
		return domain.Job{}, err
	}
	if err := m.transition(domain.PhaseQueued); err != nil {
		return domain.Job{}, err
	}
	m.current.ID = jobID
	m.current.UploadProgress = 1
	return m.current.Clone(), nil
}

// ApplyStatus folds one poll response into the job. It returns fetchResult
// true exactly once per job, on the first "done" status; the phase moves to
// done only through Complete. An "error" status fails the job.
func (m *Manager) ApplyStatus(key string, snap domain.StatusSnapshot) (job domain.Job, fetchResult bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkKey(key); err != nil {
		return domain.Job{}, false, err
	}
	if m.current.Phase != domain.PhaseQueued && m.current.Phase != domain.PhaseProcessing {
		return domain.Job{}, false, fmt.Errorf("status update in phase %s", m.current.Phase)
	}

	if snap.Progress != nil {
		p := clamp01(*snap.Progress)
		m.current.AnalysisProgress = &p
	}
	if snap.Message != "" {
		m.current.StatusMessage = snap.Message
	}

	switch snap.Status {
	case domain.AnalysisQueued:
		// A late "queued" after processing started keeps the job processing.
		if m.current.Phase == domain.PhaseQueued {
			err = m.transition(domain.PhaseQueued)
		}
	case domain.AnalysisProcessing:
		err = m.transition(domain.PhaseProcessing)
	case domain.AnalysisDone:
		if !m.resultRequested {
			m.resultRequested = true
			fetchResult = true
		}
	case domain.AnalysisError:
		analysisErr := &AnalysisError{Message: snap.Message}
		err = m.failLocked(analysisErr.Error())
	default:
		err = fmt.Errorf("unknown analysis status %q", snap.Status)
	}
	if err != nil {
		return domain.Job{}, false, err
	}
	return m.current.Clone(), fetchResult, nil
}

// Complete stores the result set and moves the job to done.
func (m *Manager) Complete(key string, set domain.SegmentSet) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkKey(key); err != nil {
		return domain.Job{}, err
	}
	if !m.resultRequested {
		return domain.Job{}, fmt.Errorf("complete before done status")
	}
	if err := m.transition(domain.PhaseDone); err != nil {
		return domain.Job{}, err
	}
	if set == nil {
		set = domain.SegmentSet{}
	}
	m.current.Result = set
	return m.current.Clone(), nil
}

// Fail moves an active job to failed with message.
func (m *Manager) Fail(key, message string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkKey(key); err != nil {
		return domain.Job{}, err
	}
	if err := m.failLocked(message); err != nil {
		return domain.Job{}, err
	}
	return m.current.Clone(), nil
}

// Report overwrites the user-visible error slot without changing the phase.
func (m *Manager) Report(key, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key != "" {
		if err := m.checkKey(key); err != nil {
			return err
		}
	}
	m.errorSlot = message
	return nil
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// Snapshot returns the current job with the error slot.
func (m *Manager) Snapshot() domain.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.Snapshot{Job: m.current.Clone(), Error: m.errorSlot}
}

// IsCurrent reports whether key names the current job.
func (m *Manager) IsCurrent(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return key != "" && key == m.current.Key
}

// Reset clears job metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Job{Phase: domain.PhaseIdle}
	m.errorSlot = ""
	m.resultRequested = false
}

func (m *Manager) failLocked(message string) error {
	if err := m.transition(domain.PhaseFailed); err != nil {
		return err
	}
	m.current.ErrorMessage = message
	m.errorSlot = message
	return nil
}

func (m *Manager) checkKey(key string) error {
	if key == "" || key != m.current.Key {
		return ErrStaleJob
	}
	return nil
}

// transition validates and applies a phase change; self-loops are allowed
// where the state table allows them.
func (m *Manager) transition(to domain.Phase) error {
	if !isValidTransition(m.current.Phase, to) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Phase, to)
	}
	m.current.Phase = to
	return nil
}

// isValidTransition enforces the allowed job state machine edges.
// Selection is handled by Select, which is valid from every phase.
func isValidTransition(from, to domain.Phase) bool {
	switch from {
	case domain.PhaseSelected:
		return to == domain.PhaseUploading
	case domain.PhaseUploading:
		return to == domain.PhaseQueued || to == domain.PhaseFailed
	case domain.PhaseQueued:
		return to == domain.PhaseQueued || to == domain.PhaseProcessing || to == domain.PhaseDone || to == domain.PhaseFailed
	case domain.PhaseProcessing:
		return to == domain.PhaseProcessing || to == domain.PhaseDone || to == domain.PhaseFailed
	default:
		return false
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
