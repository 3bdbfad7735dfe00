package domain

// Phase tracks each lifecycle stage for a single analysis job.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSelected   Phase = "selected"
	PhaseUploading  Phase = "uploading"
	PhaseQueued     Phase = "queued"
	PhaseProcessing Phase = "processing"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// IsActive reports whether the phase has an upload or poll loop attached.
func (p Phase) IsActive() bool {
	switch p {
	case PhaseUploading, PhaseQueued, PhaseProcessing:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the phase ends the job lifecycle.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	APIBase        string `json:"apiBase"`
	DataDir        string `json:"dataDir"`
	LogLevel       string `json:"logLevel"`
	PollIntervalMs int    `json:"pollIntervalMs"`
}

// SourceFile is a locally selected recording that passed pre-flight checks.
type SourceFile struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType"`
}

// Job stores the current job identity and lifecycle state.
type Job struct {
	Key              string      `json:"key"`
	ID               string      `json:"id,omitempty"`
	Source           *SourceFile `json:"source,omitempty"`
	Phase            Phase       `json:"phase"`
	UploadProgress   float64     `json:"uploadProgress"`
	AnalysisProgress *float64    `json:"analysisProgress,omitempty"`
	StatusMessage    string      `json:"statusMessage,omitempty"`
	ErrorMessage     string      `json:"errorMessage,omitempty"`
	Result           SegmentSet  `json:"result,omitempty"`
}

// Clone returns a copy that shares no mutable state with j.
func (j Job) Clone() Job {
	out := j
	if j.Source != nil {
		src := *j.Source
		out.Source = &src
	}
	if j.AnalysisProgress != nil {
		p := *j.AnalysisProgress
		out.AnalysisProgress = &p
	}
	if j.Result != nil {
		out.Result = append(SegmentSet(nil), j.Result...)
	}
	return out
}

// Snapshot is the read-only view handed to presentation layers.
type Snapshot struct {
	Job   Job    `json:"job"`
	Error string `json:"error,omitempty"`
}
