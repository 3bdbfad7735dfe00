package domain

// Segment is one detected span of audience laughter.
type Segment struct {
	StartSec    float64  `json:"startSec"`
	EndSec      float64  `json:"endSec"`
	DurationSec float64  `json:"durationSec"`
	PeakDbfs    *float64 `json:"peakDbfs,omitempty"`
	MinDbfs     *float64 `json:"minDbfs,omitempty"`
	AvgRms      *float64 `json:"avgRms,omitempty"`
}

// SegmentSet is the chronological list of segments for a finished job.
type SegmentSet []Segment

// AnalysisStatus is the server-reported state of a job.
type AnalysisStatus string

const (
	AnalysisQueued     AnalysisStatus = "queued"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisDone       AnalysisStatus = "done"
	AnalysisError      AnalysisStatus = "error"
)

// Valid reports whether s is one of the statuses the client understands.
func (s AnalysisStatus) Valid() bool {
	switch s {
	case AnalysisQueued, AnalysisProcessing, AnalysisDone, AnalysisError:
		return true
	default:
		return false
	}
}

// StatusSnapshot is one response of the status endpoint.
type StatusSnapshot struct {
	Status   AnalysisStatus `json:"status"`
	Message  string         `json:"message,omitempty"`
	Progress *float64       `json:"progress,omitempty"`
}
