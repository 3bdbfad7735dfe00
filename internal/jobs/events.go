package jobs

import (
	"slices"
	"sync"
	"time"

	"laughtrackr/internal/domain"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq              int64        `json:"seq"`
	Timestamp        time.Time    `json:"timestamp"`
	JobKey           string       `json:"jobKey"`
	JobID            string       `json:"jobId,omitempty"`
	Type             EventType    `json:"type"`
	Phase            domain.Phase `json:"phase,omitempty"`
	Message          string       `json:"message,omitempty"`
	UploadProgress   float64      `json:"uploadProgress,omitempty"`
	AnalysisProgress *float64     `json:"analysisProgress,omitempty"`
	SegmentCount     int          `json:"segmentCount,omitempty"`
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	listeners []func(Event)
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Listen registers fn to receive every published event after sequencing.
// fn runs on the publishing goroutine and must not block.
func (b *EventBus) Listen(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	listeners := slices.Clone(b.listeners)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// jobEvent fills the job-derived fields of an event.
func jobEvent(job domain.Job, typ EventType, message string) Event {
	return Event{
		JobKey:           job.Key,
		JobID:            job.ID,
		Type:             typ,
		Phase:            job.Phase,
		Message:          message,
		UploadProgress:   job.UploadProgress,
		AnalysisProgress: job.AnalysisProgress,
		SegmentCount:     len(job.Result),
	}
}
