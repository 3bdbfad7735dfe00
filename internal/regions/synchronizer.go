// Package regions projects a job's segments onto a waveform surface.
package regions

import (
	"fmt"
	"log/slog"
	"sync"

	"laughtrackr/internal/domain"
	"laughtrackr/internal/logging"
	"laughtrackr/internal/waveform"
)

// RegionColor tints laughter regions.
const RegionColor = "rgba(16,185,129,0.25)"

// Binding maps one segment index to the region drawn for it.
type Binding struct {
	Index    int    `json:"index"`
	RegionID string `json:"regionId"`
	Span     waveform.Span
}

// RegionID names the region for segment i.
func RegionID(i int) string {
	return fmt.Sprintf("seg-%d", i)
}

// Synchronizer is the only writer of a surface's region collection.
// Each pass clears the surface and repopulates it; passes never interleave.
type Synchronizer struct {
	logger *slog.Logger

	mu          sync.Mutex
	bindings    []Binding
	byRegion    map[string]Binding
	unsubscribe func()
}

// New creates an empty synchronizer.
func New(logger *slog.Logger) *Synchronizer {
	return &Synchronizer{logger: logging.OrDefault(logger), byRegion: make(map[string]Binding)}
}

// Sync replaces every region on surface with one region per segment and
// installs a single click handler that plays the clicked region's span.
func (s *Synchronizer) Sync(set domain.SegmentSet, surface waveform.Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	if err := surface.ClearRegions(); err != nil {
		return fmt.Errorf("clear regions: %w", err)
	}

	bindings := make([]Binding, 0, len(set))
	byRegion := make(map[string]Binding, len(set))
	for i, seg := range set {
		region := waveform.Region{
			ID:     RegionID(i),
			Index:  i,
			Start:  seg.StartSec,
			End:    seg.EndSec,
			Drag:   false,
			Resize: false,
			Color:  RegionColor,
		}
		if err := surface.AddRegion(region); err != nil {
			if clearErr := surface.ClearRegions(); clearErr != nil {
				s.logger.Warn("clear partial regions failed", "error", clearErr)
			}
			return fmt.Errorf("add region %s: %w", region.ID, err)
		}
		b := Binding{Index: i, RegionID: region.ID, Span: region.Span()}
		bindings = append(bindings, b)
		byRegion[region.ID] = b
	}
	s.bindings = bindings
	s.byRegion = byRegion

	s.unsubscribe = surface.OnRegionClick(func(region waveform.Region) {
		span, ok := s.spanFor(region)
		if !ok {
			return
		}
		if err := surface.Play(span); err != nil {
			s.logger.Warn("region playback failed", "region", region.ID, "error", err)
		}
	})

	s.logger.Debug("regions synchronized", "count", len(bindings))
	return nil
}

// Reset removes all regions and the click handler from surface.
func (s *Synchronizer) Reset(surface waveform.Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	if surface == nil {
		return nil
	}
	if err := surface.ClearRegions(); err != nil {
		return fmt.Errorf("clear regions: %w", err)
	}
	return nil
}

// Bindings returns a copy of the current segment-to-region bindings.
func (s *Synchronizer) Bindings() []Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Binding(nil), s.bindings...)
}

func (s *Synchronizer) spanFor(region waveform.Region) (waveform.Span, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byRegion[region.ID]
	if !ok {
		return waveform.Span{}, false
	}
	return b.Span, true
}

func (s *Synchronizer) teardownLocked() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.bindings = nil
	s.byRegion = make(map[string]Binding)
}
