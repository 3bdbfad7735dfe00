package waveform

import (
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process surface. The CLI uses it as its renderer and tests
// use it to observe what the synchronizer drew.
type Memory struct {
	mu       sync.Mutex
	source   string
	zoom     float64
	regions  []Region
	plays    []Span
	handlers map[int]func(Region)
	nextID   int
}

// NewMemory returns an empty surface.
func NewMemory() *Memory {
	return &Memory{handlers: make(map[int]func(Region))}
}

// Load records source as the loaded media.
func (m *Memory) Load(source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = source
	return nil
}

// Play records span as played.
func (m *Memory) Play(span Span) error {
	if err := validateSpan(span); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays = append(m.plays, span)
	return nil
}

// Zoom stores the clamped zoom level.
func (m *Memory) Zoom(pxPerSec float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zoom = ClampZoom(pxPerSec)
	return nil
}

// ClearRegions drops all regions.
func (m *Memory) ClearRegions() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions = nil
	return nil
}

// AddRegion appends region; ids must be unique.
func (m *Memory) AddRegion(region Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regions {
		if r.ID == region.ID {
			return fmt.Errorf("region %q already exists", region.ID)
		}
	}
	m.regions = append(m.regions, region)
	return nil
}

// OnRegionClick installs handler.
func (m *Memory) OnRegionClick(handler func(Region)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = handler
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers, id)
	}
}

// Click simulates a user click on the region with id and reports whether it exists.
func (m *Memory) Click(id string) bool {
	m.mu.Lock()
	var target *Region
	for i := range m.regions {
		if m.regions[i].ID == id {
			r := m.regions[i]
			target = &r
			break
		}
	}
	keys := make([]int, 0, len(m.handlers))
	for k := range m.handlers {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	handlers := make([]func(Region), 0, len(keys))
	for _, k := range keys {
		handlers = append(handlers, m.handlers[k])
	}
	m.mu.Unlock()

	if target == nil {
		return false
	}
	for _, h := range handlers {
		h(*target)
	}
	return true
}

// Source returns the loaded media source.
func (m *Memory) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

// ZoomLevel returns the current zoom.
func (m *Memory) ZoomLevel() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zoom
}

// Regions returns a copy of the drawn regions in insertion order.
func (m *Memory) Regions() []Region {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Region(nil), m.regions...)
}

// Plays returns every span played so far.
func (m *Memory) Plays() []Span {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Span(nil), m.plays...)
}

// HandlerCount reports how many click handlers are installed.
func (m *Memory) HandlerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}
