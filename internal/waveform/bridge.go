package waveform

import (
	"sync"
)

// Event names exchanged with the frontend renderer.
const (
	EventLoad         = "waveform:load"
	EventPlay         = "waveform:play"
	EventZoom         = "waveform:zoom"
	EventClearRegions = "waveform:clear-regions"
	EventAddRegion    = "waveform:add-region"
	EventRegionClick  = "waveform:region-click"
)

// Emitter is the event channel between Go and the page hosting the renderer.
type Emitter interface {
	Emit(name string, data ...any)
	On(name string, callback func(data ...any)) (cancel func())
}

// Bridge forwards surface commands to a frontend renderer over an Emitter and
// turns renderer click events back into Region values.
type Bridge struct {
	emitter Emitter

	mu      sync.Mutex
	regions map[string]Region
}

// NewBridge creates a surface backed by emitter.
func NewBridge(emitter Emitter) *Bridge {
	return &Bridge{emitter: emitter, regions: make(map[string]Region)}
}

// Load asks the renderer to fetch and draw source.
func (b *Bridge) Load(source string) error {
	b.emitter.Emit(EventLoad, map[string]any{"url": source})
	return nil
}

// Play asks the renderer to play span.
func (b *Bridge) Play(span Span) error {
	if err := validateSpan(span); err != nil {
		return err
	}
	b.emitter.Emit(EventPlay, span)
	return nil
}

// Zoom sets the renderer zoom level.
func (b *Bridge) Zoom(pxPerSec float64) error {
	b.emitter.Emit(EventZoom, map[string]any{"pxPerSec": ClampZoom(pxPerSec)})
	return nil
}

// ClearRegions removes every region from the renderer.
func (b *Bridge) ClearRegions() error {
	b.mu.Lock()
	b.regions = make(map[string]Region)
	b.mu.Unlock()
	b.emitter.Emit(EventClearRegions)
	return nil
}

// AddRegion draws one region.
func (b *Bridge) AddRegion(region Region) error {
	b.mu.Lock()
	b.regions[region.ID] = region
	b.mu.Unlock()
	b.emitter.Emit(EventAddRegion, region)
	return nil
}

// OnRegionClick subscribes to renderer clicks. The payload carries the region
// id; regions unknown to the bridge are ignored.
func (b *Bridge) OnRegionClick(handler func(Region)) func() {
	return b.emitter.On(EventRegionClick, func(data ...any) {
		if len(data) == 0 {
			return
		}
		id := regionID(data[0])
		b.mu.Lock()
		region, ok := b.regions[id]
		b.mu.Unlock()
		if ok {
			handler(region)
		}
	})
}

// regionID accepts either a bare id or an object with an "id" field.
func regionID(payload any) string {
	switch v := payload.(type) {
	case string:
		return v
	case map[string]any:
		if id, ok := v["id"].(string); ok {
			return id
		}
	}
	return ""
}
