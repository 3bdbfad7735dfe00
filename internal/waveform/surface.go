// Package waveform defines the capability set the client needs from a
// waveform renderer and provides the bindings used by the desktop app and CLI.
package waveform

import "fmt"

// Zoom bounds in pixels per second of audio; 0 lets the renderer fit the view.
const (
	MinZoom = 0
	MaxZoom = 200
)

// Span is a half-open playback range in seconds.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Region is one labeled overlay on the waveform.
type Region struct {
	ID     string  `json:"id"`
	Index  int     `json:"index"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Drag   bool    `json:"drag"`
	Resize bool    `json:"resize"`
	Color  string  `json:"color"`
}

// Span returns the region's playback range.
func (r Region) Span() Span {
	return Span{Start: r.Start, End: r.End}
}

// Surface is the narrow interface to a waveform renderer.
type Surface interface {
	Load(source string) error
	Play(span Span) error
	Zoom(pxPerSec float64) error
	ClearRegions() error
	AddRegion(region Region) error
	// OnRegionClick installs handler and returns a function that removes it.
	OnRegionClick(handler func(Region)) (unsubscribe func())
}

// ClampZoom keeps a zoom request inside [MinZoom, MaxZoom].
func ClampZoom(pxPerSec float64) float64 {
	switch {
	case pxPerSec < MinZoom:
		return MinZoom
	case pxPerSec > MaxZoom:
		return MaxZoom
	default:
		return pxPerSec
	}
}

func validateSpan(span Span) error {
	if span.End <= span.Start || span.Start < 0 {
		return fmt.Errorf("invalid playback span [%g, %g)", span.Start, span.End)
	}
	return nil
}
