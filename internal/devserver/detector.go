package devserver

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"laughtrackr/internal/domain"
)

// Upload describes a stored upload handed to a Detector.
type Upload struct {
	ID   string
	Name string
	Size int64
	// Path is empty when uploads are discarded after counting.
	Path string
}

// Analysis is what a Detector produces for one upload.
type Analysis struct {
	DurationSec float64
	Segments    domain.SegmentSet
}

// Detector finds laughter segments in an upload.
type Detector interface {
	Detect(ctx context.Context, upload Upload) (Analysis, error)
}

// CadenceDetector fabricates deterministic segments at a fixed cadence over a
// duration estimated from the upload size. It stands in for a real model when
// exercising the client end to end.
type CadenceDetector struct {
	// BytesPerSecond converts upload size to duration. Zero means 16 kHz mono PCM16.
	BytesPerSecond float64
	// EverySec is the spacing between segment starts. Zero means 45 s.
	EverySec float64
}

func (d CadenceDetector) Detect(ctx context.Context, upload Upload) (Analysis, error) {
	if upload.Size <= 0 {
		return Analysis{}, errors.New("uploaded file is empty")
	}
	bps := d.BytesPerSecond
	if bps <= 0 {
		bps = 32000
	}
	every := d.EverySec
	if every <= 0 {
		every = 45
	}

	duration := float64(upload.Size) / bps
	rng := rand.New(rand.NewSource(upload.Size))
	var segments domain.SegmentSet
	for start := every / 3; start+0.3 < duration; start += every {
		if err := ctx.Err(); err != nil {
			return Analysis{}, err
		}
		end := math.Min(start+0.8+rng.Float64()*2.4, duration)
		peak := -3 - rng.Float64()*9
		low := peak - 6 - rng.Float64()*10
		avg := math.Pow(10, (peak-8)/20)
		segments = append(segments, domain.Segment{
			StartSec:    start,
			EndSec:      end,
			DurationSec: end - start,
			PeakDbfs:    &peak,
			MinDbfs:     &low,
			AvgRms:      &avg,
		})
	}
	return Analysis{DurationSec: duration, Segments: segments}, nil
}
