// Package report formats segments and history for people: the desktop results
// table and the CLI share these helpers.
package report

import (
	"fmt"
	"math"

	"laughtrackr/internal/domain"
)

// Placeholder stands in for a metric the server did not report.
const Placeholder = "—"

// Row is one formatted results-table line. Index is zero-based for
// PlaySegment; Number is what people see.
type Row struct {
	Index    int    `json:"index"`
	Number   int    `json:"number"`
	When     string `json:"when"`
	Duration string `json:"duration"`
	PeakDbfs string `json:"peakDbfs"`
	MinDbfs  string `json:"minDbfs"`
	AvgRms   string `json:"avgRms"`
}

// Rows formats every segment of set in order.
func Rows(set domain.SegmentSet) []Row {
	rows := make([]Row, 0, len(set))
	for i, seg := range set {
		rows = append(rows, Row{
			Index:    i,
			Number:   i + 1,
			When:     FormatClock(seg.StartSec) + "–" + FormatClock(seg.EndSec),
			Duration: fmt.Sprintf("%.2fs", seg.DurationSec),
			PeakDbfs: FormatDbfs(seg.PeakDbfs),
			MinDbfs:  FormatDbfs(seg.MinDbfs),
			AvgRms:   FormatRms(seg.AvgRms),
		})
	}
	return rows
}

// FormatClock renders seconds as m:ss, truncating fractions.
func FormatClock(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	total := int(math.Floor(sec))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatDbfs renders a level in dBFS, or the placeholder when absent.
func FormatDbfs(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return fmt.Sprintf("%.1f dBFS", *v)
}

// FormatRms renders an RMS value, or the placeholder when absent.
func FormatRms(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return fmt.Sprintf("%.3f", *v)
}
