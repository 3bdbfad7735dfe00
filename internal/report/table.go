package report

import (
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"laughtrackr/internal/domain"
)

// WriteSegments renders the results table.
func WriteSegments(w io.Writer, set domain.SegmentSet) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"#", "When", "Dur", "Peak dBFS", "Min dBFS", "Avg RMS"})
	for _, row := range Rows(set) {
		tw.AppendRow(table.Row{row.Number, row.When, row.Duration, row.PeakDbfs, row.MinDbfs, row.AvgRms})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	tw.Render()
}

// WriteHistory renders past analyses relative to now.
func WriteHistory(w io.Writer, entries []domain.HistoryEntry, now time.Time) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Completed", "File", "Size", "Segments", "Job"})
	for _, e := range entries {
		tw.AppendRow(table.Row{
			humanize.RelTime(e.CompletedAt, now, "ago", "from now"),
			e.FileName,
			humanize.IBytes(uint64(max(e.FileSize, 0))),
			e.SegmentCount,
			e.JobID,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	tw.Render()
}
