package transport

import (
	"encoding/json"
	"math"
	"sort"

	"laughtrackr/internal/domain"
)

// durationTolerance is the allowed drift between durationSec and endSec-startSec.
const durationTolerance = 1e-3

type rawSegment struct {
	StartSec    *float64 `json:"startSec"`
	EndSec      *float64 `json:"endSec"`
	DurationSec *float64 `json:"durationSec"`
	PeakDbfs    *float64 `json:"peakDbfs"`
	MinDbfs     *float64 `json:"minDbfs"`
	AvgRms      *float64 `json:"avgRms"`
}

type indexedSegment struct {
	index int
	seg   domain.Segment
}

// normalizeSegments validates each raw segment on its own, sorts survivors by
// start time, clips overlaps against the previous segment and derives
// durations that are missing or inconsistent.
func normalizeSegments(raw []json.RawMessage) (domain.SegmentSet, []*MalformedResultError) {
	var rejected []*MalformedResultError
	valid := make([]indexedSegment, 0, len(raw))

	for i, msg := range raw {
		var rs rawSegment
		if err := json.Unmarshal(msg, &rs); err != nil {
			rejected = append(rejected, &MalformedResultError{Index: i, Reason: "not a segment object: " + err.Error()})
			continue
		}
		if rs.StartSec == nil || rs.EndSec == nil {
			rejected = append(rejected, &MalformedResultError{Index: i, Reason: "missing startSec or endSec"})
			continue
		}
		start, end := *rs.StartSec, *rs.EndSec
		if !finite(start) || !finite(end) {
			rejected = append(rejected, &MalformedResultError{Index: i, Reason: "non-finite time"})
			continue
		}
		if start < 0 {
			start = 0
		}
		if end <= start {
			rejected = append(rejected, &MalformedResultError{Index: i, Reason: "endSec is not after startSec"})
			continue
		}

		seg := domain.Segment{
			StartSec: start,
			EndSec:   end,
			PeakDbfs: finiteOrNil(rs.PeakDbfs),
			MinDbfs:  finiteOrNil(rs.MinDbfs),
			AvgRms:   finiteOrNil(rs.AvgRms),
		}
		if rs.DurationSec != nil {
			seg.DurationSec = *rs.DurationSec
		}
		valid = append(valid, indexedSegment{index: i, seg: seg})
	}

	sort.SliceStable(valid, func(a, b int) bool {
		return valid[a].seg.StartSec < valid[b].seg.StartSec
	})

	out := make(domain.SegmentSet, 0, len(valid))
	for _, item := range valid {
		seg := item.seg
		if n := len(out); n > 0 && seg.StartSec < out[n-1].EndSec {
			seg.StartSec = out[n-1].EndSec
			if seg.EndSec <= seg.StartSec {
				rejected = append(rejected, &MalformedResultError{Index: item.index, Reason: "contained in previous segment"})
				continue
			}
		}
		if span := seg.EndSec - seg.StartSec; math.Abs(seg.DurationSec-span) > durationTolerance {
			seg.DurationSec = span
		}
		out = append(out, seg)
	}

	sort.SliceStable(rejected, func(a, b int) bool {
		return rejected[a].Index < rejected[b].Index
	})
	return out, rejected
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || !finite(*v) {
		return nil
	}
	out := *v
	return &out
}
