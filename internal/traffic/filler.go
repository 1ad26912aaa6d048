// Package traffic fills unfilled ad-break segments with a sequential,
// wrapping walk across a single filler asset.
package traffic

import (
	"fmt"

	"github.com/retrovue/core/internal/model"
)

// Filler describes the asset used to fill ad breaks and its duration.
type Filler struct {
	AssetURI   string
	DurationMS int64
}

// Fill walks segments in order, replacing each unfilled (empty AssetURI)
// filler-type slot with one or more filler segments whose offsets advance
// monotonically modulo the filler's own duration. Already-filled segments
// (non-empty AssetURI) are never rewritten. Returns the new segment slice
// and the cursor's final position, so callers can carry it across breaks in
// the same transmission log.
func Fill(segments []model.Segment, f Filler, cursor int64) ([]model.Segment, int64, error) {
	if f.DurationMS <= 0 {
		return nil, cursor, fmt.Errorf("filler asset duration must be positive")
	}
	cursor = cursor % f.DurationMS
	if cursor < 0 {
		cursor += f.DurationMS
	}

	out := make([]model.Segment, 0, len(segments))
	nextIndex := 0
	for _, seg := range segments {
		if seg.SegmentType != model.SegmentFiller || seg.AssetURI != "" {
			seg.SegmentIndex = nextIndex
			nextIndex++
			out = append(out, seg)
			continue
		}

		remaining := seg.SegmentDurationMS
		for remaining > 0 {
			chunk := f.DurationMS - cursor
			if chunk > remaining {
				chunk = remaining
			}
			out = append(out, model.Segment{
				SegmentIndex:       nextIndex,
				SegmentType:        model.SegmentFiller,
				AssetURI:           f.AssetURI,
				AssetStartOffsetMS: cursor,
				SegmentDurationMS:  chunk,
			})
			nextIndex++
			remaining -= chunk
			cursor = (cursor + chunk) % f.DurationMS
		}
	}

	return out, cursor, nil
}
