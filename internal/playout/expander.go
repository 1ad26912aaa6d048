// Package playout expands a compiled ProgramBlock into its ordered content +
// ad-break segment list, using chapter markers to place the breaks.
package playout

import (
	"fmt"

	"github.com/retrovue/core/internal/model"
)

// Expand produces segments for block whose durations sum exactly to
// block.SlotDurationSec*1000. Ad-break slots are emitted as unfilled
// "filler" placeholders with an empty AssetURI; the Traffic Manager fills
// them later. Chapter markers equal to the episode duration are ignored (no
// zero-length content segment).
func Expand(block model.ProgramBlock) ([]model.Segment, error) {
	slotMs := block.SlotDurationSec * 1000
	episodeMs := block.EpisodeDurationSec * 1000
	if episodeMs > slotMs {
		return nil, fmt.Errorf("episode duration %dms exceeds slot duration %dms", episodeMs, slotMs)
	}

	markers := make([]int64, 0, len(block.ChapterMarkersMS))
	for _, m := range block.ChapterMarkersMS {
		if m <= 0 || m >= episodeMs {
			continue // ignore markers at/past the episode end (or non-positive)
		}
		markers = append(markers, m)
	}

	bounds := append([]int64{0}, markers...)
	bounds = append(bounds, episodeMs)

	n := len(bounds) - 1 // number of content segments; n-1 ad breaks between them
	adBreaks := n - 1
	totalAdMs := slotMs - episodeMs

	// A block with no internal markers still owes any slot/episode gap to an
	// ad break; without one the leftover time would vanish from the segment
	// list. Append a single trailing break in that case.
	trailingBreak := false
	if adBreaks == 0 && totalAdMs > 0 {
		trailingBreak = true
	}

	segments := make([]model.Segment, 0, n+adBreaks+1)
	idx := 0
	offset := int64(0)

	for i := 0; i < n; i++ {
		contentDur := bounds[i+1] - bounds[i]
		segments = append(segments, model.Segment{
			SegmentIndex:       idx,
			SegmentType:        model.SegmentContent,
			AssetURI:           block.AssetURI,
			AssetStartOffsetMS: offset,
			SegmentDurationMS:  contentDur,
		})
		idx++
		offset += contentDur

		if i < adBreaks {
			share := totalAdMs / int64(adBreaks)
			if i == adBreaks-1 {
				share = totalAdMs - share*int64(adBreaks-1)
			}
			segments = append(segments, model.Segment{
				SegmentIndex:      idx,
				SegmentType:       model.SegmentFiller,
				AssetURI:          "",
				SegmentDurationMS: share,
			})
			idx++
		}
	}

	if trailingBreak {
		segments = append(segments, model.Segment{
			SegmentIndex:      idx,
			SegmentType:       model.SegmentFiller,
			AssetURI:          "",
			SegmentDurationMS: totalAdMs,
		})
	}

	return segments, nil
}
