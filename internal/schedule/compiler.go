package schedule

import (
	"context"
	"sort"
	"time"

	"github.com/retrovue/core/internal/model"
	"github.com/retrovue/core/internal/reasonerror"
)

// candidateBlock is a pre-compaction block: it carries a declared (intended)
// start and duration that compaction may shift forward.
type candidateBlock struct {
	title            string
	assetID          string
	assetURI         string
	declaredStart    time.Time
	intendedDuration time.Duration
	episodeDuration  time.Duration
	chapterMarkersMS []int64
	allowBleed       bool

	order int // stable emission order, for the sort tiebreak
}

// Compile expands directive into a grid-aligned, bleed-compacted sequence of
// ProgramBlock covering the broadcast day.
func Compile(ctx context.Context, d Directive, resolver AssetResolver) ([]model.ProgramBlock, error) {
	if d.GridMinutes <= 0 {
		return nil, compileErr(reasonerror.RGridViolation, "grid_minutes must be positive")
	}
	grid := time.Duration(d.GridMinutes) * time.Minute

	candidates, err := expandZones(ctx, d, resolver, grid)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].declaredStart.Equal(candidates[j].declaredStart) {
			return candidates[i].declaredStart.Before(candidates[j].declaredStart)
		}
		return candidates[i].order < candidates[j].order
	})

	compacted, err := compact(candidates)
	if err != nil {
		return nil, err
	}

	blocks := make([]model.ProgramBlock, 0, len(compacted))
	for _, c := range compacted {
		blocks = append(blocks, model.ProgramBlock{
			Title:              c.title,
			AssetID:            c.assetID,
			AssetURI:           c.assetURI,
			StartAtUTC:         c.declaredStart,
			SlotDurationSec:    int64(c.intendedDuration / time.Second),
			EpisodeDurationSec: int64(c.episodeDuration / time.Second),
			ChapterMarkersMS:   c.chapterMarkersMS,
		})
	}

	if err := validateGrid(blocks, d.GridMinutes); err != nil {
		return nil, err
	}

	return blocks, nil
}

func expandZones(ctx context.Context, d Directive, resolver AssetResolver, grid time.Duration) ([]candidateBlock, error) {
	var candidates []candidateBlock
	order := 0

	emit := func(c candidateBlock) {
		c.order = order
		order++
		candidates = append(candidates, c)
	}

	for _, zone := range d.Zones {
		cursor := zone.StartAt
		for _, dir := range zone.Directives {
			if err := dir.Validate(); err != nil {
				return nil, compileErr(reasonerror.RAssetUnresolvable, "zone %q: %v", zone.Name, err)
			}

			switch dir.Kind {
			case KindPlaySingle:
				asset, err := resolver.ResolveAsset(ctx, dir.PlaySingle.AssetID)
				if err != nil {
					return nil, compileErr(reasonerror.RAssetUnresolvable, "play_single %q: %v", dir.PlaySingle.AssetID, err)
				}
				emit(candidateBlock{
					title:            titleOf(asset),
					assetID:          asset.ID,
					assetURI:         asset.URI,
					declaredStart:    cursor,
					intendedDuration: grid,
					episodeDuration:  time.Duration(asset.DurationMS) * time.Millisecond,
					chapterMarkersMS: asset.ChapterMarkersMS,
					allowBleed:       true,
				})
				cursor = cursor.Add(grid)

			case KindPlayProgram:
				assets, err := resolver.ResolveProgram(ctx, dir.PlayProgram.ProgramID, dir.PlayProgram.PlayMode)
				if err != nil {
					return nil, compileErr(reasonerror.RAssetUnresolvable, "play_program %q: %v", dir.PlayProgram.ProgramID, err)
				}
				if len(assets) == 0 {
					return nil, compileErr(reasonerror.REmptyPool, "play_program %q resolved no episodes", dir.PlayProgram.ProgramID)
				}
				for _, asset := range assets {
					emit(candidateBlock{
						title:            titleOf(asset),
						assetID:          asset.ID,
						assetURI:         asset.URI,
						declaredStart:    cursor,
						intendedDuration: grid,
						episodeDuration:  time.Duration(asset.DurationMS) * time.Millisecond,
						chapterMarkersMS: asset.ChapterMarkersMS,
						allowBleed:       true,
					})
					cursor = cursor.Add(grid)
				}

			case KindProgramReference:
				asset, err := resolver.ResolveProgramReference(ctx, dir.ProgramReference.ProgramID)
				if err != nil {
					return nil, compileErr(reasonerror.RAssetUnresolvable, "program_reference %q: %v", dir.ProgramReference.ProgramID, err)
				}
				emit(candidateBlock{
					title:            titleOf(asset),
					assetID:          asset.ID,
					assetURI:         asset.URI,
					declaredStart:    cursor,
					intendedDuration: grid,
					episodeDuration:  time.Duration(asset.DurationMS) * time.Millisecond,
					chapterMarkersMS: asset.ChapterMarkersMS,
					allowBleed:       true,
				})
				cursor = cursor.Add(grid)

			case KindMovieMarathon:
				m := dir.MovieMarathon
				pool, err := resolver.ResolvePool(ctx, m.Pool)
				if err != nil {
					return nil, compileErr(reasonerror.RAssetUnresolvable, "movie_marathon pool: %v", err)
				}
				if len(pool) == 0 {
					return nil, compileErr(reasonerror.REmptyPool, "movie_marathon pool resolved no assets")
				}
				mcursor := m.Start
				i := 0
				for mcursor.Before(m.End) {
					asset := pool[i%len(pool)]
					i++
					dur := time.Duration(asset.DurationMS) * time.Millisecond
					slot := ceilToGrid(dur, grid)
					emit(candidateBlock{
						title:            titleOf(asset),
						assetID:          asset.ID,
						assetURI:         asset.URI,
						declaredStart:    mcursor,
						intendedDuration: slot,
						episodeDuration:  dur,
						chapterMarkersMS: asset.ChapterMarkersMS,
						allowBleed:       m.AllowBleed,
					})
					mcursor = mcursor.Add(slot)
				}
			}
		}
	}

	return candidates, nil
}

// compact walks the globally-sorted candidate list maintaining a single
// cursor; a block pushed past its declared start by a bleeding predecessor
// is shifted forward. A block that would be fully enclosed by the previous
// block's extent is always an error — bleed-over is never silent pruning.
func compact(candidates []candidateBlock) ([]candidateBlock, error) {
	out := make([]candidateBlock, 0, len(candidates))
	var cursor time.Time
	var prevEnd time.Time
	havePrev := false

	for _, c := range candidates {
		actualStart := c.declaredStart
		if havePrev && cursor.After(actualStart) {
			if !prevBleedAllows(candidates, c) {
				return nil, compileErr(reasonerror.RIllegalOverlap, "block %q at %s: preceding block does not allow bleed", c.title, c.declaredStart)
			}
			actualStart = cursor
			shiftedEnd := actualStart.Add(c.intendedDuration)
			if !shiftedEnd.After(prevEnd) {
				return nil, compileErr(reasonerror.RIllegalOverlap, "Illegal overlap: fully enclosed (%q at %s)", c.title, c.declaredStart)
			}
		}
		c.declaredStart = actualStart
		out = append(out, c)
		cursor = actualStart.Add(c.intendedDuration)
		prevEnd = cursor
		havePrev = true
	}

	return out, nil
}

// prevBleedAllows reports whether the directive immediately preceding c in
// emission order permits it to push c forward. We look it up by comparing
// order-1; candidates are emitted in directive order so this is safe.
func prevBleedAllows(all []candidateBlock, c candidateBlock) bool {
	for _, other := range all {
		if other.order == c.order-1 {
			return other.allowBleed
		}
	}
	return true
}

func ceilToGrid(d, grid time.Duration) time.Duration {
	if d <= 0 {
		return grid
	}
	n := (d + grid - 1) / grid
	if n < 1 {
		n = 1
	}
	return n * grid
}

func validateGrid(blocks []model.ProgramBlock, gridMinutes int) error {
	gridSec := int64(gridMinutes) * 60
	for i, b := range blocks {
		if b.StartAtUTC.Location() != time.UTC {
			return compileErr(reasonerror.RNotUTC, "block %q start_at is not UTC", b.Title)
		}
		if b.StartAtUTC.Minute()%gridMinutes != 0 || b.StartAtUTC.Second() != 0 || b.StartAtUTC.Nanosecond() != 0 {
			return compileErr(reasonerror.RGridViolation, "block %q start_at %s is not grid-aligned", b.Title, b.StartAtUTC)
		}
		if b.SlotDurationSec%gridSec != 0 {
			return compileErr(reasonerror.RGridViolation, "block %q slot_duration_sec %d is not a multiple of grid", b.Title, b.SlotDurationSec)
		}
		if i+1 < len(blocks) && b.EndAt() != blocks[i+1].StartAtUTC {
			return compileErr(reasonerror.RIllegalOverlap, "gap or overlap between block %d and %d", i, i+1)
		}
	}
	return nil
}

func titleOf(a Asset) string {
	if a.Title != "" {
		return a.Title
	}
	return a.ID
}
