package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/retrovue/core/internal/reasonerror"
)

type fakeResolver struct {
	assets   map[string]Asset
	programs map[string][]Asset
	pools    map[string][]Asset
}

func (r *fakeResolver) ResolveAsset(_ context.Context, assetID string) (Asset, error) {
	a, ok := r.assets[assetID]
	if !ok {
		return Asset{}, errors.New("unknown asset " + assetID)
	}
	return a, nil
}

func (r *fakeResolver) ResolvePool(_ context.Context, sel PoolSelector) ([]Asset, error) {
	key := ""
	if len(sel.Tags) > 0 {
		key = sel.Tags[0]
	}
	return r.pools[key], nil
}

func (r *fakeResolver) ResolveProgram(_ context.Context, programID string, _ PlayMode) ([]Asset, error) {
	return r.programs[programID], nil
}

func (r *fakeResolver) ResolveProgramReference(_ context.Context, programID string) (Asset, error) {
	if len(r.programs[programID]) == 0 {
		return Asset{}, errors.New("unknown program " + programID)
	}
	return r.programs[programID][0], nil
}

func utc(h, m int) time.Time {
	return time.Date(2026, 7, 31, h, m, 0, 0, time.UTC)
}

// TestCompileTwoMarathonsWithBleed exercises scenario 1: a morning movie
// marathon zone whose last movie bleeds past its declared End, followed by
// an evening marathon zone whose own declared Start the bleed must push
// forward — quantified invariant #4 requires blocks[i].end == blocks[i+1].start
// for every adjacent pair, which validateGrid enforces on the compiler's own
// output.
func TestCompileTwoMarathonsWithBleed(t *testing.T) {
	resolver := &fakeResolver{
		pools: map[string][]Asset{
			// 95 min ceils to 4 grid slots (120 min); one movie alone already
			// overruns a 1-hour marathon window by an hour.
			"morning": {
				{ID: "m1", DurationMS: 95 * 60 * 1000},
			},
			"evening": {
				{ID: "e1", DurationMS: 30 * 60 * 1000},
			},
		},
	}

	d := Directive{
		ChannelID:     "CH1",
		BroadcastDate: "2026-07-31",
		GridMinutes:   30,
		Zones: []Zone{
			{
				Name:    "morning",
				StartAt: utc(6, 0),
				Directives: []ZoneDirective{
					{Kind: KindMovieMarathon, MovieMarathon: &MovieMarathonDirective{
						Start:      utc(6, 0),
						End:        utc(7, 0),
						Pool:       PoolSelector{Tags: []string{"morning"}},
						AllowBleed: true,
					}},
				},
			},
			{
				Name:    "evening",
				StartAt: utc(7, 0),
				Directives: []ZoneDirective{
					{Kind: KindMovieMarathon, MovieMarathon: &MovieMarathonDirective{
						Start:      utc(7, 0),
						End:        utc(8, 0),
						Pool:       PoolSelector{Tags: []string{"evening"}},
						AllowBleed: true,
					}},
				},
			},
		},
	}

	blocks, err := Compile(context.Background(), d, resolver)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(blocks) < 2 {
		t.Fatalf("expected at least 2 blocks, got %d", len(blocks))
	}

	for i := 0; i+1 < len(blocks); i++ {
		if blocks[i].EndAt() != blocks[i+1].StartAtUTC {
			t.Fatalf("gap/overlap between block %d (%s, ends %s) and block %d (starts %s)",
				i, blocks[i].Title, blocks[i].EndAt(), i+1, blocks[i+1].StartAtUTC)
		}
	}

	// The evening zone's first block must have been pushed forward by the
	// morning marathon's bleed, not sitting at its originally declared 07:00.
	foundPushed := false
	for _, b := range blocks {
		if b.AssetID == "e1" && b.StartAtUTC.After(utc(7, 0)) {
			foundPushed = true
		}
	}
	if !foundPushed {
		t.Fatal("expected the evening marathon's first block to be pushed past its declared start by the morning bleed")
	}
}

func TestCompileRejectsNonGridAlignedStart(t *testing.T) {
	resolver := &fakeResolver{
		assets: map[string]Asset{"a1": {ID: "a1", DurationMS: 30 * 60 * 1000}},
	}
	d := Directive{
		ChannelID:     "CH1",
		BroadcastDate: "2026-07-31",
		GridMinutes:   30,
		Zones: []Zone{{
			Name:    "z",
			StartAt: time.Date(2026, 7, 31, 6, 5, 0, 0, time.UTC), // not grid-aligned
			Directives: []ZoneDirective{
				{Kind: KindPlaySingle, PlaySingle: &PlaySingleDirective{AssetID: "a1"}},
			},
		}},
	}

	_, err := Compile(context.Background(), d, resolver)
	if err == nil {
		t.Fatal("expected a grid-alignment error")
	}
	var ce *CompileError
	if !errors.As(err, &ce) || ce.Reason != reasonerror.RGridViolation {
		t.Fatalf("expected RGridViolation, got %v", err)
	}
}

func TestCompileRejectsZeroGridMinutes(t *testing.T) {
	d := Directive{ChannelID: "CH1", BroadcastDate: "2026-07-31", GridMinutes: 0}
	_, err := Compile(context.Background(), d, &fakeResolver{})
	if err == nil {
		t.Fatal("expected an error for a non-positive grid")
	}
}

func TestCompileRejectsIllegalOverlapWithoutBleed(t *testing.T) {
	resolver := &fakeResolver{
		pools: map[string][]Asset{
			"p": {{ID: "m1", DurationMS: 95 * 60 * 1000}},
		},
		assets: map[string]Asset{"a1": {ID: "a1", DurationMS: 30 * 60 * 1000}},
	}

	d := Directive{
		ChannelID:     "CH1",
		BroadcastDate: "2026-07-31",
		GridMinutes:   30,
		Zones: []Zone{
			{
				Name:    "z1",
				StartAt: utc(6, 0),
				Directives: []ZoneDirective{
					{Kind: KindMovieMarathon, MovieMarathon: &MovieMarathonDirective{
						Start:      utc(6, 0),
						End:        utc(6, 30),
						Pool:       PoolSelector{Tags: []string{"p"}},
						AllowBleed: false, // bleeding movie but disallowed
					}},
				},
			},
			{
				Name:    "z2",
				StartAt: utc(6, 30),
				Directives: []ZoneDirective{
					{Kind: KindPlaySingle, PlaySingle: &PlaySingleDirective{AssetID: "a1"}},
				},
			},
		},
	}

	_, err := Compile(context.Background(), d, resolver)
	if err == nil {
		t.Fatal("expected an illegal-overlap error since AllowBleed is false")
	}
	var ce *CompileError
	if !errors.As(err, &ce) || ce.Reason != reasonerror.RIllegalOverlap {
		t.Fatalf("expected RIllegalOverlap, got %v", err)
	}
}

func TestCompilePlayProgramSequentialAdvancesGrid(t *testing.T) {
	resolver := &fakeResolver{
		programs: map[string][]Asset{
			"prog1": {
				{ID: "e1", DurationMS: 30 * 60 * 1000},
				{ID: "e2", DurationMS: 30 * 60 * 1000},
			},
		},
	}
	d := Directive{
		ChannelID:     "CH1",
		BroadcastDate: "2026-07-31",
		GridMinutes:   30,
		Zones: []Zone{{
			Name:    "z",
			StartAt: utc(6, 0),
			Directives: []ZoneDirective{
				{Kind: KindPlayProgram, PlayProgram: &PlayProgramDirective{ProgramID: "prog1", PlayMode: PlaySequential}},
			},
		}},
	}

	blocks, err := Compile(context.Background(), d, resolver)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].AssetID != "e1" || blocks[1].AssetID != "e2" {
		t.Fatalf("expected e1 then e2 in order, got %q then %q", blocks[0].AssetID, blocks[1].AssetID)
	}
	if blocks[0].EndAt() != blocks[1].StartAtUTC {
		t.Fatalf("expected contiguous blocks, got end %s start %s", blocks[0].EndAt(), blocks[1].StartAtUTC)
	}
}
