// Package schedule compiles a declarative per-channel, per-broadcast-date
// directive (zones of typed directives) into a grid-aligned, bleed-compacted
// sequence of model.ProgramBlock.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/retrovue/core/internal/reasonerror"
)

// PlayMode selects how a PlayProgram directive orders its episodes.
type PlayMode string

const (
	PlaySequential PlayMode = "sequential"
	PlayRandom     PlayMode = "random"
)

// DirectiveKind tags the ZoneDirective sum type. Parsing from YAML/JSON
// selects the variant by this tag; an unknown tag is a hard error.
type DirectiveKind string

const (
	KindPlaySingle       DirectiveKind = "play_single"
	KindPlayProgram      DirectiveKind = "play_program"
	KindMovieMarathon    DirectiveKind = "movie_marathon"
	KindProgramReference DirectiveKind = "program_reference"
)

// PlaySingleDirective plays one asset for a single grid slot.
type PlaySingleDirective struct {
	AssetID string
}

// PlayProgramDirective plays a program's episodes in sequence or at random.
type PlayProgramDirective struct {
	ProgramID string
	PlayMode  PlayMode
}

// PoolSelector resolves to a candidate asset set via tag/attribute match
// predicates. The matching logic itself lives with the external asset
// catalog (out of scope here) — AssetResolver.ResolvePool implements it.
type PoolSelector struct {
	Tags  []string
	Extra map[string]string
}

// MovieMarathonDirective fills [Start, End) with back-to-back movies drawn
// from Pool, each ceiled to the grid. AllowBleed governs whether the last
// movie may push past End (and push subsequent zones forward) or whether
// that is an error.
type MovieMarathonDirective struct {
	Start      time.Time
	End        time.Time
	Pool       PoolSelector
	AllowBleed bool
}

// ProgramReferenceDirective points at a program resolved by an external
// collaborator without further pool semantics (e.g. a pre-resolved series
// pointer from another system).
type ProgramReferenceDirective struct {
	ProgramID string
}

// ZoneDirective is a tagged sum type: exactly one of the typed fields is
// populated, selected by Kind. Every consumer must switch exhaustively on
// Kind; an unrecognized Kind is a CompileError, never silently skipped.
type ZoneDirective struct {
	Kind DirectiveKind

	PlaySingle       *PlaySingleDirective
	PlayProgram      *PlayProgramDirective
	MovieMarathon    *MovieMarathonDirective
	ProgramReference *ProgramReferenceDirective
}

// Validate checks that exactly the field matching Kind is populated.
func (d ZoneDirective) Validate() error {
	switch d.Kind {
	case KindPlaySingle:
		if d.PlaySingle == nil {
			return fmt.Errorf("play_single directive missing payload")
		}
	case KindPlayProgram:
		if d.PlayProgram == nil {
			return fmt.Errorf("play_program directive missing payload")
		}
	case KindMovieMarathon:
		if d.MovieMarathon == nil {
			return fmt.Errorf("movie_marathon directive missing payload")
		}
	case KindProgramReference:
		if d.ProgramReference == nil {
			return fmt.Errorf("program_reference directive missing payload")
		}
	default:
		return fmt.Errorf("unknown zone directive kind %q", d.Kind)
	}
	return nil
}

// Zone is an ordered run of directives anchored at StartAt; episode
// directives within it consume one grid slot each, advancing a local cursor
// from StartAt. MovieMarathon directives instead anchor at their own Start.
type Zone struct {
	Name       string
	StartAt    time.Time
	Directives []ZoneDirective
}

// Directive is the full per-channel, per-broadcast-date compile input.
type Directive struct {
	ChannelID            string
	BroadcastDate        string
	GridMinutes          int
	ProgrammingDayStartH int
	Zones                []Zone
}

// Asset is the external asset-catalog projection the compiler needs. Full
// asset ingest/CRUD is out of scope; this is the narrow read interface.
type Asset struct {
	ID               string
	URI              string
	Title            string
	DurationMS       int64
	ChapterMarkersMS []int64
}

// AssetResolver is the external collaborator that resolves directive
// references to concrete assets.
type AssetResolver interface {
	ResolveAsset(ctx context.Context, assetID string) (Asset, error)
	ResolvePool(ctx context.Context, sel PoolSelector) ([]Asset, error)
	ResolveProgram(ctx context.Context, programID string, mode PlayMode) ([]Asset, error)
	ResolveProgramReference(ctx context.Context, programID string) (Asset, error)
}

// CompileError is returned for any directive that cannot be compiled into a
// legal, grid-aligned block sequence.
type CompileError struct {
	Reason reasonerror.ReasonCode
	Detail string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *CompileError) Unwrap() error {
	return reasonerror.Wrap(e.Reason, e.Detail, nil)
}

func compileErr(reason reasonerror.ReasonCode, format string, args ...any) error {
	return &CompileError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
