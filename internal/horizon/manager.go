// Package horizon runs the background control loop that keeps a channel's
// Execution Window Store filled far enough ahead of "now": the Horizon
// Manager. It pulls ready ProgramBlock from a BlockSource, expands and fills
// each one into playable segments, and publishes the result through
// execwindow.Store's publish_atomic_replace — always with
// reason_code=AUTO_EXTEND and operator_override=false, targeting only the
// flexible-future range past the current horizon so it never touches the
// locked window — fence-filling with a filler block when the source can't
// keep up so the playout path never sees a gap
// (INV-HORIZON-NEXT-BLOCK-READY-001).
package horizon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/retrovue/core/internal/clock"
	"github.com/retrovue/core/internal/execwindow"
	"github.com/retrovue/core/internal/log"
	"github.com/retrovue/core/internal/metrics"
	"github.com/retrovue/core/internal/model"
	"github.com/retrovue/core/internal/playout"
	"github.com/retrovue/core/internal/reasonerror"
	"github.com/retrovue/core/internal/traffic"
)

// BlockSource supplies the next ready ProgramBlock(s) for a channel starting
// at or after afterUTC, e.g. backed by the Schedule Compiler's output via
// the Resolved Schedule Store. An empty result (with a nil error) means
// "nothing ready yet" — distinct from an error, which means the source
// itself failed.
type BlockSource interface {
	NextBlocks(ctx context.Context, channelID string, afterUTC time.Time) ([]model.ProgramBlock, error)
}

// AttemptOutcome tags one extension_attempt_log entry.
type AttemptOutcome string

const (
	OutcomeExtended    AttemptOutcome = "extended"
	OutcomeSufficient  AttemptOutcome = "sufficient_depth"
	OutcomeFenceFilled AttemptOutcome = "fence_filled"
	OutcomeExhausted   AttemptOutcome = "exhausted"
)

// Attempt is one recorded evaluation of one channel.
type Attempt struct {
	ChannelID string
	AtUTC     time.Time
	Outcome   AttemptOutcome
	Detail    string
}

// Manager evaluates each configured channel on an interval, extending its
// execution window toward ExecutionDepthTarget.
type Manager struct {
	Clock                clock.Clock
	ExecWindow           *execwindow.Store
	Source               BlockSource
	Filler               traffic.Filler
	Channels             []string
	EvalInterval         time.Duration
	ExecutionDepthTarget time.Duration
	FenceBlockDurationS  int64 // duration of a synthetic fence-fill block, in seconds

	mu       sync.Mutex
	cursors  map[string]int64 // per-channel filler cursor, carried across evaluations
	gens     map[string]int64 // per-channel next generation id to stamp on publish
	attempts []Attempt
}

// horizonQueryWindow bounds how far past "now" ReadWindowSnapshot looks to
// find the current tail of a channel's execution window. No real channel
// schedules this far ahead; it just needs to be comfortably wider than any
// ExecutionDepthTarget in practice.
const horizonQueryWindow = 10 * 365 * 24 * time.Hour

// EvaluateOnce runs a single extension pass for channelID. It is exported so
// callers (tests, an admin trigger) can drive the loop deterministically
// instead of waiting on the ticker.
func (m *Manager) EvaluateOnce(ctx context.Context, channelID string) error {
	now := m.Clock.Now()
	logger := log.WithComponent("horizon")

	horizonEnd := now
	snap, genID := m.ExecWindow.ReadWindowSnapshot(channelID, time.Time{}, now.Add(horizonQueryWindow))
	if len(snap) > 0 {
		horizonEnd = time.UnixMilli(snap[len(snap)-1].EndUTCMs).UTC()
	}

	metrics.SetHorizonDepthSeconds(channelID, horizonEnd.Sub(now).Seconds())

	targetEnd := now.Add(m.ExecutionDepthTarget)
	if !horizonEnd.Before(targetEnd) {
		m.recordAttempt(channelID, now, OutcomeSufficient, fmt.Sprintf("horizon already extends to %s", horizonEnd.Format(time.RFC3339)))
		return nil
	}

	blocks, err := m.Source.NextBlocks(ctx, channelID, horizonEnd)
	if err != nil {
		m.recordAttempt(channelID, now, OutcomeExhausted, err.Error())
		return reasonerror.Wrap(reasonerror.RPipelineExhausted, "block source error", err)
	}

	if len(blocks) == 0 {
		detail := fmt.Sprintf("no blocks ready after %s; fence-filling to protect next-block-ready", horizonEnd.Format(time.RFC3339))
		logger.Warn().Str("channel_id", channelID).Msg(detail)
		entries, rangeEnd, err := m.buildFenceEntries(channelID, horizonEnd)
		if err != nil {
			m.recordAttempt(channelID, now, OutcomeExhausted, err.Error())
			return err
		}
		if err := m.publish(ctx, channelID, horizonEnd, rangeEnd, entries, genID); err != nil {
			m.recordAttempt(channelID, now, OutcomeExhausted, err.Error())
			return err
		}
		m.recordAttempt(channelID, now, OutcomeFenceFilled, detail)
		return nil
	}

	entries, rangeEnd, err := m.buildEntries(channelID, blocks)
	if err != nil {
		m.recordAttempt(channelID, now, OutcomeExhausted, err.Error())
		return err
	}
	if err := m.publish(ctx, channelID, horizonEnd, rangeEnd, entries, genID); err != nil {
		m.recordAttempt(channelID, now, OutcomeExhausted, err.Error())
		return err
	}
	m.recordAttempt(channelID, now, OutcomeExtended, fmt.Sprintf("extended with %d block(s)", len(blocks)))
	return nil
}

// publish extends channelID's window over [rangeStart, rangeEnd) with
// entries, always as an AUTO_EXTEND, non-override publish — this is the
// only policy the Horizon Manager itself ever uses (operator overrides are
// a separate, operator-initiated path that calls execwindow.Store directly).
// rangeStart is always the current horizon end, so this never touches the
// locked window.
func (m *Manager) publish(ctx context.Context, channelID string, rangeStart, rangeEnd time.Time, entries []model.ExecutionEntry, currentGen int64) error {
	gen := m.nextGeneration(channelID, currentGen)
	res, err := m.ExecWindow.PublishAtomicReplace(ctx, channelID, rangeStart, rangeEnd, entries, gen, "AUTO_EXTEND", false)
	if err != nil {
		return err
	}
	if !res.OK {
		return reasonerror.New(res.Reason, "execwindow publish refused")
	}
	return nil
}

func (m *Manager) nextGeneration(channelID string, currentGen int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens == nil {
		m.gens = make(map[string]int64)
	}
	g := m.gens[channelID]
	if currentGen > g {
		g = currentGen
	}
	g++
	m.gens[channelID] = g
	return g
}

func (m *Manager) buildEntries(channelID string, blocks []model.ProgramBlock) ([]model.ExecutionEntry, time.Time, error) {
	entries := make([]model.ExecutionEntry, 0, len(blocks))
	cursor := m.fillerCursor(channelID)
	var rangeEnd time.Time

	for i, b := range blocks {
		segments, err := playout.Expand(b)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("horizon: expand block %q: %w", b.Title, err)
		}
		filled, next, err := traffic.Fill(segments, m.Filler, cursor)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("horizon: fill block %q: %w", b.Title, err)
		}
		cursor = next

		entries = append(entries, model.ExecutionEntry{
			TransmissionLogEntry: model.TransmissionLogEntry{
				BlockID:    blockID(channelID, b, i),
				BlockIndex: i,
				StartUTCMs: b.StartAtUTC.UnixMilli(),
				EndUTCMs:   b.EndAt().UnixMilli(),
				Segments:   filled,
			},
			ChannelID: channelID,
		})
		rangeEnd = b.EndAt()
	}

	m.setFillerCursor(channelID, cursor)
	return entries, rangeEnd, nil
}

// buildFenceEntries synthesizes a single filler block covering
// [afterUTC, afterUTC+FenceBlockDurationS) so the execution window never
// presents a gap while the source catches up.
func (m *Manager) buildFenceEntries(channelID string, afterUTC time.Time) ([]model.ExecutionEntry, time.Time, error) {
	durS := m.FenceBlockDurationS
	if durS <= 0 {
		durS = 300
	}
	cursor := m.fillerCursor(channelID)
	filled, next, err := traffic.Fill([]model.Segment{{
		SegmentIndex:      0,
		SegmentType:       model.SegmentFiller,
		SegmentDurationMS: durS * 1000,
	}}, m.Filler, cursor)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("horizon: fence fill: %w", err)
	}
	m.setFillerCursor(channelID, next)

	rangeEnd := afterUTC.Add(time.Duration(durS) * time.Second)
	return []model.ExecutionEntry{{
		TransmissionLogEntry: model.TransmissionLogEntry{
			BlockID:    fmt.Sprintf("%s-fence-%d", channelID, afterUTC.UnixMilli()),
			BlockIndex: -1,
			StartUTCMs: afterUTC.UnixMilli(),
			EndUTCMs:   rangeEnd.UnixMilli(),
			Segments:   filled,
		},
		ChannelID: channelID,
	}}, rangeEnd, nil
}

func blockID(channelID string, b model.ProgramBlock, index int) string {
	return fmt.Sprintf("%s-%d-%s", channelID, b.StartAtUTC.UnixMilli(), b.AssetID)
}

func (m *Manager) fillerCursor(channelID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursors == nil {
		return 0
	}
	return m.cursors[channelID]
}

func (m *Manager) setFillerCursor(channelID string, cursor int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursors == nil {
		m.cursors = make(map[string]int64)
	}
	m.cursors[channelID] = cursor
}

func (m *Manager) recordAttempt(channelID string, at time.Time, outcome AttemptOutcome, detail string) {
	metrics.RecordHorizonEvaluation(channelID, string(outcome))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, Attempt{ChannelID: channelID, AtUTC: at, Outcome: outcome, Detail: detail})
	if len(m.attempts) > 1000 {
		m.attempts = m.attempts[len(m.attempts)-1000:]
	}
}

// ExtensionAttemptLog returns a copy of every recorded Attempt, oldest first.
func (m *Manager) ExtensionAttemptLog() []Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Attempt, len(m.attempts))
	copy(out, m.attempts)
	return out
}

// Run drives EvaluateOnce for every configured channel on EvalInterval until
// ctx is cancelled. Each tick's channels are evaluated concurrently via
// errgroup so one channel's slow BlockSource call never delays another
// channel's extension.
func (m *Manager) Run(ctx context.Context) error {
	if m.EvalInterval <= 0 {
		m.EvalInterval = 10 * time.Second
	}
	logger := log.WithComponent("horizon")
	ticker := time.NewTicker(m.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g, gctx := errgroup.WithContext(ctx)
			for _, ch := range m.Channels {
				ch := ch
				g.Go(func() error {
					if err := m.EvaluateOnce(gctx, ch); err != nil {
						logger.Error().Err(err).Str("channel_id", ch).Msg("horizon evaluation failed")
					}
					return nil // a single channel's failure must never cancel its siblings' evaluation
				})
			}
			_ = g.Wait()
		}
	}
}
