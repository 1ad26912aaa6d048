// Package retention runs the two-tier retention purge: Tier-1 drops
// planning artifacts (resolved schedule days, compiled-but-unlocked
// candidates) once their reference instant (Candidate.RefUTC) is at least
// Tier1MaxAge old. The broadcast date itself is not consulted; the SQLite
// planning target reports the time a day was resolved as its reference
// instant. Tier-2 drops
// transmission artifacts (locked logs, as-run evidence) once they are older
// than a longer, separately configured horizon. Both tiers are driven by an
// hourly rate limiter so a backlog after an outage doesn't thrash storage.
package retention

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/retrovue/core/internal/clock"
	"github.com/retrovue/core/internal/log"
	"github.com/retrovue/core/internal/metrics"
)

// Target is anything the purger can sweep — a planning store or a
// transmission artifact store. List returns candidate keys with their
// reference instant (the instant retention age is measured from); Purge
// removes one by key.
type Target interface {
	List(ctx context.Context) ([]Candidate, error)
	Purge(ctx context.Context, key string) error
}

// Candidate is one purgeable item.
type Candidate struct {
	Key               string
	RefUTC            time.Time
	SegmentBackfilled bool // Tier-2 only: whether its segments were ever hydrated from the slow path
}

// SlowPathBackfiller hydrates a Tier-2 candidate's segments before purge
// consideration, for items whose segment detail was never populated inline
// (e.g. a log assembled from a resolved day that hadn't been backfilled
// yet). Optional: a Purger with BackfillTier2 == nil skips this step.
type SlowPathBackfiller interface {
	Backfill(ctx context.Context, key string) error
}

// Purger runs the hourly-throttled sweep for one (Tier-1, Tier-2) pair.
type Purger struct {
	Clock clock.Clock

	Tier1         Target
	Tier1MaxAge   time.Duration
	Tier2         Target
	Tier2MaxAge   time.Duration
	BackfillTier2 SlowPathBackfiller

	limiter *rate.Limiter
	sf      singleflight.Group
}

// NewPurger builds a Purger whose sweeps are throttled to at most
// perHourLimit runs per hour (a burst of 1 — sweeps never pile up).
func NewPurger(c clock.Clock, perHourLimit float64) *Purger {
	if perHourLimit <= 0 {
		perHourLimit = 1
	}
	return &Purger{Clock: c, limiter: rate.NewLimiter(rate.Limit(perHourLimit/3600.0), 1)}
}

// SweepOnce runs a single throttled pass over both tiers. It returns
// immediately with no work done if the rate limiter has no tokens
// available — callers are expected to call this from a ticking loop, not a
// tight one. Concurrent callers (the ticking Run loop racing an admin-
// triggered sweep) collapse onto a single in-flight pass via singleflight;
// the late arrivals get that pass's result instead of sweeping twice.
func (p *Purger) SweepOnce(ctx context.Context) (int, error) {
	v, err, _ := p.sf.Do("sweep", func() (any, error) {
		return p.sweepOnceLocked(ctx)
	})
	if v == nil {
		return 0, err
	}
	return v.(int), err
}

func (p *Purger) sweepOnceLocked(ctx context.Context) (purged int, err error) {
	if !p.limiter.Allow() {
		return 0, nil
	}

	logger := log.WithComponent("retention")
	now := p.Clock.Now()

	n1, err := p.sweepTier(ctx, p.Tier1, p.Tier1MaxAge, now, false)
	if err != nil {
		return purged, fmt.Errorf("retention: tier1 sweep: %w", err)
	}
	n2, err := p.sweepTier(ctx, p.Tier2, p.Tier2MaxAge, now, true)
	if err != nil {
		return purged + n1, fmt.Errorf("retention: tier2 sweep: %w", err)
	}

	metrics.RecordPurged("tier1", n1)
	metrics.RecordPurged("tier2", n2)

	total := n1 + n2
	if total > 0 {
		logger.Info().Int("tier1_purged", n1).Int("tier2_purged", n2).Msg("retention sweep complete")
	}
	return total, nil
}

func (p *Purger) sweepTier(ctx context.Context, target Target, maxAge time.Duration, now time.Time, isTier2 bool) (int, error) {
	if target == nil || maxAge <= 0 {
		return 0, nil
	}

	candidates, err := target.List(ctx)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, c := range candidates {
		if now.Sub(c.RefUTC) < maxAge {
			continue
		}

		if isTier2 && !c.SegmentBackfilled && p.BackfillTier2 != nil {
			if err := p.BackfillTier2.Backfill(ctx, c.Key); err != nil {
				log.WithComponent("retention").Warn().Err(err).Str("key", c.Key).Msg("slow-path backfill before purge failed; skipping this cycle")
				continue
			}
		}

		if err := target.Purge(ctx, c.Key); err != nil {
			return purged, fmt.Errorf("purge %q: %w", c.Key, err)
		}
		purged++
	}
	return purged, nil
}

// Run ticks SweepOnce every interval until ctx is cancelled.
func (p *Purger) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	logger := log.WithComponent("retention")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.SweepOnce(ctx); err != nil {
				logger.Error().Err(err).Msg("retention sweep failed")
			}
		}
	}
}
