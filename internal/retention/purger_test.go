package retention

import (
	"context"
	"testing"
	"time"

	"github.com/retrovue/core/internal/clock"
)

type memTarget struct {
	items   map[string]Candidate
	purged  []string
}

func newMemTarget() *memTarget { return &memTarget{items: make(map[string]Candidate)} }

func (m *memTarget) List(ctx context.Context) ([]Candidate, error) {
	var out []Candidate
	for _, c := range m.items {
		out = append(out, c)
	}
	return out, nil
}

func (m *memTarget) Purge(ctx context.Context, key string) error {
	delete(m.items, key)
	m.purged = append(m.purged, key)
	return nil
}

func TestSweepOncePurgesOnlyPastMaxAge(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	mc := clock.NewManual(now)

	tier1 := newMemTarget()
	tier1.items["old"] = Candidate{Key: "old", RefUTC: now.Add(-48 * time.Hour)}
	tier1.items["new"] = Candidate{Key: "new", RefUTC: now.Add(-1 * time.Hour)}

	p := NewPurger(mc, 1000) // effectively unthrottled for the test
	p.Tier1 = tier1
	p.Tier1MaxAge = 24 * time.Hour

	n, err := p.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purge, got %d", n)
	}
	if _, ok := tier1.items["old"]; ok {
		t.Fatal("expected 'old' to be purged")
	}
	if _, ok := tier1.items["new"]; !ok {
		t.Fatal("expected 'new' to survive")
	}
}

type countingBackfiller struct{ calls int }

func (b *countingBackfiller) Backfill(ctx context.Context, key string) error {
	b.calls++
	return nil
}

func TestSweepOnceBackfillsTier2BeforePurge(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	mc := clock.NewManual(now)

	tier2 := newMemTarget()
	tier2.items["old"] = Candidate{Key: "old", RefUTC: now.Add(-100 * time.Hour), SegmentBackfilled: false}

	bf := &countingBackfiller{}
	p := NewPurger(mc, 1000)
	p.Tier2 = tier2
	p.Tier2MaxAge = 72 * time.Hour
	p.BackfillTier2 = bf

	if _, err := p.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if bf.calls != 1 {
		t.Fatalf("expected backfill to run once, got %d", bf.calls)
	}
	if _, ok := tier2.items["old"]; ok {
		t.Fatal("expected item to be purged after backfill")
	}
}

func TestSweepOnceThrottled(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	mc := clock.NewManual(now)

	tier1 := newMemTarget()
	tier1.items["old"] = Candidate{Key: "old", RefUTC: now.Add(-48 * time.Hour)}

	p := NewPurger(mc, 1) // one token available up front, burst 1
	p.Tier1 = tier1
	p.Tier1MaxAge = 24 * time.Hour

	if _, err := p.SweepOnce(context.Background()); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	n, err := p.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected the immediately-following sweep to be throttled to 0, got %d", n)
	}
}
