package resolvedschedule

import (
	"context"
	"testing"

	"github.com/retrovue/core/internal/model"
	"github.com/retrovue/core/internal/overrides"
)

func TestStoreAndGet(t *testing.T) {
	s := New(overrides.New(nil))
	day := model.ResolvedScheduleDay{ChannelID: "CH1", ProgrammingDayDate: "2026-07-31"}

	s.Store(day)

	got, ok := s.Get("CH1", "2026-07-31")
	if !ok {
		t.Fatal("expected day to be present")
	}
	if got.IsManualOverride {
		t.Fatal("expected non-override day to not be flagged manual")
	}
}

func TestOperatorOverrideRequiresDurableRecord(t *testing.T) {
	ov := overrides.New(nil)
	s := New(ov)
	ctx := context.Background()

	ov.SetFailNextForTest(true)
	err := s.OperatorOverride(ctx, "CH1", "2026-07-31", "manual_swap", "swapped block", model.ResolvedScheduleDay{})
	if err == nil {
		t.Fatal("expected override to fail when the record cannot persist")
	}
	if _, ok := s.Get("CH1", "2026-07-31"); ok {
		t.Fatal("expected no resolved day to exist after a failed override")
	}

	if err := s.OperatorOverride(ctx, "CH1", "2026-07-31", "manual_swap", "swapped block", model.ResolvedScheduleDay{}); err != nil {
		t.Fatalf("expected override to succeed: %v", err)
	}
	got, ok := s.Get("CH1", "2026-07-31")
	if !ok || !got.IsManualOverride {
		t.Fatalf("expected a manual-override day, got %+v ok=%v", got, ok)
	}
	if len(ov.ListForTarget("CH1:2026-07-31")) != 1 {
		t.Fatalf("expected exactly one override record for the target")
	}
}
