package overrides

import (
	"context"
	"testing"

	"github.com/retrovue/core/internal/model"
)

func TestPersistAssignsIDAndIsListable(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	id, err := s.Persist(ctx, model.OverrideRecord{
		Layer:      model.LayerExecutionWindowStore,
		TargetID:   "CH1",
		ReasonCode: "operator_manual_swap",
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty record id")
	}

	recs := s.ListForTarget("CH1")
	if len(recs) != 1 {
		t.Fatalf("expected 1 record for CH1, got %d", len(recs))
	}
	if recs[0].ReasonCode != "operator_manual_swap" {
		t.Fatalf("unexpected reason code: %s", recs[0].ReasonCode)
	}
}

func TestPersistFailureLeavesNoRecord(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	s.SetFailNextForTest(true)

	_, err := s.Persist(ctx, model.OverrideRecord{TargetID: "CH1"})
	if err == nil {
		t.Fatal("expected simulated persist failure")
	}
	if s.Count() != 0 {
		t.Fatalf("expected no durable record after failure, got %d", s.Count())
	}

	// The store recovers for the next call.
	if _, err := s.Persist(ctx, model.OverrideRecord{TargetID: "CH1"}); err != nil {
		t.Fatalf("expected subsequent persist to succeed: %v", err)
	}
	if s.Count() != 1 {
		t.Fatalf("expected 1 record, got %d", s.Count())
	}
}
