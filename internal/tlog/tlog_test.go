package tlog

import (
	"errors"
	"testing"
	"time"

	"github.com/retrovue/core/internal/model"
	"github.com/retrovue/core/internal/reasonerror"
)

func gridEntry(i int, gridMs int64) model.TransmissionLogEntry {
	return model.TransmissionLogEntry{
		BlockID:    "b",
		BlockIndex: i,
		StartUTCMs: int64(i) * gridMs,
		EndUTCMs:   int64(i+1) * gridMs,
	}
}

func TestAssembleThenLockForExecutionHappyPath(t *testing.T) {
	start := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	grid := 30 * time.Minute
	blocks := []BlockInput{
		{BlockID: "b1", Block: model.ProgramBlock{StartAtUTC: start, SlotDurationSec: int64(grid / time.Second)}},
		{BlockID: "b2", Block: model.ProgramBlock{StartAtUTC: start.Add(grid), SlotDurationSec: int64(grid / time.Second)}},
	}

	log := Assemble("CH1", "2026-07-31", 30, blocks)
	if log.IsLocked {
		t.Fatal("Assemble must return an unlocked log")
	}

	now := start.Add(time.Hour)
	locked, err := LockForExecution(log, now)
	if err != nil {
		t.Fatalf("LockForExecution: %v", err)
	}
	if !locked.IsLocked {
		t.Fatal("expected locked=true")
	}
	if !locked.LockedUTC.Equal(now.UTC()) {
		t.Fatalf("expected LockedUTC %s, got %s", now, locked.LockedUTC)
	}
	if len(locked.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(locked.Entries))
	}

	// LockForExecution must not mutate the input log's entries slice.
	log.Entries[0].BlockID = "mutated"
	if locked.Entries[0].BlockID == "mutated" {
		t.Fatal("LockForExecution shared the backing array with its input")
	}
}

func TestValidateSeamsRequiresGridBlockMinutes(t *testing.T) {
	log := model.TransmissionLog{GridBlockMinutes: 0}
	err := ValidateSeams(log)
	if err == nil {
		t.Fatal("expected error for missing grid_block_minutes")
	}
	var se *SeamError
	if !errors.As(err, &se) || se.Invariant != reasonerror.RGridViolation {
		t.Fatalf("expected RGridViolation, got %v", err)
	}
}

func TestValidateSeamsSeamNonZero(t *testing.T) {
	gridMs := int64(30 * 60 * 1000)
	log := model.TransmissionLog{
		GridBlockMinutes: 30,
		Entries: []model.TransmissionLogEntry{
			{BlockID: "b1", StartUTCMs: gridMs, EndUTCMs: gridMs}, // end == start
		},
	}
	err := ValidateSeams(log)
	var se *SeamError
	if !errors.As(err, &se) || se.Invariant != reasonerror.RSeamNonZero {
		t.Fatalf("expected RSeamNonZero, got %v", err)
	}
}

func TestValidateSeamsSeamGridDuration(t *testing.T) {
	gridMs := int64(30 * 60 * 1000)
	log := model.TransmissionLog{
		GridBlockMinutes: 30,
		Entries: []model.TransmissionLogEntry{
			{BlockID: "b1", StartUTCMs: 0, EndUTCMs: gridMs / 2}, // half the grid
		},
	}
	err := ValidateSeams(log)
	var se *SeamError
	if !errors.As(err, &se) || se.Invariant != reasonerror.RSeamGridDuration {
		t.Fatalf("expected RSeamGridDuration, got %v", err)
	}
}

func TestValidateSeamsSeamMonotonic(t *testing.T) {
	gridMs := int64(30 * 60 * 1000)
	log := model.TransmissionLog{
		GridBlockMinutes: 30,
		Entries: []model.TransmissionLogEntry{
			gridEntry(1, gridMs),
			gridEntry(0, gridMs), // goes backwards
		},
	}
	err := ValidateSeams(log)
	var se *SeamError
	if !errors.As(err, &se) || se.Invariant != reasonerror.RSeamMonotonic {
		t.Fatalf("expected RSeamMonotonic, got %v", err)
	}
}

func TestValidateSeamsSeamContiguity(t *testing.T) {
	gridMs := int64(30 * 60 * 1000)
	log := model.TransmissionLog{
		GridBlockMinutes: 30,
		Entries: []model.TransmissionLogEntry{
			{BlockID: "b1", StartUTCMs: 0, EndUTCMs: gridMs},
			{BlockID: "b2", StartUTCMs: gridMs + 1000, EndUTCMs: 2*gridMs + 1000}, // 1s gap
		},
	}
	err := ValidateSeams(log)
	var se *SeamError
	if !errors.As(err, &se) || se.Invariant != reasonerror.RSeamContiguity {
		t.Fatalf("expected RSeamContiguity, got %v", err)
	}
}

func TestValidateSeamsAcceptsContiguousGrid(t *testing.T) {
	gridMs := int64(30 * 60 * 1000)
	log := model.TransmissionLog{
		GridBlockMinutes: 30,
		Entries: []model.TransmissionLogEntry{
			gridEntry(0, gridMs),
			gridEntry(1, gridMs),
			gridEntry(2, gridMs),
		},
	}
	if err := ValidateSeams(log); err != nil {
		t.Fatalf("expected no seam violation, got %v", err)
	}
}

func TestLockForExecutionRejectsInvalidSeams(t *testing.T) {
	log := model.TransmissionLog{GridBlockMinutes: 30} // no entries is fine, but force a violation via bad grid
	log.GridBlockMinutes = 0
	if _, err := LockForExecution(log, time.Now()); err == nil {
		t.Fatal("expected LockForExecution to propagate seam validation failure")
	}
}
