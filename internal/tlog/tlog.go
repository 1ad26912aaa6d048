// Package tlog assembles block/segment lists into a TransmissionLog and
// enforces the seam invariants (SEAM-001..004) at lock time.
package tlog

import (
	"fmt"
	"time"

	"github.com/retrovue/core/internal/model"
	"github.com/retrovue/core/internal/reasonerror"
)

// BlockInput pairs a compiled block with its expanded, filled segments.
type BlockInput struct {
	BlockID  string
	Block    model.ProgramBlock
	Segments []model.Segment
}

// Assemble concatenates block segment lists into ordered TransmissionLog
// entries and stamps metadata. The result is unlocked.
func Assemble(channelID, broadcastDate string, gridMinutes int, blocks []BlockInput) model.TransmissionLog {
	entries := make([]model.TransmissionLogEntry, 0, len(blocks))
	for i, b := range blocks {
		entries = append(entries, model.TransmissionLogEntry{
			BlockID:    b.BlockID,
			BlockIndex: i,
			StartUTCMs: b.Block.StartAtUTC.UnixMilli(),
			EndUTCMs:   b.Block.EndAt().UnixMilli(),
			Segments:   b.Segments,
		})
	}
	return model.TransmissionLog{
		ChannelID:        channelID,
		BroadcastDate:    broadcastDate,
		Entries:          entries,
		GridBlockMinutes: gridMinutes,
	}
}

// SeamError is raised when a locked log violates one of the four seam
// invariants.
type SeamError struct {
	Invariant reasonerror.ReasonCode
	Detail    string
}

func (e *SeamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Invariant, e.Detail)
}

func (e *SeamError) Unwrap() error {
	return reasonerror.Wrap(e.Invariant, e.Detail, nil)
}

// ValidateSeams checks SEAM-001..004 against log's current entries.
func ValidateSeams(log model.TransmissionLog) error {
	if log.GridBlockMinutes <= 0 {
		return &SeamError{Invariant: reasonerror.RGridViolation, Detail: "grid_block_minutes is required"}
	}
	gridMs := int64(log.GridBlockMinutes) * 60 * 1000

	for i, e := range log.Entries {
		if e.EndUTCMs <= e.StartUTCMs {
			return &SeamError{Invariant: reasonerror.RSeamNonZero, Detail: fmt.Sprintf("entry %d: end <= start", i)}
		}
		if e.EndUTCMs-e.StartUTCMs != gridMs {
			return &SeamError{Invariant: reasonerror.RSeamGridDuration, Detail: fmt.Sprintf("entry %d: span %dms != grid %dms", i, e.EndUTCMs-e.StartUTCMs, gridMs)}
		}
		if i > 0 {
			prev := log.Entries[i-1]
			if e.StartUTCMs <= prev.StartUTCMs {
				return &SeamError{Invariant: reasonerror.RSeamMonotonic, Detail: fmt.Sprintf("entry %d: start not strictly increasing", i)}
			}
			if prev.EndUTCMs != e.StartUTCMs {
				return &SeamError{Invariant: reasonerror.RSeamContiguity, Detail: fmt.Sprintf("entry %d: prev end %d != this start %d", i, prev.EndUTCMs, e.StartUTCMs)}
			}
		}
	}
	return nil
}

// LockForExecution validates seams and returns a locked copy stamped with
// now. It never mutates log in place.
func LockForExecution(log model.TransmissionLog, now time.Time) (model.TransmissionLog, error) {
	if err := ValidateSeams(log); err != nil {
		return model.TransmissionLog{}, err
	}
	out := log
	out.Entries = append([]model.TransmissionLogEntry(nil), log.Entries...)
	out.IsLocked = true
	out.LockedUTC = now.UTC()
	return out, nil
}
