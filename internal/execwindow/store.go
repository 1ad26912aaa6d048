// Package execwindow holds the Execution Window Store (C7): the
// concurrent, in-memory sorted structure of model.ExecutionEntry the
// Horizon Manager publishes for a channel and the playout path reads
// from. A publish replaces only the sub-range it targets
// ([range_start, range_end)), not the whole window, and a publish that
// touches the locked window (the next locked_window_ms from "now") is
// refused unless it carries an operator override
// (INV-HORIZON-LOCKED-IMMUTABLE-001).
package execwindow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/retrovue/core/internal/clock"
	"github.com/retrovue/core/internal/metrics"
	"github.com/retrovue/core/internal/model"
	"github.com/retrovue/core/internal/overrides"
	"github.com/retrovue/core/internal/reasonerror"
)

// Store is a per-channel sorted window of model.ExecutionEntry. It is
// safe for concurrent use: all mutating operations serialize on a
// single lock, and readers get a consistent snapshot. When db is
// non-nil, every mutation is mirrored durably so a restart can Restore
// the last published state; db may be nil for a purely in-memory store
// (e.g. tests).
type Store struct {
	mu           sync.RWMutex
	db           *badger.DB
	clk          clock.Clock
	overrides    *overrides.Store
	lockedWindow time.Duration

	entries map[string][]model.ExecutionEntry // channelID -> sorted by StartUTCMs
}

// New builds a Store. clk drives "now" for the locked-window boundary
// check; lockedWindow is locked_window_ms from configuration.
// overrideStore is the C8 Override Record Store a publish with
// operatorOverride=true must durably record into before it is allowed
// to mutate the window (OVERRIDE-RECORD-PRECEDES-ARTIFACT). db may be
// nil to skip durable mirroring.
func New(db *badger.DB, clk clock.Clock, overrideStore *overrides.Store, lockedWindow time.Duration) *Store {
	return &Store{
		db:           db,
		clk:          clk,
		overrides:    overrideStore,
		lockedWindow: lockedWindow,
		entries:      make(map[string][]model.ExecutionEntry),
	}
}

// PublishResult reports the outcome of a PublishAtomicReplace call.
type PublishResult struct {
	OK                    bool
	PublishedGenerationID int64
	Reason                reasonerror.ReasonCode
}

// PublishAtomicReplace implements the execution-window publish
// algorithm:
//
//  1. Compute locked_end = now + locked_window_ms.
//  2. If !operatorOverride and rangeStart < locked_end, refuse with
//     INV-HORIZON-LOCKED-IMMUTABLE-001-VIOLATED; no mutation.
//  3. If operatorOverride, durably persist an OverrideRecord via the
//     Override Record Store first. If that persist fails, refuse with
//     OVERRIDE_RECORD_PERSIST_FAILED; no mutation.
//  4. Remove every entry fully contained in [rangeStart, rangeEnd),
//     insert newEntries stamped with generationID, keep the channel's
//     sequence sorted.
//  5. Return ok=true, published_generation_id=generationID.
func (s *Store) PublishAtomicReplace(
	ctx context.Context,
	channelID string,
	rangeStart, rangeEnd time.Time,
	newEntries []model.ExecutionEntry,
	generationID int64,
	reasonCode string,
	operatorOverride bool,
) (PublishResult, error) {
	lockedEnd := s.clk.Now().Add(s.lockedWindow)

	if !operatorOverride && rangeStart.Before(lockedEnd) {
		metrics.RecordPublish(channelID, "locked_violation")
		return PublishResult{OK: false, Reason: reasonerror.RLockedWindowViolated},
			reasonerror.New(reasonerror.RLockedWindowViolated, fmt.Sprintf(
				"channel %s: range_start %s precedes locked_end %s without operator_override",
				channelID, rangeStart.Format(time.RFC3339), lockedEnd.Format(time.RFC3339)))
	}

	if operatorOverride {
		rec := model.OverrideRecord{
			Layer:        model.LayerExecutionWindowStore,
			TargetID:     channelID,
			ReasonCode:   reasonCode,
			CreatedUTCMs: s.clk.NowUTCMilli(),
			PayloadSummary: fmt.Sprintf("publish_atomic_replace [%s,%s) generation=%d",
				rangeStart.Format(time.RFC3339), rangeEnd.Format(time.RFC3339), generationID),
		}
		if _, err := s.overrides.Persist(ctx, rec); err != nil {
			metrics.RecordPublish(channelID, "override_failed")
			return PublishResult{OK: false, Reason: reasonerror.ROverrideRecordFailed},
				reasonerror.Wrap(reasonerror.ROverrideRecordFailed,
					"execwindow: override record persist failed; window left unchanged", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	startMs, endMs := rangeStart.UnixMilli(), rangeEnd.UnixMilli()

	stamped := append([]model.ExecutionEntry(nil), newEntries...)
	for i := range stamped {
		stamped[i].ChannelID = channelID
		stamped[i].GenerationID = generationID
	}

	kept := make([]model.ExecutionEntry, 0, len(s.entries[channelID])+len(stamped))
	for _, e := range s.entries[channelID] {
		if e.StartUTCMs >= startMs && e.EndUTCMs <= endMs {
			continue // fully contained in [range_start, range_end): removed
		}
		kept = append(kept, e)
	}
	kept = append(kept, stamped...)
	sort.Slice(kept, func(i, j int) bool { return kept[i].StartUTCMs < kept[j].StartUTCMs })

	if s.db != nil {
		if err := s.persist(channelID, kept); err != nil {
			return PublishResult{OK: false}, fmt.Errorf("execwindow: persist channel %s: %w", channelID, err)
		}
	}

	s.entries[channelID] = kept
	metrics.RecordPublish(channelID, "ok")
	metrics.SetPublishedGeneration(channelID, generationID)
	return PublishResult{OK: true, PublishedGenerationID: generationID}, nil
}

// AddEntries seeds entries for channelID with generationID and performs
// no locked-window or override check at all — it exists only for
// initial hydration (e.g. pre-populating a channel before the Horizon
// Manager has ever evaluated it), not for the ongoing extension path,
// which must go through PublishAtomicReplace.
func (s *Store) AddEntries(channelID string, generationID int64, entries []model.ExecutionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamped := append([]model.ExecutionEntry(nil), entries...)
	for i := range stamped {
		stamped[i].ChannelID = channelID
		stamped[i].GenerationID = generationID
	}
	merged := append(append([]model.ExecutionEntry(nil), s.entries[channelID]...), stamped...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].StartUTCMs < merged[j].StartUTCMs })

	if s.db != nil {
		if err := s.persist(channelID, merged); err != nil {
			return fmt.Errorf("execwindow: persist channel %s: %w", channelID, err)
		}
	}
	s.entries[channelID] = merged
	return nil
}

// ReadWindowSnapshot returns the entries overlapping [start, end) and
// the generation id, the max GenerationID among the returned entries
// (0 if none are returned).
func (s *Store) ReadWindowSnapshot(channelID string, start, end time.Time) ([]model.ExecutionEntry, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	startMs, endMs := start.UnixMilli(), end.UnixMilli()
	var out []model.ExecutionEntry
	var maxGen int64
	for _, e := range s.entries[channelID] {
		if e.EndUTCMs <= startMs || e.StartUTCMs >= endMs {
			continue
		}
		out = append(out, e)
		if e.GenerationID > maxGen {
			maxGen = e.GenerationID
		}
	}
	return out, maxGen
}

// GetEntryAt returns the entry whose [start, end) contains atUTC, or
// false. lockedOnly additionally requires atUTC to fall strictly
// before now+locked_window_ms — i.e. the returned entry must itself
// sit in the locked window.
func (s *Store) GetEntryAt(channelID string, atUTC time.Time, lockedOnly bool) (model.ExecutionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries[channelID]
	atMs := atUTC.UnixMilli()
	i := sort.Search(len(entries), func(i int) bool { return entries[i].EndUTCMs > atMs })
	if i == len(entries) || entries[i].StartUTCMs > atMs {
		return model.ExecutionEntry{}, false
	}
	if lockedOnly && !atUTC.Before(s.clk.Now().Add(s.lockedWindow)) {
		return model.ExecutionEntry{}, false
	}
	return entries[i], true
}

func (s *Store) persist(channelID string, entries []model.ExecutionEntry) error {
	buf, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	key := []byte("execwin:" + channelID)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}

// Restore loads channelID's last persisted window from db, making it
// available via ReadWindowSnapshot/GetEntryAt. Used at startup.
func (s *Store) Restore(channelID string) error {
	if s.db == nil {
		return fmt.Errorf("execwindow: no durable backing configured")
	}
	key := []byte("execwin:" + channelID)
	var entries []model.ExecutionEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entries)
		})
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[channelID] = entries
	return nil
}
