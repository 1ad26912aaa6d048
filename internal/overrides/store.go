// Package overrides holds the append-only Override Record Store. Every
// manual intervention across the Schedule Day and Execution Window layers
// must durably persist its OverrideRecord before the corresponding artifact
// mutation is allowed to take effect — the record always precedes the
// effect, never the other way round.
package overrides

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/retrovue/core/internal/model"
	"github.com/retrovue/core/internal/reasonerror"
)

// Store is an append-only, durable log of model.OverrideRecord. When db is
// nil it behaves as an in-memory store suitable for tests.
type Store struct {
	mu  sync.Mutex
	db  *badger.DB
	mem []storedRecord

	// failNext, when true, makes the next Persist call fail as if the
	// durable write failed, without touching db. Exists so callers can
	// exercise the override-precedes-artifact invariant in tests.
	failNext bool
}

type storedRecord struct {
	ID     string
	Record model.OverrideRecord
}

// New builds a Store. db may be nil for an in-memory-only store.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// SetFailNextForTest arranges for the next Persist call to fail, simulating
// a durable-write failure so callers can verify they refuse to apply the
// corresponding artifact mutation.
func (s *Store) SetFailNextForTest(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = fail
}

// Persist durably appends rec and returns its assigned record id. No
// override-driven artifact mutation may be treated as durable until this
// call returns without error (ROverrideRecordFailed otherwise).
func (s *Store) Persist(ctx context.Context, rec model.OverrideRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext {
		s.failNext = false
		return "", reasonerror.New(reasonerror.ROverrideRecordFailed, "simulated persist failure")
	}

	id := uuid.NewString()
	sr := storedRecord{ID: id, Record: rec}

	if s.db != nil {
		buf, err := json.Marshal(sr)
		if err != nil {
			return "", reasonerror.Wrap(reasonerror.ROverrideRecordFailed, "marshal", err)
		}
		key := []byte("override:" + id)
		if err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, buf)
		}); err != nil {
			return "", reasonerror.Wrap(reasonerror.ROverrideRecordFailed, "durable write", err)
		}
	}

	s.mem = append(s.mem, sr)
	return id, nil
}

// ListForTarget returns every record for targetID in persist order.
func (s *Store) ListForTarget(targetID string) []model.OverrideRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.OverrideRecord
	for _, sr := range s.mem {
		if sr.Record.TargetID == targetID {
			out = append(out, sr.Record)
		}
	}
	return out
}

// Count returns the total number of persisted records, for tests and
// diagnostics.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mem)
}
