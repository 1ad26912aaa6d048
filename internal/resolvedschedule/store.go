// Package resolvedschedule holds the Resolved Schedule Store: the
// per-channel, per-broadcast-date model.ResolvedScheduleDay produced by the
// Schedule Compiler, keyed so the Horizon Manager and operator tooling can
// look a day up without recompiling it. Operator overrides persist their
// model.OverrideRecord through overrides.Store before the resolved day is
// replaced, mirroring the Execution Window Store's record-first discipline.
package resolvedschedule

import (
	"context"
	"sync"

	"github.com/retrovue/core/internal/model"
	"github.com/retrovue/core/internal/overrides"
)

type key struct {
	channelID string
	date      string
}

// Store is a concurrency-safe map of (channelID, broadcastDate) ->
// model.ResolvedScheduleDay.
type Store struct {
	mu        sync.RWMutex
	days      map[key]model.ResolvedScheduleDay
	overrides *overrides.Store
}

// New builds a Store. overrideStore receives a record before every
// OperatorOverride call is allowed to take effect.
func New(overrideStore *overrides.Store) *Store {
	return &Store{days: make(map[key]model.ResolvedScheduleDay), overrides: overrideStore}
}

// Store replaces the resolved day for (day.ChannelID, day.ProgrammingDayDate).
// This is the Schedule Compiler's normal, non-override write path.
func (s *Store) Store(day model.ResolvedScheduleDay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[key{day.ChannelID, day.ProgrammingDayDate}] = day
}

// Get returns the resolved day for (channelID, date), if present.
func (s *Store) Get(channelID, date string) (model.ResolvedScheduleDay, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.days[key{channelID, date}]
	return d, ok
}

// OperatorOverride persists reason/summary as an override record for
// (channelID, date), then — only if that record durably persisted —
// replaces the resolved day with day and marks it IsManualOverride.
func (s *Store) OperatorOverride(ctx context.Context, channelID, date, reasonCode, payloadSummary string, day model.ResolvedScheduleDay) error {
	_, err := s.overrides.Persist(ctx, model.OverrideRecord{
		Layer:          model.LayerScheduleDay,
		TargetID:       channelID + ":" + date,
		ReasonCode:     reasonCode,
		PayloadSummary: payloadSummary,
	})
	if err != nil {
		return err
	}

	day.ChannelID = channelID
	day.ProgrammingDayDate = date
	day.IsManualOverride = true

	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[key{channelID, date}] = day
	return nil
}
