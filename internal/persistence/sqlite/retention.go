package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/retrovue/core/internal/retention"
)

// PlanningTarget is a retention.Target over the Tier-1 planning table: one
// row per resolved-but-not-yet-locked broadcast day, keyed by
// "channel_id|broadcast_date". Dropping a row here only discards a
// compiled candidate the Schedule Compiler can regenerate from the
// underlying programming grid — never a locked transmission log.
type PlanningTarget struct {
	DB *sql.DB
}

// NewPlanningTarget builds a PlanningTarget and ensures its backing table
// exists.
func NewPlanningTarget(db *sql.DB) (*PlanningTarget, error) {
	const ddl = `CREATE TABLE IF NOT EXISTS planning_days (
		channel_id TEXT NOT NULL,
		broadcast_date TEXT NOT NULL,
		resolved_at_utc INTEGER NOT NULL,
		PRIMARY KEY (channel_id, broadcast_date)
	)`
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("sqlite: create planning_days: %w", err)
	}
	return &PlanningTarget{DB: db}, nil
}

func (t *PlanningTarget) List(ctx context.Context) ([]retention.Candidate, error) {
	rows, err := t.DB.QueryContext(ctx, `SELECT channel_id, broadcast_date, resolved_at_utc FROM planning_days`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list planning_days: %w", err)
	}
	defer rows.Close()

	var out []retention.Candidate
	for rows.Next() {
		var channelID, broadcastDate string
		var resolvedAtMs int64
		if err := rows.Scan(&channelID, &broadcastDate, &resolvedAtMs); err != nil {
			return nil, fmt.Errorf("sqlite: scan planning_days row: %w", err)
		}
		out = append(out, retention.Candidate{
			Key:    channelID + "|" + broadcastDate,
			RefUTC: time.UnixMilli(resolvedAtMs).UTC(),
		})
	}
	return out, rows.Err()
}

func (t *PlanningTarget) Purge(ctx context.Context, key string) error {
	channelID, broadcastDate, err := splitKey(key)
	if err != nil {
		return err
	}
	_, err = t.DB.ExecContext(ctx, `DELETE FROM planning_days WHERE channel_id = ? AND broadcast_date = ?`, channelID, broadcastDate)
	if err != nil {
		return fmt.Errorf("sqlite: purge planning_days %s: %w", key, err)
	}
	return nil
}

// TransmissionLogTarget is a retention.Target over the Tier-2 row index:
// one row per locked transmission-log block, recording only enough to
// let the purger find and drop it — the log's segment detail itself
// lives in the as-run/evidence path this index merely references.
type TransmissionLogTarget struct {
	DB *sql.DB
}

// NewTransmissionLogTarget builds a TransmissionLogTarget and ensures its
// backing table exists.
func NewTransmissionLogTarget(db *sql.DB) (*TransmissionLogTarget, error) {
	const ddl = `CREATE TABLE IF NOT EXISTS transmission_log_rows (
		block_id TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL,
		locked_at_utc INTEGER NOT NULL,
		segment_backfilled INTEGER NOT NULL DEFAULT 0
	)`
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("sqlite: create transmission_log_rows: %w", err)
	}
	return &TransmissionLogTarget{DB: db}, nil
}

func (t *TransmissionLogTarget) List(ctx context.Context) ([]retention.Candidate, error) {
	rows, err := t.DB.QueryContext(ctx, `SELECT block_id, locked_at_utc, segment_backfilled FROM transmission_log_rows`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list transmission_log_rows: %w", err)
	}
	defer rows.Close()

	var out []retention.Candidate
	for rows.Next() {
		var blockID string
		var lockedAtMs int64
		var backfilled int
		if err := rows.Scan(&blockID, &lockedAtMs, &backfilled); err != nil {
			return nil, fmt.Errorf("sqlite: scan transmission_log_rows row: %w", err)
		}
		out = append(out, retention.Candidate{
			Key:               blockID,
			RefUTC:            time.UnixMilli(lockedAtMs).UTC(),
			SegmentBackfilled: backfilled != 0,
		})
	}
	return out, rows.Err()
}

func (t *TransmissionLogTarget) Purge(ctx context.Context, key string) error {
	_, err := t.DB.ExecContext(ctx, `DELETE FROM transmission_log_rows WHERE block_id = ?`, key)
	if err != nil {
		return fmt.Errorf("sqlite: purge transmission_log_rows %s: %w", key, err)
	}
	return nil
}

// Backfill marks key's segment detail as hydrated, satisfying
// retention.SlowPathBackfiller for rows inserted before their segments
// were known.
func (t *TransmissionLogTarget) Backfill(ctx context.Context, key string) error {
	_, err := t.DB.ExecContext(ctx, `UPDATE transmission_log_rows SET segment_backfilled = 1 WHERE block_id = ?`, key)
	if err != nil {
		return fmt.Errorf("sqlite: backfill transmission_log_rows %s: %w", key, err)
	}
	return nil
}

func splitKey(key string) (channelID, broadcastDate string, err error) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			return key[:i], key[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("sqlite: malformed planning key %q", key)
}
