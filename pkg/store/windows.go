package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// WindowStore persists Window rows (§4.5).
type WindowStore struct{ db *sql.DB }

// LatestTo returns the to_ts of the most recently created window for
// systemID, or the zero time if none exists yet.
func (s *WindowStore) LatestTo(ctx context.Context, systemID string) (time.Time, error) {
	var to sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(to_ts) FROM windows WHERE system_id = $1`, systemID).Scan(&to)
	if err != nil {
		return time.Time{}, errs.Wrap(errs.ErrTransientIO, "latest window", err)
	}
	return to.Time, nil
}

// Exists reports whether a window with this exact (system_id, from, to)
// already exists.
func (s *WindowStore) Exists(ctx context.Context, systemID string, from, to time.Time) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM windows WHERE system_id = $1 AND from_ts = $2 AND to_ts = $3`,
		systemID, from, to).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.ErrTransientIO, "check window existence", err)
	}
	return true, nil
}

// EarliestEventTime returns the timestamp of the earliest not-yet-windowed
// event for systemID, used to decide where to start creating windows.
func (s *EventStore) EarliestEventTime(ctx context.Context, systemID string, after time.Time) (time.Time, bool, error) {
	var ts sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN("timestamp") FROM events WHERE system_id = $1 AND "timestamp" >= $2`,
		systemID, after).Scan(&ts)
	if err != nil {
		return time.Time{}, false, errs.Wrap(errs.ErrTransientIO, "earliest event time", err)
	}
	return ts.Time, ts.Valid, nil
}

// HasEventsIn reports whether systemID has at least one event in [from, to).
func (s *EventStore) HasEventsIn(ctx context.Context, systemID string, from, to time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM events WHERE system_id = $1 AND "timestamp" >= $2 AND "timestamp" < $3)`,
		systemID, from, to).Scan(&exists)
	if err != nil {
		return false, errs.Wrap(errs.ErrTransientIO, "has events in window", err)
	}
	return exists, nil
}

// Create inserts a new window with unique (system_id, from_ts, to_ts).
func (s *WindowStore) Create(ctx context.Context, w models.Window) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO windows (id, system_id, from_ts, to_ts, trigger)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (system_id, from_ts, to_ts) DO NOTHING`,
		w.ID, w.SystemID, w.FromTS, w.ToTS, w.Trigger)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "create window", err)
	}
	return nil
}

// UnanalysedWindows returns windows for systemID that do not yet have a
// meta_result row (I3: at most one meta-result per window), oldest first.
func (s *WindowStore) UnanalysedWindows(ctx context.Context, systemID string) ([]models.Window, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.system_id, w.from_ts, w.to_ts, w.trigger, w.created_at
		FROM windows w
		LEFT JOIN meta_results mr ON mr.window_id = w.id
		WHERE w.system_id = $1 AND mr.id IS NULL
		ORDER BY w.from_ts ASC`, systemID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "unanalysed windows", err)
	}
	defer rows.Close()

	var out []models.Window
	for rows.Next() {
		var w models.Window
		if err := rows.Scan(&w.ID, &w.SystemID, &w.FromTS, &w.ToTS, &w.Trigger, &w.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "scan window", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
