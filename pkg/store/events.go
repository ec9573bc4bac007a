package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// EventStore persists Event rows.
type EventStore struct{ db *sql.DB }

// Insert writes a batch of normalised events with
// ON CONFLICT (normalized_hash, timestamp) DO NOTHING (§4.2 dedup at
// write time). Returns the number of rows actually inserted.
func (s *EventStore) Insert(ctx context.Context, events []models.Event) (inserted int, err error) {
	if len(events) == 0 {
		return 0, nil
	}
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO events (id, system_id, log_source_id, "timestamp", received_at,
				message, severity, host, source_ip, service, facility, program,
				trace_id, span_id, external_id, raw, normalized_hash)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			ON CONFLICT (normalized_hash, "timestamp") DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range events {
			rawJSON, merr := json.Marshal(e.Raw)
			if merr != nil {
				return merr
			}
			res, execErr := stmt.ExecContext(ctx, e.ID, e.SystemID, nullIfEmpty(e.LogSourceID),
				e.Timestamp, e.ReceivedAt, e.Message, e.Severity, e.Host, e.SourceIP,
				e.Service, e.Facility, e.Program, e.TraceID, e.SpanID, e.ExternalID,
				rawJSON, e.NormalizedHash)
			if execErr != nil {
				return execErr
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, errs.Wrap(errs.ErrTransientIO, "insert events", err)
	}
	return inserted, nil
}

// FetchUnscored returns up to limit events for systemID that have not
// yet been processed by the scorer (scored_at IS NULL) and are not
// acknowledged (§4.4 step 1), ordered by timestamp for deterministic
// chunking.
func (s *EventStore) FetchUnscored(ctx context.Context, systemID string, limit int) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, system_id, log_source_id, "timestamp", received_at, message, severity,
		       host, source_ip, service, facility, program, trace_id, span_id,
		       external_id, raw, normalized_hash, acknowledged_at, scored_at, template_id
		FROM events
		WHERE system_id = $1 AND scored_at IS NULL AND acknowledged_at IS NULL
		ORDER BY "timestamp" ASC
		LIMIT $2`, systemID, limit)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "fetch unscored events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsInWindow returns up to cap events for systemID with
// timestamp in [from, to), ordered by time (§4.6 input assembly).
func (s *EventStore) EventsInWindow(ctx context.Context, systemID string, from, to time.Time, cap int) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, system_id, log_source_id, "timestamp", received_at, message, severity,
		       host, source_ip, service, facility, program, trace_id, span_id,
		       external_id, raw, normalized_hash, acknowledged_at, scored_at, template_id
		FROM events
		WHERE system_id = $1 AND "timestamp" >= $2 AND "timestamp" < $3
		ORDER BY "timestamp" ASC
		LIMIT $4`, systemID, from, to, cap)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "fetch events in window", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	var out []models.Event
	for rows.Next() {
		var e models.Event
		var logSourceID, templateID sql.NullString
		var rawJSON []byte
		if err := rows.Scan(&e.ID, &e.SystemID, &logSourceID, &e.Timestamp, &e.ReceivedAt,
			&e.Message, &e.Severity, &e.Host, &e.SourceIP, &e.Service, &e.Facility,
			&e.Program, &e.TraceID, &e.SpanID, &e.ExternalID, &rawJSON, &e.NormalizedHash,
			&e.AcknowledgedAt, &e.ScoredAt, &templateID); err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "scan event", err)
		}
		e.LogSourceID = logSourceID.String
		if templateID.Valid {
			id := templateID.String
			e.TemplateID = &id
		}
		if len(rawJSON) > 0 {
			if err := json.Unmarshal(rawJSON, &e.Raw); err != nil {
				return nil, errs.Wrap(errs.ErrInvariant, "decode event raw", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AssignTemplate stamps an event's template_id (§4.3).
func (s *EventStore) AssignTemplate(ctx context.Context, eventID, templateID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE events SET template_id = $1 WHERE id = $2`, templateID, eventID)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "assign template", err)
	}
	return nil
}

// MarkScored sets scored_at = now() for every event in ids (§4.4 step 7;
// I2: this is the sole authoritative "processed" signal).
func (s *EventStore) MarkScored(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET scored_at = $1 WHERE id = ANY($2) AND scored_at IS NULL`,
		now, ids)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "mark events scored", err)
	}
	return nil
}

// MaxScorePerCriterion returns, for every criterion id, the maximum
// event_scores.score among non-acknowledged events of systemID within
// [from, to) — used by the meta-analyser to compute max_event_score
// (§4.6 step 2, P1).
func (s *EventStore) MaxScorePerCriterion(ctx context.Context, systemID string, from, to time.Time) (map[int]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT es.criterion_id, MAX(es.score)
		FROM event_scores es
		JOIN events e ON e.id = es.event_id
		WHERE e.system_id = $1 AND e."timestamp" >= $2 AND e."timestamp" < $3
		  AND e.acknowledged_at IS NULL
		GROUP BY es.criterion_id`, systemID, from, to)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "max score per criterion", err)
	}
	defer rows.Close()

	out := make(map[int]float64)
	for rows.Next() {
		var critID int
		var max float64
		if err := rows.Scan(&critID, &max); err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "scan max score", err)
		}
		out[critID] = max
	}
	return out, rows.Err()
}

// CleanupOrphaned deletes events older than cutoff in chunks of
// chunkSize (§9: "Retention cleanup deletes events in chunks of 1000").
// Callers are expected to hold the system's partition lease (pkg/lease)
// before calling this, per the SPEC_FULL.md open-question decision.
func (s *EventStore) CleanupOrphaned(ctx context.Context, systemID string, cutoff time.Time, chunkSize int) (total int, err error) {
	for {
		res, execErr := s.db.ExecContext(ctx, `
			DELETE FROM events WHERE id IN (
				SELECT id FROM events
				WHERE system_id = $1 AND "timestamp" < $2
				LIMIT $3
			)`, systemID, cutoff, chunkSize)
		if execErr != nil {
			return total, errs.Wrap(errs.ErrTransientIO, "cleanup orphaned events", execErr)
		}
		n, _ := res.RowsAffected()
		total += int(n)
		if n < int64(chunkSize) {
			return total, nil
		}
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
