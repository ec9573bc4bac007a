package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// FindingStore persists Finding rows (§4.7 lifecycle engine).
type FindingStore struct{ db *sql.DB }

// OpenAndAcknowledged returns open and acknowledged findings for
// systemID, ordered by creation so the caller can assign the stable
// 1-based indices the meta-analyser prompt references when resolving
// findings (§4.6 step 3, §4.7).
func (s *FindingStore) OpenAndAcknowledged(ctx context.Context, systemID string) ([]models.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, system_id, status, severity, original_severity, criterion_slug, text,
		       fingerprint, occurrence_count, consecutive_misses, created_by_meta_id,
		       resolved_by_meta_id, created_at, last_seen_at, resolved_at
		FROM findings
		WHERE system_id = $1 AND status IN ('open', 'acknowledged')
		ORDER BY created_at ASC`, systemID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "list open findings", err)
	}
	defer rows.Close()
	return scanFindings(rows)
}

// CountOpen returns the number of open+acknowledged findings for
// systemID, used to enforce max_open_findings_per_system.
func (s *FindingStore) CountOpen(ctx context.Context, q Querier, systemID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM findings
		WHERE system_id = $1 AND status IN ('open', 'acknowledged')`, systemID).Scan(&n)
	if err != nil {
		return 0, errs.Wrap(errs.ErrTransientIO, "count open findings", err)
	}
	return n, nil
}

// ByFingerprint looks up a non-resolved finding by its dedup fingerprint
// (§4.7 "new findings are deduplicated against open findings by
// fingerprint").
func (s *FindingStore) ByFingerprint(ctx context.Context, q Querier, systemID, fingerprint string) (*models.Finding, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, system_id, status, severity, original_severity, criterion_slug, text,
		       fingerprint, occurrence_count, consecutive_misses, created_by_meta_id,
		       resolved_by_meta_id, created_at, last_seen_at, resolved_at
		FROM findings
		WHERE system_id = $1 AND fingerprint = $2 AND status != 'resolved'
		LIMIT 1`, systemID, fingerprint)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "lookup finding by fingerprint", err)
	}
	defer rows.Close()
	found, err := scanFindings(rows)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, errs.ErrNotFound
	}
	return &found[0], nil
}

// Create inserts a brand-new finding.
func (s *FindingStore) Create(ctx context.Context, q Querier, f models.Finding) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO findings (id, system_id, status, severity, original_severity,
			criterion_slug, text, fingerprint, occurrence_count, consecutive_misses,
			created_by_meta_id, created_at, last_seen_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		f.ID, f.SystemID, f.Status, f.Severity, f.OriginalSeverity, f.CriterionSlug,
		f.Text, f.Fingerprint, f.OccurrenceCount, f.ConsecutiveMisses,
		f.CreatedByMetaID, f.CreatedAt, f.LastSeenAt)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "create finding", err)
	}
	return nil
}

// ReoccurOrDecay bumps occurrence_count, resets consecutive_misses to 0,
// stamps last_seen_at, and applies severity decay if occurrence_count has
// crossed severity_decay_after_occurrences (§4.7 "repeated sightings
// decay severity one notch at a time").
func (s *FindingStore) ReoccurOrDecay(ctx context.Context, q Querier, id string, seenAt time.Time, newSeverity models.FindingSeverity) error {
	_, err := q.ExecContext(ctx, `
		UPDATE findings SET
			occurrence_count = occurrence_count + 1,
			consecutive_misses = 0,
			last_seen_at = $1,
			severity = $2
		WHERE id = $3`, seenAt, newSeverity, id)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "reoccur finding", err)
	}
	return nil
}

// IncrementMisses bumps consecutive_misses for every open/acknowledged
// finding of systemID NOT present in seenIDs this window, and
// auto-resolves any that crossed auto_resolve_after_misses (§4.7).
//
// A nil or empty seenIDs means nothing was seen this window: every open
// finding misses. That case is handled with a separate query because
// `NOT (id = ANY(array))` evaluates to NULL, not true, when the array is
// NULL (pgx sends a nil slice as NULL), which would otherwise skip every
// row.
func (s *FindingStore) IncrementMisses(ctx context.Context, q Querier, systemID string, seenIDs []string, autoResolveAfter int, resolvedAt time.Time) ([]string, error) {
	var rows *sql.Rows
	var err error
	if len(seenIDs) == 0 {
		rows, err = q.QueryContext(ctx, `
			UPDATE findings SET consecutive_misses = consecutive_misses + 1
			WHERE system_id = $1 AND status IN ('open', 'acknowledged')
			RETURNING id, consecutive_misses`, systemID)
	} else {
		rows, err = q.QueryContext(ctx, `
			UPDATE findings SET consecutive_misses = consecutive_misses + 1
			WHERE system_id = $1 AND status IN ('open', 'acknowledged')
			  AND NOT (id = ANY($2))
			RETURNING id, consecutive_misses`, systemID, seenIDs)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "increment misses", err)
	}
	var toResolve []string
	for rows.Next() {
		var id string
		var misses int
		if err := rows.Scan(&id, &misses); err != nil {
			rows.Close()
			return nil, errs.Wrap(errs.ErrTransientIO, "scan miss count", err)
		}
		if misses >= autoResolveAfter {
			toResolve = append(toResolve, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "iterate miss counts", err)
	}
	rows.Close()

	if len(toResolve) > 0 {
		_, err = q.ExecContext(ctx, `
			UPDATE findings SET status = 'resolved', resolved_at = $1
			WHERE id = ANY($2)`, resolvedAt, toResolve)
		if err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "auto-resolve findings", err)
		}
	}
	return toResolve, nil
}

// ResolveByMeta marks a finding resolved as the result of an explicit
// meta-analyser resolution (§4.6 resolved_indices, I5: terminal).
func (s *FindingStore) ResolveByMeta(ctx context.Context, q Querier, id, metaID string, resolvedAt time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE findings SET status = 'resolved', resolved_by_meta_id = $1, resolved_at = $2
		WHERE id = $3 AND status != 'resolved'`, metaID, resolvedAt, id)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "resolve finding", err)
	}
	return nil
}

func scanFindings(rows *sql.Rows) ([]models.Finding, error) {
	var out []models.Finding
	for rows.Next() {
		var f models.Finding
		var resolvedByMeta sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(&f.ID, &f.SystemID, &f.Status, &f.Severity, &f.OriginalSeverity,
			&f.CriterionSlug, &f.Text, &f.Fingerprint, &f.OccurrenceCount, &f.ConsecutiveMisses,
			&f.CreatedByMetaID, &resolvedByMeta, &f.CreatedAt, &f.LastSeenAt, &resolvedAt); err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "scan finding", err)
		}
		if resolvedByMeta.Valid {
			v := resolvedByMeta.String
			f.ResolvedByMetaID = &v
		}
		if resolvedAt.Valid {
			v := resolvedAt.Time
			f.ResolvedAt = &v
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
