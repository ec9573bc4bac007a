package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// MetaStore persists MetaResult rows (§4.6). I3: at most one row per
// window_id, enforced by a UNIQUE constraint.
type MetaStore struct{ db *sql.DB }

// Insert writes one meta-analysis result through q, which must be
// non-nil: the pool (Store.DB()), or a transaction obtained via
// Store.WithTx so the insert
// commits atomically with the effective-score and finding writes it
// feeds (§4.6 step 6).
func (s *MetaStore) Insert(ctx context.Context, q Querier, m models.MetaResult) error {
	scoresJSON, err := json.Marshal(m.MetaScores)
	if err != nil {
		return err
	}
	findingsJSON, err := json.Marshal(m.NewFindings)
	if err != nil {
		return err
	}
	resolvedJSON, err := json.Marshal(m.ResolvedIndices)
	if err != nil {
		return err
	}
	keyEventsJSON, err := json.Marshal(m.KeyEventIDs)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO meta_results (id, window_id, system_id, meta_scores, summary,
			new_findings, resolved_indices, recommended_action, key_event_ids, model, failed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		m.ID, m.WindowID, m.SystemID, scoresJSON, m.Summary, findingsJSON,
		resolvedJSON, m.RecommendedAction, keyEventsJSON, m.Model, m.Failed)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "insert meta result", err)
	}
	return nil
}

// RecentSummaries returns up to n most recent meta_results summaries for
// systemID, oldest first, for the meta-analyser's sliding context window
// (§4.6 "previous N window summaries").
func (s *MetaStore) RecentSummaries(ctx context.Context, systemID string, n int) ([]models.MetaResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, window_id, system_id, summary, recommended_action, model, created_at, failed
		FROM meta_results
		WHERE system_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, systemID, n)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "recent meta summaries", err)
	}
	defer rows.Close()

	var out []models.MetaResult
	for rows.Next() {
		var m models.MetaResult
		if err := rows.Scan(&m.ID, &m.WindowID, &m.SystemID, &m.Summary,
			&m.RecommendedAction, &m.Model, &m.CreatedAt, &m.Failed); err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "scan meta summary", err)
		}
		out = append(out, m)
	}
	// reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}
