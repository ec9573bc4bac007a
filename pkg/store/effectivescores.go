package store

import (
	"context"
	"database/sql"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// EffectiveScoreStore persists the blended dashboard read model (I4).
type EffectiveScoreStore struct{ db *sql.DB }

// Upsert writes one (window_id, system_id, criterion_id) row, overwriting
// any prior value — each window/criterion pair is blended exactly once
// per meta-analysis run.
func (s *EffectiveScoreStore) Upsert(ctx context.Context, q Querier, es models.EffectiveScore) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO effective_scores (window_id, system_id, criterion_id, effective_value, meta_score, max_event_score)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (window_id, system_id, criterion_id) DO UPDATE SET
			effective_value = EXCLUDED.effective_value,
			meta_score      = EXCLUDED.meta_score,
			max_event_score = EXCLUDED.max_event_score`,
		es.WindowID, es.SystemID, es.CriterionID, es.EffectiveValue, es.MetaScore, es.MaxEventScore)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "upsert effective score", err)
	}
	return nil
}

// Latest returns the most recent effective score for every criterion of
// systemID, used by the alert evaluator's threshold triggers (§4.8).
func (s *EffectiveScoreStore) Latest(ctx context.Context, systemID string) (map[int]models.EffectiveScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (criterion_id) window_id, system_id, criterion_id,
		       effective_value, meta_score, max_event_score
		FROM effective_scores es
		WHERE system_id = $1
		ORDER BY criterion_id, (SELECT to_ts FROM windows w WHERE w.id = es.window_id) DESC`, systemID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "latest effective scores", err)
	}
	defer rows.Close()

	out := make(map[int]models.EffectiveScore)
	for rows.Next() {
		var es models.EffectiveScore
		if err := rows.Scan(&es.WindowID, &es.SystemID, &es.CriterionID,
			&es.EffectiveValue, &es.MetaScore, &es.MaxEventScore); err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "scan effective score", err)
		}
		out[es.CriterionID] = es
	}
	return out, rows.Err()
}
