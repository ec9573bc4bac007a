package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// LlmUsageStore appends LlmUsage audit rows. The table is append-only
// and DB-enforced immutable (trg_llm_usage_immutable, §5) — this store
// deliberately exposes no Update or Delete method.
type LlmUsageStore struct{ db *sql.DB }

// Insert appends one usage row.
func (s *LlmUsageStore) Insert(ctx context.Context, q Querier, u models.LlmUsage) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO llm_usage (id, run_type, model, system_id, window_id, event_count,
			token_input, token_output, request_count, cost_estimate, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		u.ID, u.RunType, u.Model, u.SystemID, u.WindowID, u.EventCount,
		u.TokenInput, u.TokenOutput, u.RequestCount, u.CostEstimate, u.CreatedAt)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "insert llm usage", err)
	}
	return nil
}

// TotalCostSince sums cost_estimate across all runs for systemID since
// the given time, used for cost-reporting endpoints.
func (s *LlmUsageStore) TotalCostSince(ctx context.Context, systemID string, since time.Time) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(cost_estimate) FROM llm_usage WHERE system_id = $1 AND created_at >= $2`,
		systemID, since).Scan(&total)
	if err != nil {
		return 0, errs.Wrap(errs.ErrTransientIO, "sum llm usage cost", err)
	}
	return total.Float64, nil
}
