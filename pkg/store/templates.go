package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// TemplateStore persists MessageTemplate rows (§4.3).
type TemplateStore struct{ db *sql.DB }

// GetByPatternHash looks up an existing template for systemID.
func (s *TemplateStore) GetByPatternHash(ctx context.Context, systemID, patternHash string) (*models.MessageTemplate, error) {
	t, err := scanTemplateRow(s.db.QueryRowContext(ctx, `
		SELECT id, system_id, template_text, pattern_hash, occurrence_count,
		       first_seen_at, last_seen_at, last_scored_at, cached_scores,
		       score_count, avg_max_score
		FROM message_templates WHERE system_id = $1 AND pattern_hash = $2`, systemID, patternHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "get template", err)
	}
	return t, nil
}

// UpsertOnSight inserts a new template row, or increments occurrence_count
// and bumps last_seen_at if one already exists for (system_id,
// pattern_hash) (§4.3 "On first sight ... otherwise occurrence_count is
// incremented").
func (s *TemplateStore) UpsertOnSight(ctx context.Context, systemID, templateID, patternHash, text string, seenAt time.Time) (*models.MessageTemplate, error) {
	t, err := scanTemplateRow(s.db.QueryRowContext(ctx, `
		INSERT INTO message_templates (id, system_id, template_text, pattern_hash,
			occurrence_count, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
		ON CONFLICT (system_id, pattern_hash) DO UPDATE SET
			occurrence_count = message_templates.occurrence_count + 1,
			last_seen_at = EXCLUDED.last_seen_at
		RETURNING id, system_id, template_text, pattern_hash, occurrence_count,
		          first_seen_at, last_seen_at, last_scored_at, cached_scores,
		          score_count, avg_max_score`,
		templateID, systemID, text, patternHash, seenAt))
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "upsert template", err)
	}
	return t, nil
}

// UpdateCacheRow is one row of the batched cache update (§4.4 step 8).
type UpdateCacheRow struct {
	TemplateID   string
	LastScoredAt time.Time
	CachedScores [6]float64
	ScoreCount   int
	AvgMaxScore  float64
}

// UpdateCacheBatch applies the template cache columns in a single
// UPDATE ... FROM (VALUES ...) statement: last_scored_at and
// cached_scores are replaced, score_count is incremented by the row's
// ScoreCount, and avg_max_score becomes the running average of every
// scoring's max score, per §4.4 step 8 and the
// §5 shared-resource policy ("single UPDATE ... FROM (VALUES ...) per
// batch to avoid lock-thrash").
func (s *TemplateStore) UpdateCacheBatch(ctx context.Context, rows []UpdateCacheRow) error {
	if len(rows) == 0 {
		return nil
	}

	var placeholders strings.Builder
	args := make([]any, 0, len(rows)*5)
	for i, r := range rows {
		if i > 0 {
			placeholders.WriteByte(',')
		}
		scoresJSON, err := json.Marshal(r.CachedScores)
		if err != nil {
			return err
		}
		base := i * 5
		fmt.Fprintf(&placeholders, "($%d::text, $%d::timestamptz, $%d::jsonb, $%d::int, $%d::double precision)",
			base+1, base+2, base+3, base+4, base+5)
		args = append(args, r.TemplateID, r.LastScoredAt, scoresJSON, r.ScoreCount, r.AvgMaxScore)
	}

	query := `
		UPDATE message_templates AS mt SET
			last_scored_at = v.last_scored_at,
			cached_scores  = v.cached_scores,
			score_count    = mt.score_count + v.score_count,
			avg_max_score  = (mt.avg_max_score * mt.score_count + v.avg_max_score * v.score_count) / (mt.score_count + v.score_count)
		FROM (VALUES ` + placeholders.String() + `) AS v(id, last_scored_at, cached_scores, score_count, avg_max_score)
		WHERE mt.id = v.id`

	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "update template cache batch", err)
	}
	return nil
}

func scanTemplateRow(row *sql.Row) (*models.MessageTemplate, error) {
	var t models.MessageTemplate
	var cachedJSON []byte
	if err := row.Scan(&t.ID, &t.SystemID, &t.TemplateText, &t.PatternHash, &t.OccurrenceCount,
		&t.FirstSeenAt, &t.LastSeenAt, &t.LastScoredAt, &cachedJSON, &t.ScoreCount, &t.AvgMaxScore); err != nil {
		return nil, err
	}
	if len(cachedJSON) > 0 {
		var scores [6]float64
		if err := json.Unmarshal(cachedJSON, &scores); err != nil {
			return nil, err
		}
		t.CachedScores = &scores
	}
	return &t, nil
}
