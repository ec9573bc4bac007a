package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// ScoreStore persists EventScore rows. Zero scores are never written
// here (I2) — callers filter before calling Insert.
type ScoreStore struct{ db *sql.DB }

const scoreParamLimit = 6000 // §5 shared-resource policy: stay under ~6000 bind params per statement

// Insert bulk-inserts event scores, chunking to stay under the
// per-statement bind parameter limit. ON CONFLICT on the composite key
// (event_id, criterion_id, score_type) makes this safe to retry.
func (s *ScoreStore) Insert(ctx context.Context, scores []models.EventScore) error {
	const cols = 3
	for _, batch := range chunkScores(scores, scoreParamLimit/cols) {
		if err := s.insertBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *ScoreStore) insertBatch(ctx context.Context, scores []models.EventScore) error {
	if len(scores) == 0 {
		return nil
	}
	var placeholders strings.Builder
	args := make([]any, 0, len(scores)*3)
	for i, sc := range scores {
		if i > 0 {
			placeholders.WriteByte(',')
		}
		base := i * 3
		fmt.Fprintf(&placeholders, "($%d, $%d, 'event', $%d)", base+1, base+2, base+3)
		args = append(args, sc.EventID, sc.CriterionID, sc.Score)
	}
	query := `
		INSERT INTO event_scores (event_id, criterion_id, score_type, score)
		VALUES ` + placeholders.String() + `
		ON CONFLICT (event_id, criterion_id, score_type) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "insert event scores", err)
	}
	return nil
}

// ScoresForEvents returns all scores for the given event ids, fetched in
// batches of 100 (§4.6 "scores are fetched by event_id in batches of 100").
func (s *ScoreStore) ScoresForEvents(ctx context.Context, eventIDs []string) ([]models.EventScore, error) {
	var out []models.EventScore
	for _, batch := range chunk(eventIDs, 100) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT event_id, criterion_id, score_type, score
			FROM event_scores WHERE event_id = ANY($1)`, batch)
		if err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "fetch event scores", err)
		}
		for rows.Next() {
			var sc models.EventScore
			if err := rows.Scan(&sc.EventID, &sc.CriterionID, &sc.ScoreType, &sc.Score); err != nil {
				rows.Close()
				return nil, errs.Wrap(errs.ErrTransientIO, "scan event score", err)
			}
			out = append(out, sc)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "iterate event scores", err)
		}
	}
	return out, nil
}

func chunkScores(scores []models.EventScore, size int) [][]models.EventScore {
	if size <= 0 {
		size = len(scores)
	}
	var out [][]models.EventScore
	for size > 0 && len(scores) > 0 {
		n := size
		if n > len(scores) {
			n = len(scores)
		}
		out = append(out, scores[:n])
		scores = scores[n:]
	}
	return out
}
