package store

import (
	"context"
	"database/sql"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// NormalBehaviorStore persists user-curated "this is routine" patterns
// the scorer uses to skip LLM calls entirely (§4.4 step 2).
type NormalBehaviorStore struct{ db *sql.DB }

// EnabledForSystem returns all enabled normal-behavior templates for
// systemID.
func (s *NormalBehaviorStore) EnabledForSystem(ctx context.Context, systemID string) ([]models.NormalBehaviorTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, system_id, message_pattern, host_pattern, program_pattern, enabled
		FROM normal_behavior_templates
		WHERE system_id = $1 AND enabled = true`, systemID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "list normal behavior templates", err)
	}
	defer rows.Close()

	var out []models.NormalBehaviorTemplate
	for rows.Next() {
		var t models.NormalBehaviorTemplate
		var host, program sql.NullString
		if err := rows.Scan(&t.ID, &t.SystemID, &t.MessagePattern, &host, &program, &t.Enabled); err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "scan normal behavior template", err)
		}
		if host.Valid {
			t.HostPattern = &host.String
		}
		if program.Valid {
			t.ProgramPattern = &program.String
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create inserts a new normal-behavior template.
func (s *NormalBehaviorStore) Create(ctx context.Context, t models.NormalBehaviorTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO normal_behavior_templates (id, system_id, message_pattern, host_pattern, program_pattern, enabled)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.SystemID, t.MessagePattern, t.HostPattern, t.ProgramPattern, t.Enabled)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "create normal behavior template", err)
	}
	return nil
}
