package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// SystemStore persists MonitoredSystem and LogSource rows.
type SystemStore struct{ db *sql.DB }

// ListSystems returns every monitored system.
func (s *SystemStore) ListSystems(ctx context.Context) ([]models.MonitoredSystem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, retention_days, timezone_offset_minutes,
		       event_source_selector, created_at
		FROM monitored_systems ORDER BY id`)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "list systems", err)
	}
	defer rows.Close()

	var out []models.MonitoredSystem
	for rows.Next() {
		var m models.MonitoredSystem
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.RetentionDays,
			&m.TimezoneOffsetMin, &m.EventSourceSelector, &m.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "scan system", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetSystem fetches a single system by id.
func (s *SystemStore) GetSystem(ctx context.Context, id string) (*models.MonitoredSystem, error) {
	var m models.MonitoredSystem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, retention_days, timezone_offset_minutes,
		       event_source_selector, created_at
		FROM monitored_systems WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.Description, &m.RetentionDays,
			&m.TimezoneOffsetMin, &m.EventSourceSelector, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "get system", err)
	}
	return &m, nil
}

// ActiveLogSources returns active log sources ordered by
// (system_id, priority asc, id asc), matching §4.2's routing order.
func (s *SystemStore) ActiveLogSources(ctx context.Context) ([]models.LogSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, system_id, label, selector, priority, active, created_at
		FROM log_sources
		WHERE active = true
		ORDER BY system_id, priority ASC, id ASC`)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "list log sources", err)
	}
	defer rows.Close()

	var out []models.LogSource
	for rows.Next() {
		var ls models.LogSource
		var selectorJSON []byte
		if err := rows.Scan(&ls.ID, &ls.SystemID, &ls.Label, &selectorJSON,
			&ls.Priority, &ls.Active, &ls.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "scan log source", err)
		}
		if err := json.Unmarshal(selectorJSON, &ls.Selector); err != nil {
			return nil, errs.Wrap(errs.ErrInvariant, "decode log source selector", err)
		}
		out = append(out, ls)
	}
	return out, rows.Err()
}

// CreateLogSource inserts a new routing rule. At least one selector
// field is required (§3 LogSource invariant).
func (s *SystemStore) CreateLogSource(ctx context.Context, ls models.LogSource) error {
	if len(ls.Selector) == 0 {
		return errs.NewInvariant("log_source", "at least one selector field is required")
	}
	selectorJSON, err := json.Marshal(ls.Selector)
	if err != nil {
		return fmt.Errorf("marshal selector: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO log_sources (id, system_id, label, selector, priority, active)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ls.ID, ls.SystemID, ls.Label, selectorJSON, ls.Priority, ls.Active)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "create log source", err)
	}
	return nil
}
