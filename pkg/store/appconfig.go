package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
)

// AppConfigStore persists small JSON-valued runtime settings that the
// orchestrator re-reads at the start of every run (§4.9, §6.4), such as
// operator overrides to the pipeline config loaded at startup.
type AppConfigStore struct{ db *sql.DB }

// Get decodes the value stored under key into dst. Returns
// errs.ErrNotFound if the key does not exist.
func (s *AppConfigStore) Get(ctx context.Context, key string, dst any) error {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_config WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrNotFound
	}
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "get app config", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errs.Wrap(errs.ErrInvariant, "decode app config value", err)
	}
	return nil
}

// Set upserts the JSON encoding of value under key.
func (s *AppConfigStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, raw)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "set app config", err)
	}
	return nil
}
