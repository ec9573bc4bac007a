// Package store is the repository layer: hand-written SQL over
// database/sql (pgx driver), replacing the generated ent client the
// teacher repo uses. See DESIGN.md for why ent itself was dropped.
//
// Every repository method takes a context and either a *sql.DB or
// *sql.Tx via the Querier interface, so callers that need multi-row
// transactional writes (§4.6 "Transactional write") can open a
// transaction once and pass it through unchanged.
package store

import (
	"context"
	"database/sql"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store aggregates every repository over a shared connection pool.
type Store struct {
	db *sql.DB

	Systems          *SystemStore
	Events           *EventStore
	Templates        *TemplateStore
	Windows          *WindowStore
	Scores           *ScoreStore
	Meta             *MetaStore
	Findings         *FindingStore
	EffectiveScores  *EffectiveScoreStore
	NormalBehavior   *NormalBehaviorStore
	Alerts           *AlertStore
	LlmUsage         *LlmUsageStore
	AppConfig        *AppConfigStore
}

// DB exposes the underlying pool for callers that need a Querier
// outside of WithTx (e.g. append-only inserts run standalone).
func (s *Store) DB() *sql.DB { return s.db }

// New builds a Store backed by db.
func New(db *sql.DB) *Store {
	return &Store{
		db:              db,
		Systems:         &SystemStore{db: db},
		Events:          &EventStore{db: db},
		Templates:       &TemplateStore{db: db},
		Windows:         &WindowStore{db: db},
		Scores:          &ScoreStore{db: db},
		Meta:            &MetaStore{db: db},
		Findings:        &FindingStore{db: db},
		EffectiveScores: &EffectiveScoreStore{db: db},
		NormalBehavior:  &NormalBehaviorStore{db: db},
		Alerts:          &AlertStore{db: db},
		LlmUsage:        &LlmUsageStore{db: db},
		AppConfig:       &AppConfigStore{db: db},
	}
}

// WithTx runs fn inside a transaction, committing on nil error and
// rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
