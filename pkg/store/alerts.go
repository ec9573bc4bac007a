package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// AlertStore persists notification channels, rules, silences, and the
// alert history audit trail (§4.8).
type AlertStore struct{ db *sql.DB }

// Channels returns every notification channel.
func (s *AlertStore) Channels(ctx context.Context) ([]models.NotificationChannel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, type, config FROM notification_channels`)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "list channels", err)
	}
	defer rows.Close()

	var out []models.NotificationChannel
	for rows.Next() {
		var c models.NotificationChannel
		var cfgJSON []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &cfgJSON); err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "scan channel", err)
		}
		if len(cfgJSON) > 0 {
			if err := json.Unmarshal(cfgJSON, &c.Config); err != nil {
				return nil, errs.Wrap(errs.ErrInvariant, "decode channel config", err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EnabledRules returns every enabled notification rule.
func (s *AlertStore) EnabledRules(ctx context.Context) ([]models.NotificationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, enabled, trigger_config, filters, channel_ids,
		       throttle_interval_seconds, send_recovery, notify_only_on_state_change
		FROM notification_rules WHERE enabled = true`)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "list enabled rules", err)
	}
	defer rows.Close()

	var out []models.NotificationRule
	for rows.Next() {
		var r models.NotificationRule
		var triggerJSON, channelIDsJSON []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.Enabled, &triggerJSON, &r.Filter, &channelIDsJSON,
			&r.ThrottleIntervalSeconds, &r.SendRecovery, &r.NotifyOnlyOnStateChange); err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "scan rule", err)
		}
		if err := json.Unmarshal(triggerJSON, &r.Trigger); err != nil {
			return nil, errs.Wrap(errs.ErrInvariant, "decode rule trigger_config", err)
		}
		if len(channelIDsJSON) > 0 {
			if err := json.Unmarshal(channelIDsJSON, &r.ChannelIDs); err != nil {
				return nil, errs.Wrap(errs.ErrInvariant, "decode rule channel_ids", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActiveSilences returns silences whose [from, until) window contains at.
func (s *AlertStore) ActiveSilences(ctx context.Context, at time.Time) ([]models.Silence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, system_ids, criterion_slug, from_ts, until_ts, reason
		FROM silences WHERE from_ts <= $1 AND until_ts > $1`, at)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "list active silences", err)
	}
	defer rows.Close()

	var out []models.Silence
	for rows.Next() {
		var sil models.Silence
		var systemIDsJSON []byte
		if err := rows.Scan(&sil.ID, &systemIDsJSON, &sil.CriterionSlug, &sil.From, &sil.Until, &sil.Reason); err != nil {
			return nil, errs.Wrap(errs.ErrTransientIO, "scan silence", err)
		}
		if len(systemIDsJSON) > 0 {
			if err := json.Unmarshal(systemIDsJSON, &sil.SystemIDs); err != nil {
				return nil, errs.Wrap(errs.ErrInvariant, "decode silence system_ids", err)
			}
		}
		out = append(out, sil)
	}
	return out, rows.Err()
}

// LatestHistory returns the most recent alert_history row for
// (rule_id, system_id, criterion_id), used to compute state transitions
// and throttling (§4.8).
func (s *AlertStore) LatestHistory(ctx context.Context, ruleID, systemID string, criterionID int) (*models.AlertHistory, error) {
	var h models.AlertHistory
	var dispatchedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, rule_id, system_id, criterion_id, state, value, suppressed, dispatched_at, created_at
		FROM alert_history
		WHERE rule_id = $1 AND system_id = $2 AND criterion_id = $3
		ORDER BY created_at DESC LIMIT 1`, ruleID, systemID, criterionID).
		Scan(&h.ID, &h.RuleID, &h.SystemID, &h.CriterionID, &h.State, &h.Value, &h.Suppressed, &dispatchedAt, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransientIO, "latest alert history", err)
	}
	if dispatchedAt.Valid {
		h.DispatchedAt = &dispatchedAt.Time
	}
	return &h, nil
}

// RecordHistory appends one alert_history row. History is append-only.
// The evaluator records suppressed results too; throttled repeats and
// resolved -> resolved checks are not passed here (§4.8, §6.4).
func (s *AlertStore) RecordHistory(ctx context.Context, h models.AlertHistory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_history (id, rule_id, system_id, criterion_id, state, value, suppressed, dispatched_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		h.ID, h.RuleID, h.SystemID, h.CriterionID, h.State, h.Value, h.Suppressed, h.DispatchedAt, h.CreatedAt)
	if err != nil {
		return errs.Wrap(errs.ErrTransientIO, "record alert history", err)
	}
	return nil
}
