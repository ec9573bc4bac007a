// Package alert evaluates notification rules against the latest
// effective scores, drives the firing/resolved state machine, applies
// silence suppression and throttling, and dispatches through
// pkg/channel (§4.8).
package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/sentinel/pkg/channel"
	"github.com/codeready-toolchain/sentinel/pkg/criteria"
	"github.com/codeready-toolchain/sentinel/pkg/models"
	"github.com/codeready-toolchain/sentinel/pkg/store"
)

// Evaluator runs notification rules for every system on each
// orchestrator tick.
type Evaluator struct {
	store      *store.Store
	dispatcher channel.Dispatcher
	channels   map[string]models.NotificationChannel
}

// New builds an Evaluator over store, dispatching through dispatcher.
func New(s *store.Store, dispatcher channel.Dispatcher) *Evaluator {
	return &Evaluator{store: s, dispatcher: dispatcher}
}

// Run evaluates every enabled rule against systemID's latest effective
// scores at "now" (§4.8 steps 1-5). Evaluation failures for one rule do
// not stop the others.
func (e *Evaluator) Run(ctx context.Context, systemID string, now time.Time) error {
	latest, err := e.store.EffectiveScores.Latest(ctx, systemID)
	if err != nil {
		return err
	}
	rules, err := e.store.Alerts.EnabledRules(ctx)
	if err != nil {
		return err
	}
	silences, err := e.store.Alerts.ActiveSilences(ctx, now)
	if err != nil {
		return err
	}
	channels, err := e.store.Alerts.Channels(ctx)
	if err != nil {
		return err
	}
	channelsByID := make(map[string]models.NotificationChannel, len(channels))
	for _, c := range channels {
		channelsByID[c.ID] = c
	}

	for _, rule := range rules {
		if !ruleAppliesTo(rule, systemID) {
			continue
		}
		filter, err := CompileFilter(rule.Filter)
		if err != nil {
			slog.Error("skipping rule with invalid filter", "rule", rule.Name, "error", err)
			continue
		}

		for critID, es := range latest {
			crit, ok := criteria.ByID(critID)
			if !ok {
				continue
			}
			if rule.Trigger.CriterionSlug != "" && rule.Trigger.CriterionSlug != crit.Slug {
				continue
			}

			firing := triggerFires(rule.Trigger, es.EffectiveValue)
			state := models.AlertResolved
			if firing {
				state = models.AlertFiring
			}

			pass, err := filter.Eval(systemID, crit.Slug, es.EffectiveValue, string(state))
			if err != nil {
				slog.Error("filter evaluation failed", "rule", rule.Name, "error", err)
				continue
			}
			if !pass {
				continue
			}

			silenced := isSilenced(silences, systemID, crit.Slug, now)
			if err := e.transition(ctx, rule, systemID, crit.ID, state, es.EffectiveValue, silenced, channelsByID, now); err != nil {
				slog.Error("alert transition failed", "rule", rule.Name, "system_id", systemID, "error", err)
			}
		}
	}
	return nil
}

func ruleAppliesTo(rule models.NotificationRule, systemID string) bool {
	if len(rule.Trigger.SystemIDs) == 0 {
		return true
	}
	for _, id := range rule.Trigger.SystemIDs {
		if id == systemID {
			return true
		}
	}
	return false
}

func triggerFires(t models.TriggerConfig, value float64) bool {
	if t.Kind != "threshold" {
		return false
	}
	return value >= t.MinScore
}

func isSilenced(silences []models.Silence, systemID, criterionSlug string, now time.Time) bool {
	for _, s := range silences {
		if s.CriterionSlug != "" && s.CriterionSlug != criterionSlug {
			continue
		}
		if len(s.SystemIDs) > 0 {
			found := false
			for _, id := range s.SystemIDs {
				if id == systemID {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if !now.Before(s.From) && now.Before(s.Until) {
			return true
		}
	}
	return false
}

// transition implements the firing/resolved state machine (§4.8):
// - resolved -> firing: dispatch, record history
// - firing -> firing: throttled repeat, dispatch only after
//   ThrottleIntervalSeconds has elapsed since the last dispatch; before
//   that it's a flat no-op, no history row written at all
// - firing -> resolved: dispatch a recovery notice if SendRecovery
// - resolved -> resolved: always a flat no-op, no history row, never
//   dispatch
func (e *Evaluator) transition(ctx context.Context, rule models.NotificationRule, systemID string, criterionID int, newState models.AlertState, value float64, silenced bool, channels map[string]models.NotificationChannel, now time.Time) error {
	prev, err := e.store.Alerts.LatestHistory(ctx, rule.ID, systemID, criterionID)
	hadPrev := err == nil
	prevState := models.AlertResolved
	if hadPrev {
		prevState = prev.State
	}

	if prevState == models.AlertResolved && newState == models.AlertResolved {
		return nil // resolved -> resolved: nothing changed, nothing to record
	}

	shouldDispatch := false
	throttled := false
	switch {
	case prevState == models.AlertResolved && newState == models.AlertFiring:
		shouldDispatch = true
	case prevState == models.AlertFiring && newState == models.AlertFiring:
		elapsed := now.Sub(prev.CreatedAt)
		shouldDispatch = elapsed >= time.Duration(rule.ThrottleIntervalSeconds)*time.Second
		throttled = !shouldDispatch
	case prevState == models.AlertFiring && newState == models.AlertResolved:
		shouldDispatch = rule.SendRecovery
	}

	if throttled {
		return nil // firing -> firing inside the throttle window: no history row
	}

	if rule.NotifyOnlyOnStateChange && hadPrev && prevState == newState && !shouldDispatch {
		return nil // no state change and nothing due: skip the history row entirely
	}

	suppressed := silenced || !shouldDispatch
	hist := models.AlertHistory{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		SystemID:    systemID,
		CriterionID: criterionID,
		State:       newState,
		Value:       value,
		Suppressed:  suppressed,
		CreatedAt:   now,
	}

	if shouldDispatch && !silenced {
		crit, _ := criteria.ByID(criterionID)
		ev := channel.Event{
			RuleName:      rule.Name,
			SystemID:      systemID,
			CriterionSlug: crit.Slug,
			State:         newState,
			Value:         value,
			FiredAt:       now,
		}
		dispatchedAny := false
		for _, chID := range rule.ChannelIDs {
			ch, ok := channels[chID]
			if !ok {
				continue
			}
			if err := e.dispatcher.Dispatch(ctx, ch, ev); err != nil {
				slog.Error("channel dispatch failed", "channel", ch.Name, "rule", rule.Name, "error", err)
				continue
			}
			dispatchedAny = true
		}
		if dispatchedAny {
			hist.DispatchedAt = &now
		}
	}

	return e.store.Alerts.RecordHistory(ctx, hist)
}
