package alert

import (
	"testing"
	"time"

	"github.com/codeready-toolchain/sentinel/pkg/models"
)

func TestTriggerFiresThreshold(t *testing.T) {
	trig := models.TriggerConfig{Kind: "threshold", MinScore: 0.6}
	if !triggerFires(trig, 0.6) {
		t.Error("triggerFires() should fire at exactly MinScore")
	}
	if triggerFires(trig, 0.59) {
		t.Error("triggerFires() should not fire below MinScore")
	}
}

func TestTriggerFiresIgnoresNonThresholdKinds(t *testing.T) {
	trig := models.TriggerConfig{Kind: "schedule", MinScore: 0}
	if triggerFires(trig, 1.0) {
		t.Error("triggerFires() should only evaluate threshold-kind triggers")
	}
}

func TestRuleAppliesToEmptySystemIDsMatchesAll(t *testing.T) {
	rule := models.NotificationRule{Trigger: models.TriggerConfig{}}
	if !ruleAppliesTo(rule, "any-system") {
		t.Error("a rule with no SystemIDs should apply to every system")
	}
}

func TestRuleAppliesToScopedSystemIDs(t *testing.T) {
	rule := models.NotificationRule{Trigger: models.TriggerConfig{SystemIDs: []string{"sys-a"}}}
	if !ruleAppliesTo(rule, "sys-a") {
		t.Error("rule should apply to a listed system")
	}
	if ruleAppliesTo(rule, "sys-b") {
		t.Error("rule should not apply to an unlisted system")
	}
}

func TestIsSilencedWithinWindow(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	silences := []models.Silence{{
		CriterionSlug: "availability",
		From:          now.Add(-time.Hour),
		Until:         now.Add(time.Hour),
	}}
	if !isSilenced(silences, "sys1", "availability", now) {
		t.Error("expected an active silence to suppress dispatch")
	}
}

func TestIsSilencedOutsideWindow(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	silences := []models.Silence{{
		CriterionSlug: "availability",
		From:          now.Add(-2 * time.Hour),
		Until:         now.Add(-time.Hour),
	}}
	if isSilenced(silences, "sys1", "availability", now) {
		t.Error("an expired silence should not suppress dispatch")
	}
}

func TestIsSilencedScopedToSystem(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	silences := []models.Silence{{
		SystemIDs: []string{"sys-a"},
		From:      now.Add(-time.Hour),
		Until:     now.Add(time.Hour),
	}}
	if !isSilenced(silences, "sys-a", "any-criterion", now) {
		t.Error("silence scoped to sys-a should apply to sys-a")
	}
	if isSilenced(silences, "sys-b", "any-criterion", now) {
		t.Error("silence scoped to sys-a should not apply to sys-b")
	}
}
