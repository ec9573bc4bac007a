package meta

import (
	"testing"

	"github.com/codeready-toolchain/sentinel/pkg/criteria"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestGroupByTemplateCollapsesByTemplateID(t *testing.T) {
	events := []models.Event{
		{ID: "e1", Message: "conn reset by peer", Severity: "error", Host: "h1", TemplateID: strPtr("tpl1")},
		{ID: "e2", Message: "conn reset by peer", Severity: "warning", Host: "h2", TemplateID: strPtr("tpl1")},
		{ID: "e3", Message: "disk full", Severity: "critical", TemplateID: strPtr("tpl2")},
	}
	scores := map[string]criteria.Vector{
		"e1": {0.2, 0, 0, 0, 0, 0},
		"e2": {0.5, 0, 0, 0, 0, 0},
	}

	groups := groupByTemplate(events, scores, false)
	if len(groups) != 2 {
		t.Fatalf("groupByTemplate() returned %d groups, want 2", len(groups))
	}

	tpl1 := groups[0]
	if tpl1.Count != 2 {
		t.Errorf("tpl1 count = %d, want 2", tpl1.Count)
	}
	if tpl1.Severity != "error" {
		t.Errorf("tpl1 severity = %q, want error (most severe of error/warning)", tpl1.Severity)
	}
	if tpl1.Scores[0] != 0.5 {
		t.Errorf("tpl1 max score = %v, want 0.5 (max of group members)", tpl1.Scores[0])
	}
	if len(tpl1.Hosts) != 2 {
		t.Errorf("tpl1 hosts = %v, want 2 distinct hosts", tpl1.Hosts)
	}
}

func TestGroupByTemplateFiltersZeroScoredEvents(t *testing.T) {
	events := []models.Event{
		{ID: "e1", Message: "scored event", TemplateID: strPtr("tpl1")},
		{ID: "e2", Message: "never scored", TemplateID: strPtr("tpl2")},
	}
	scores := map[string]criteria.Vector{
		"e1": {0.3, 0, 0, 0, 0, 0},
	}

	groups := groupByTemplate(events, scores, true)
	if len(groups) != 1 {
		t.Fatalf("groupByTemplate() with filterZeroScored returned %d groups, want 1", len(groups))
	}
	if groups[0].Text != "scored event" {
		t.Errorf("groupByTemplate() kept %q, want only the scored event", groups[0].Text)
	}
}

func TestGroupByTemplateFallsBackToMessageWithoutTemplateID(t *testing.T) {
	events := []models.Event{
		{ID: "e1", Message: "pre-template event"},
		{ID: "e2", Message: "pre-template event"},
	}
	groups := groupByTemplate(events, nil, false)
	if len(groups) != 1 {
		t.Fatalf("groupByTemplate() returned %d groups, want 1 (grouped by message)", len(groups))
	}
	if groups[0].Count != 2 {
		t.Errorf("groupByTemplate() count = %d, want 2", groups[0].Count)
	}
}

func TestSeverityRankOrdersCriticalBeforeInfo(t *testing.T) {
	if severityRank("critical") >= severityRank("info") {
		t.Error("critical should rank more severe (lower) than info")
	}
	if severityRank("") <= severityRank("debug") {
		t.Error("an unset severity should rank least severe")
	}
}
