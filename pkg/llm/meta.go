package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/sentinel/pkg/criteria"
	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// MetaContext is everything the meta-analyser feeds the LLM for one
// window: the window's templated event groups, the sliding context of
// prior summaries, and the currently open findings the model may
// resolve (§4.6 steps 1-3).
type MetaContext struct {
	WindowFrom, WindowTo string
	TemplateGroups       []TemplateGroup
	PreviousSummaries    []string
	OpenFindings         []string // 1-based index i corresponds to OpenFindings[i-1]
}

// TemplateGroup is one deduplicated message template plus its
// occurrence count within the window, the unit the meta-analyser
// actually reasons over instead of raw events (§4.6 step 1). Severity
// is the most severe severity seen among the group's events; Scores is
// the per-criterion max of its events' per-event scores.
type TemplateGroup struct {
	Text     string
	Severity string
	Count    int
	Hosts    []string
	Scores   criteria.Vector
}

type metaResponseBody struct {
	Scores            map[string]float64 `json:"meta_scores"`
	Summary           string             `json:"summary"`
	NewFindings       []rawMetaFinding   `json:"new_findings"`
	ResolvedFindings  []int              `json:"resolved_indices"`
	RecommendedAction string             `json:"recommended_action"`
}

type rawMetaFinding struct {
	Text      string `json:"text"`
	Severity  string `json:"severity"`
	Criterion string `json:"criterion"`
}

// Analyze sends the window context to the meta model and returns a
// structured result (§4.6 step 4).
func (c *Client) Analyze(ctx context.Context, systemPrompt string, mc MetaContext) (models.MetaResult, Result, error) {
	res, err := c.Call(ctx, c.cfg.MetaModel, systemPrompt, buildMetaPrompt(mc))
	if err != nil {
		return models.MetaResult{Failed: true}, res, err
	}

	parsed, err := parseMetaResponse(res.Content)
	if err != nil {
		return models.MetaResult{Failed: true}, res, err
	}
	return parsed, res, nil
}

func buildMetaPrompt(mc MetaContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Window: %s to %s\n\n", mc.WindowFrom, mc.WindowTo)

	if len(mc.PreviousSummaries) > 0 {
		b.WriteString("Previous window summaries (oldest first):\n")
		for _, s := range mc.PreviousSummaries {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}

	if len(mc.OpenFindings) > 0 {
		b.WriteString("Open findings (reference by number when resolved):\n")
		for i, f := range mc.OpenFindings {
			fmt.Fprintf(&b, "%d. %s\n", i+1, f)
		}
		b.WriteString("\n")
	}

	b.WriteString("Events this window, grouped by template:\n")
	for _, g := range mc.TemplateGroups {
		fmt.Fprintf(&b, "- (%dx, severity=%s, max_scores=%v) %s\n", g.Count, g.Severity, g.Scores, g.Text)
	}

	b.WriteString("\nRespond with JSON: {\"meta_scores\": {criterion_slug: 0.0-1.0}, \"summary\": str, " +
		"\"new_findings\": [{\"text\": str, \"severity\": critical|high|medium|low|info, \"criterion\": str}], " +
		"\"resolved_indices\": [int], \"recommended_action\": str}.")
	return b.String()
}

// parseMetaResponse tolerates malformed JSON by returning ErrMetaParse;
// a failed parse still produces a MetaResult with Failed=true so the
// pipeline can skip the window without crashing (§4.6, §7).
func parseMetaResponse(content string) (models.MetaResult, error) {
	content = extractJSON(content)
	if content == "" {
		return models.MetaResult{Failed: true}, errs.Wrap(errs.ErrMetaParse, "empty meta response", errs.NewInvariant("llm", "no JSON found"))
	}

	var body metaResponseBody
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		return models.MetaResult{Failed: true}, errs.Wrap(errs.ErrMetaParse, "decode meta response", err)
	}

	var scores criteria.Vector
	for slug, v := range body.Scores {
		scores = scores.Set(slug, v)
	}
	scores = scores.Clamp()

	findings := make([]models.MetaFinding, 0, len(body.NewFindings))
	for _, f := range body.NewFindings {
		sev := strings.ToLower(f.Severity)
		if sev == "" {
			sev = "info"
		}
		findings = append(findings, models.MetaFinding{
			Text:      f.Text,
			Severity:  sev,
			Criterion: f.Criterion,
		})
	}

	return models.MetaResult{
		MetaScores:        scores,
		Summary:           body.Summary,
		NewFindings:       findings,
		ResolvedIndices:   body.ResolvedFindings,
		RecommendedAction: body.RecommendedAction,
	}, nil
}
