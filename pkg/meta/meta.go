// Package meta implements the meta-analyser (§4.6): assembles a
// window's templated events plus sliding context, calls the LLM, and
// writes the meta_result, effective_scores, and finding lifecycle
// changes in one transaction.
package meta

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/sentinel/pkg/blend"
	"github.com/codeready-toolchain/sentinel/pkg/config"
	"github.com/codeready-toolchain/sentinel/pkg/criteria"
	"github.com/codeready-toolchain/sentinel/pkg/finding"
	"github.com/codeready-toolchain/sentinel/pkg/llm"
	"github.com/codeready-toolchain/sentinel/pkg/models"
	"github.com/codeready-toolchain/sentinel/pkg/store"
)

// Analyser runs meta-analysis for unanalysed windows of a system.
type Analyser struct {
	store   *store.Store
	llm     *llm.Client
	llmCfg  *config.LLMConfig
	cfg     *config.PipelineConfig
	prompt  string
	engine  *finding.Engine
}

// New builds an Analyser. engine handles the finding lifecycle writes
// that land in the same transaction as the meta_result insert.
func New(s *store.Store, llmClient *llm.Client, llmCfg *config.LLMConfig, cfg *config.PipelineConfig, metaPrompt string, engine *finding.Engine) *Analyser {
	return &Analyser{store: s, llm: llmClient, llmCfg: llmCfg, cfg: cfg, prompt: metaPrompt, engine: engine}
}

// RunSystem analyses every unanalysed window for systemID in creation
// order (I3: one meta_result per window).
func (a *Analyser) RunSystem(ctx context.Context, systemID string) error {
	windows, err := a.store.Windows.UnanalysedWindows(ctx, systemID)
	if err != nil {
		return err
	}
	for _, w := range windows {
		if err := a.analyseWindow(ctx, w); err != nil {
			slog.Error("meta-analysis failed for window", "window_id", w.ID, "system_id", systemID, "error", err)
			continue
		}
	}
	return nil
}

func (a *Analyser) analyseWindow(ctx context.Context, w models.Window) error {
	events, err := a.store.Events.EventsInWindow(ctx, w.SystemID, w.FromTS, w.ToTS, a.cfg.MaxEventsPerWindow)
	if err != nil {
		return err
	}

	maxScores, err := a.store.Events.MaxScorePerCriterion(ctx, w.SystemID, w.FromTS, w.ToTS)
	if err != nil {
		return err
	}
	var maxVector criteria.Vector
	for critID, v := range maxScores {
		if c, ok := criteria.ByID(critID); ok {
			maxVector[c.ID-1] = v
		}
	}

	now := time.Now()
	metaID := uuid.NewString()

	// §4.6 "skip_zero_score_meta": every per-event score in the window
	// is zero (or there were no scored events at all). A meta_result
	// row is still written so UnanalysedWindows doesn't retry this
	// window forever (I3).
	if a.cfg.SkipZeroScoreMeta && maxVector.IsZero() {
		return a.store.WithTx(ctx, func(tx *sql.Tx) error {
			return a.store.Meta.Insert(ctx, tx, models.MetaResult{
				ID:       metaID,
				WindowID: w.ID,
				SystemID: w.SystemID,
				Model:    a.llmCfg.MetaModel,
				Summary:  "skipped: no scored events in this window",
				CreatedAt: now,
			})
		})
	}

	openFindings, err := a.store.Findings.OpenAndAcknowledged(ctx, w.SystemID)
	if err != nil {
		return err
	}
	prevSummaries, err := a.store.Meta.RecentSummaries(ctx, w.SystemID, a.cfg.MetaContextWindowCount)
	if err != nil {
		return err
	}

	eventIDs := make([]string, len(events))
	for i, ev := range events {
		eventIDs[i] = ev.ID
	}
	scores, err := a.store.Scores.ScoresForEvents(ctx, eventIDs)
	if err != nil {
		return err
	}
	scoresByEvent := make(map[string]criteria.Vector, len(events))
	for _, sc := range scores {
		if c, ok := criteria.ByID(sc.CriterionID); ok {
			v := scoresByEvent[sc.EventID]
			v[c.ID-1] = sc.Score
			scoresByEvent[sc.EventID] = v
		}
	}

	mc := llm.MetaContext{
		WindowFrom:        w.FromTS.Format(time.RFC3339),
		WindowTo:          w.ToTS.Format(time.RFC3339),
		TemplateGroups:    groupByTemplate(events, scoresByEvent, a.cfg.FilterZeroScoreMetaEvents),
		PreviousSummaries: summaryTexts(prevSummaries),
		OpenFindings:      findingTexts(openFindings),
	}

	result, res, callErr := a.llm.Analyze(ctx, a.prompt, mc)
	now = time.Now()
	result.ID = metaID
	result.WindowID = w.ID
	result.SystemID = w.SystemID
	result.Model = a.llmCfg.MetaModel
	result.CreatedAt = now
	if callErr != nil {
		result.Failed = true
	}

	err = a.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := a.store.Meta.Insert(ctx, tx, result); err != nil {
			return err
		}

		if !result.Failed {
			blended := blend.Vector(a.cfg.WMeta, result.MetaScores, maxVector)
			for _, c := range criteria.All {
				es := models.EffectiveScore{
					WindowID:       w.ID,
					SystemID:       w.SystemID,
					CriterionID:    c.ID,
					EffectiveValue: blended[c.ID-1],
					MetaScore:      result.MetaScores[c.ID-1],
					MaxEventScore:  maxVector[c.ID-1],
				}
				if err := a.store.EffectiveScores.Upsert(ctx, tx, es); err != nil {
					return err
				}
			}

			if _, err := a.engine.Apply(ctx, tx, metaID, w.SystemID, result, openFindings, now); err != nil {
				return err
			}
		}

		usage := models.LlmUsage{
			ID:           uuid.NewString(),
			RunType:      "meta",
			Model:        a.llmCfg.MetaModel,
			SystemID:     w.SystemID,
			WindowID:     &w.ID,
			EventCount:   len(events),
			TokenInput:   res.InputTokens,
			TokenOutput:  res.OutputTokens,
			RequestCount: 1,
			CostEstimate: llm.EstimateCost(a.llmCfg, a.llmCfg.MetaModel, res.InputTokens, res.OutputTokens),
			CreatedAt:    now,
		}
		return a.store.LlmUsage.Insert(ctx, tx, usage)
	})
	return err
}

// groupByTemplate groups a window's events by their assigned template
// (falling back to raw message text for events scored before a
// template existed), carrying each group's worst severity and
// per-criterion max score alongside its occurrence count (§4.6 step 1).
// When filterZeroScored is set, events with no recorded score
// (cfg.filter_zero_score_meta_events) are dropped before grouping.
func groupByTemplate(events []models.Event, scoresByEvent map[string]criteria.Vector, filterZeroScored bool) []llm.TemplateGroup {
	type group struct {
		text   string
		sev    string
		count  int
		hosts  map[string]struct{}
		scores criteria.Vector
	}
	order := make([]string, 0)
	groups := make(map[string]*group)
	for _, ev := range events {
		vec, scored := scoresByEvent[ev.ID]
		if filterZeroScored && !scored {
			continue
		}

		key := ev.Message
		if ev.TemplateID != nil {
			key = *ev.TemplateID
		}
		g, ok := groups[key]
		if !ok {
			g = &group{text: ev.Message, hosts: make(map[string]struct{})}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
		if ev.Host != "" {
			g.hosts[ev.Host] = struct{}{}
		}
		if severityRank(ev.Severity) < severityRank(g.sev) {
			g.sev = ev.Severity
		}
		for i, v := range vec {
			if v > g.scores[i] {
				g.scores[i] = v
			}
		}
	}
	out := make([]llm.TemplateGroup, 0, len(order))
	for _, key := range order {
		g := groups[key]
		hosts := make([]string, 0, len(g.hosts))
		for h := range g.hosts {
			hosts = append(hosts, h)
		}
		out = append(out, llm.TemplateGroup{Text: g.text, Severity: g.sev, Count: g.count, Hosts: hosts, Scores: g.scores})
	}
	return out
}

var metaSeverityRank = map[string]int{
	"emergency": 0, "alert": 0, "critical": 0,
	"error": 1, "warning": 2, "notice": 3, "info": 3, "debug": 4,
}

func severityRank(sev string) int {
	if sev == "" {
		return 99
	}
	if r, ok := metaSeverityRank[sev]; ok {
		return r
	}
	return 98
}

func summaryTexts(results []models.MetaResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		if r.Summary != "" {
			out = append(out, r.Summary)
		}
	}
	return out
}

func findingTexts(findings []models.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Text
	}
	return out
}
