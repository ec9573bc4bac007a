// Package scorer implements the per-event scorer (§4.4): it fetches
// unscored events, filters out the ones that don't need an LLM call
// (orphan fragments, normal-behavior matches, cache hits, severities on
// the skip list), batches the remainder to the LLM, and persists
// per-criterion scores plus the template score cache.
package scorer

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/sentinel/pkg/config"
	"github.com/codeready-toolchain/sentinel/pkg/criteria"
	"github.com/codeready-toolchain/sentinel/pkg/llm"
	"github.com/codeready-toolchain/sentinel/pkg/models"
	"github.com/codeready-toolchain/sentinel/pkg/store"
	"github.com/codeready-toolchain/sentinel/pkg/template"
)

// Scorer runs one scoring pass for a system.
type Scorer struct {
	store    *store.Store
	llm      *llm.Client
	llmCfg   *config.LLMConfig
	cfg      *config.PipelineConfig
	prompt   string
}

// New builds a Scorer over store, calling llmClient for uncached
// messages, with knobs from cfg and the scoring system prompt.
func New(s *store.Store, llmClient *llm.Client, llmCfg *config.LLMConfig, cfg *config.PipelineConfig, scoringPrompt string) *Scorer {
	return &Scorer{store: s, llm: llmClient, llmCfg: llmCfg, cfg: cfg, prompt: scoringPrompt}
}

// Run scores up to ChunkSize unscored events for systemID, stopping
// early if MaxScoringJobDuration elapses (§4.4 step 9: "a soft deadline
// bounds one scoring run; leftover events are picked up next run").
func (s *Scorer) Run(ctx context.Context, systemID string) error {
	deadline := time.Now().Add(s.cfg.MaxScoringJobDuration)
	if s.cfg.MaxScoringJobDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	events, err := s.store.Events.FetchUnscored(ctx, systemID, s.cfg.ChunkSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	normalBehaviors, err := s.store.NormalBehavior.EnabledForSystem(ctx, systemID)
	if err != nil {
		return err
	}

	var toCall []llm.ScoringItem
	eventByIndex := make(map[int]models.Event, len(events))
	// templateGroups collapses every event sharing a freshly-seen
	// template into one LLM scoring item keyed by the representative
	// event's index (§4.4 step 4: "events sharing a template are scored
	// once, as a group, not once per event").
	templateGroups := make(map[string][]int)
	var scoredEventIDs []string
	var allScores []models.EventScore
	var cacheUpdates []store.UpdateCacheRow
	now := time.Now()

	for i, ev := range events {
		if s.cfg.MaxScoringJobDuration > 0 && time.Now().After(deadline) {
			break // leave the rest unscored for next run
		}

		if template.IsOrphanFragment(ev.Message) {
			scoredEventIDs = append(scoredEventIDs, ev.ID)
			continue
		}
		if matchesNormalBehavior(ev, normalBehaviors) {
			scoredEventIDs = append(scoredEventIDs, ev.ID)
			continue
		}
		if s.cfg.SeveritySkipEnabled && inSkipSet(ev.Severity, s.cfg.SeveritySkipSet) {
			scoredEventIDs = append(scoredEventIDs, ev.ID)
			if s.cfg.SeveritySkipDefault > 0 {
				allScores = append(allScores, nonZeroRows(ev.ID, uniformVector(s.cfg.SeveritySkipDefault))...)
			}
			continue
		}

		canonical := template.Canonicalize(ev.Message)
		patternHash := template.PatternHash(canonical)
		existing, lookupErr := s.store.Templates.GetByPatternHash(ctx, systemID, patternHash)

		if lookupErr == nil && cacheFresh(existing, s.cfg.ScoreCacheTTLMinutes, now) {
			if err := s.store.Events.AssignTemplate(ctx, ev.ID, existing.ID); err != nil {
				return err
			}
			scoredEventIDs = append(scoredEventIDs, ev.ID)
			if existing.CachedScores != nil {
				allScores = append(allScores, nonZeroRows(ev.ID, *existing.CachedScores)...)
			}
			continue
		}

		tpl, err := s.store.Templates.UpsertOnSight(ctx, systemID, uuid.NewString(), patternHash, canonical, now)
		if err != nil {
			return err
		}
		if err := s.store.Events.AssignTemplate(ctx, ev.ID, tpl.ID); err != nil {
			return err
		}

		if s.cfg.LowScoreMinScorings > 0 && tpl.ScoreCount >= s.cfg.LowScoreMinScorings && tpl.AvgMaxScore < s.cfg.LowScoreThreshold {
			// §4.4 "templates that have repeatedly scored near zero are
			// auto-skipped after enough observations".
			scoredEventIDs = append(scoredEventIDs, ev.ID)
			continue
		}

		idx := i
		ev.TemplateID = &tpl.ID
		eventByIndex[idx] = ev
		templateGroups[tpl.ID] = append(templateGroups[tpl.ID], idx)
	}

	for _, members := range templateGroups {
		rep := eventByIndex[members[0]]
		toCall = append(toCall, llm.ScoringItem{Index: members[0], Message: rep.Message})
	}

	var totalInputTokens, totalOutputTokens, requestCount int
	for _, batch := range chunkItems(toCall, s.cfg.ScoringBatchSize) {
		if ctx.Err() != nil {
			break
		}
		results, res, err := s.llm.ScoreBatch(ctx, s.prompt, batch)
		if err != nil {
			slog.Error("scoring batch failed", "system_id", systemID, "error", err)
			continue
		}
		requestCount++
		totalInputTokens += res.InputTokens
		totalOutputTokens += res.OutputTokens

		for _, item := range batch {
			rep := eventByIndex[item.Index]
			vec := results[item.Index] // missing index -> zero vector (I2)
			members := templateGroups[*rep.TemplateID]
			for _, memberIdx := range members {
				ev := eventByIndex[memberIdx]
				scoredEventIDs = append(scoredEventIDs, ev.ID)
				allScores = append(allScores, nonZeroRows(ev.ID, vec)...)
			}
			cacheUpdates = append(cacheUpdates, store.UpdateCacheRow{
				TemplateID:   *rep.TemplateID,
				LastScoredAt: now,
				CachedScores: vec,
				ScoreCount:   1,
				AvgMaxScore:  vec.Max(),
			})
		}
	}

	if len(allScores) > 0 {
		if err := s.store.Scores.Insert(ctx, allScores); err != nil {
			return err
		}
	}
	if len(cacheUpdates) > 0 {
		if err := s.store.Templates.UpdateCacheBatch(ctx, cacheUpdates); err != nil {
			return err
		}
	}
	if err := s.store.Events.MarkScored(ctx, scoredEventIDs, now); err != nil {
		return err
	}

	if requestCount > 0 {
		eventCount := 0
		for _, members := range templateGroups {
			eventCount += len(members)
		}
		usage := models.LlmUsage{
			ID:           uuid.NewString(),
			RunType:      "scoring",
			Model:        s.llmCfg.ScoringModel,
			SystemID:     systemID,
			EventCount:   eventCount,
			TokenInput:   totalInputTokens,
			TokenOutput:  totalOutputTokens,
			RequestCount: requestCount,
			CostEstimate: llm.EstimateCost(s.llmCfg, s.llmCfg.ScoringModel, totalInputTokens, totalOutputTokens),
			CreatedAt:    now,
		}
		if err := s.store.LlmUsage.Insert(ctx, s.store.DB(), usage); err != nil {
			return err
		}
	}
	return nil
}

func inSkipSet(severity string, set []string) bool {
	for _, s := range set {
		if s == severity {
			return true
		}
	}
	return false
}

func uniformVector(v float64) criteria.Vector {
	var out criteria.Vector
	for i := range out {
		out[i] = v
	}
	return out
}

func nonZeroRows(eventID string, v criteria.Vector) []models.EventScore {
	var out []models.EventScore
	for _, c := range criteria.All {
		score := v[c.ID-1]
		if score == 0 {
			continue // I2: zero scores are never persisted
		}
		out = append(out, models.EventScore{EventID: eventID, CriterionID: c.ID, ScoreType: "event", Score: score})
	}
	return out
}

func cacheFresh(t *models.MessageTemplate, ttlMinutes int, now time.Time) bool {
	if t.LastScoredAt == nil || t.CachedScores == nil {
		return false
	}
	if ttlMinutes <= 0 {
		return true
	}
	return now.Sub(*t.LastScoredAt) < time.Duration(ttlMinutes)*time.Minute
}

func matchesNormalBehavior(ev models.Event, templates []models.NormalBehaviorTemplate) bool {
	for _, t := range templates {
		re, err := regexp.Compile(t.MessagePattern)
		if err != nil || !re.MatchString(ev.Message) {
			continue
		}
		if t.HostPattern != nil {
			if hre, err := regexp.Compile(*t.HostPattern); err != nil || !hre.MatchString(ev.Host) {
				continue
			}
		}
		if t.ProgramPattern != nil {
			if pre, err := regexp.Compile(*t.ProgramPattern); err != nil || !pre.MatchString(ev.Program) {
				continue
			}
		}
		return true
	}
	return false
}

func chunkItems(items []llm.ScoringItem, size int) [][]llm.ScoringItem {
	if size <= 0 {
		size = len(items)
	}
	var out [][]llm.ScoringItem
	for size > 0 && len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}
