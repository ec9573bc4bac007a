// Package finding implements the finding lifecycle engine (§4.7):
// turning a meta-analyser's new_findings/resolved_indices into
// persistent Finding rows with dedup, severity decay, and staleness
// tracking.
package finding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/sentinel/pkg/config"
	"github.com/codeready-toolchain/sentinel/pkg/models"
	"github.com/codeready-toolchain/sentinel/pkg/store"
)

// Engine applies one window's meta-analysis result to the findings
// table for a system.
type Engine struct {
	store *store.Store
	cfg   *config.PipelineConfig
}

// New builds an Engine over store using cfg's lifecycle knobs.
func New(s *store.Store, cfg *config.PipelineConfig) *Engine {
	return &Engine{store: s, cfg: cfg}
}

var (
	fingerprintUUID = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	fingerprintNum  = regexp.MustCompile(`\d+`)
)

// Fingerprint derives the canonical dedup key for a finding: the text
// lower-cased with whitespace collapsed, UUIDs and numbers replaced by
// sentinels, truncated to 120 chars, hashed together with system,
// severity and criterion, so near-identical findings from different
// windows collapse onto the same row (§4.7).
func Fingerprint(systemID, severity, criterionSlug, text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	normalized = fingerprintUUID.ReplaceAllString(normalized, "<uuid>")
	normalized = fingerprintNum.ReplaceAllString(normalized, "<num>")
	if len(normalized) > 120 {
		normalized = normalized[:120]
	}
	h := sha256.Sum256([]byte(systemID + "\x00" + severity + "\x00" + criterionSlug + "\x00" + normalized))
	return hex.EncodeToString(h[:])
}

// Apply processes a meta-analysis result within the given transaction
// querier: resolves findings named by ResolvedIndices, deduplicates and
// ingests NewFindings (capped at MaxNewFindingsPerWindow, most severe
// first), and ages out findings not re-seen this window
// (consecutive_misses, auto-resolve, severity decay) (§4.7).
func (e *Engine) Apply(ctx context.Context, q store.Querier, metaID, systemID string, mr models.MetaResult, openFindings []models.Finding, now time.Time) ([]string, error) {
	var resolvedIDs []string
	for _, idx := range mr.ResolvedIndices {
		if idx < 1 || idx > len(openFindings) {
			continue
		}
		f := openFindings[idx-1]
		if err := e.store.Findings.ResolveByMeta(ctx, q, f.ID, metaID, now); err != nil {
			return nil, err
		}
		resolvedIDs = append(resolvedIDs, f.ID)
	}

	findings := sortBySeverity(mr.NewFindings)
	if e.cfg.MaxNewFindingsPerWindow > 0 && len(findings) > e.cfg.MaxNewFindingsPerWindow {
		findings = findings[:e.cfg.MaxNewFindingsPerWindow]
	}

	var seenIDs []string
	openCount, err := e.store.Findings.CountOpen(ctx, q, systemID)
	if err != nil {
		return nil, err
	}

	for _, nf := range findings {
		fp := Fingerprint(systemID, nf.Severity, nf.Criterion, nf.Text)
		existing, err := e.store.Findings.ByFingerprint(ctx, q, systemID, fp)
		if err == nil {
			sev := models.FindingSeverity(existing.Severity)
			if e.cfg.SeverityDecayEnabled && existing.OccurrenceCount+1 >= e.cfg.SeverityDecayAfterOccurrences {
				sev = sev.Decayed()
			}
			if err := e.store.Findings.ReoccurOrDecay(ctx, q, existing.ID, now, sev); err != nil {
				return nil, err
			}
			seenIDs = append(seenIDs, existing.ID)
			continue
		}

		if e.cfg.MaxOpenFindingsPerSystem > 0 && openCount >= e.cfg.MaxOpenFindingsPerSystem {
			continue // §4.7: system is at its open-finding cap, drop new ones silently
		}

		sev := models.FindingSeverity(nf.Severity)
		newFinding := models.Finding{
			ID:                uuid.NewString(),
			SystemID:          systemID,
			Status:            models.FindingOpen,
			Severity:          sev,
			OriginalSeverity:  sev,
			CriterionSlug:     nf.Criterion,
			Text:              nf.Text,
			Fingerprint:       fp,
			OccurrenceCount:   1,
			ConsecutiveMisses: 0,
			CreatedByMetaID:   metaID,
			CreatedAt:         now,
			LastSeenAt:        now,
		}
		if err := e.store.Findings.Create(ctx, q, newFinding); err != nil {
			return nil, err
		}
		seenIDs = append(seenIDs, newFinding.ID)
		openCount++
	}

	if _, err := e.store.Findings.IncrementMisses(ctx, q, systemID, seenIDs, e.cfg.AutoResolveAfterMisses, now); err != nil {
		return nil, err
	}

	return resolvedIDs, nil
}

func sortBySeverity(findings []models.MetaFinding) []models.MetaFinding {
	out := make([]models.MetaFinding, len(findings))
	copy(out, findings)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && models.FindingSeverity(out[j].Severity).Rank() < models.FindingSeverity(out[j-1].Severity).Rank(); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
