package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/sentinel/pkg/criteria"
	"github.com/codeready-toolchain/sentinel/pkg/errs"
)

// ScoringItem is one message submitted to the per-event scorer, keyed
// by an index the response echoes back so answers can be matched to
// inputs even when the LLM drops or reorders entries (§4.4 step 5).
type ScoringItem struct {
	Index   int
	Message string
}

type scoringResponseItem struct {
	Index  int                `json:"index"`
	Scores map[string]float64 `json:"scores"`
}

// ScoreBatch sends a chunk of messages to the scoring model and returns
// a score vector per input index. Indices missing from the response are
// simply absent from the result map — callers treat that as "no
// criterion scored above zero" rather than an error (§4.4, I2).
func (c *Client) ScoreBatch(ctx context.Context, systemPrompt string, items []ScoringItem) (map[int]criteria.Vector, Result, error) {
	var b strings.Builder
	b.WriteString("Score each numbered message against the six criteria. Respond with a JSON array of {\"index\": N, \"scores\": {\"<criterion_slug>\": 0.0-1.0, ...}}. Omit criteria that score 0.\n\n")
	for _, it := range items {
		fmt.Fprintf(&b, "%d: %s\n", it.Index, it.Message)
	}

	res, err := c.Call(ctx, c.cfg.ScoringModel, systemPrompt, b.String())
	if err != nil {
		return nil, Result{}, err
	}

	parsed, err := parseScoringResponse(res.Content)
	if err != nil {
		return nil, res, err
	}
	return parsed, res, nil
}

// parseScoringResponse tolerates empty, truncated, or malformed JSON by
// returning ErrLlmParse rather than panicking — callers fall back to
// treating the whole batch as unscored (§6.2 "malformed responses never
// crash the pipeline").
func parseScoringResponse(content string) (map[int]criteria.Vector, error) {
	content = extractJSON(content)
	if content == "" {
		return nil, errs.Wrap(errs.ErrLlmParse, "empty scoring response", errs.NewInvariant("llm", "no JSON found"))
	}

	var items []scoringResponseItem
	if err := json.Unmarshal([]byte(content), &items); err != nil {
		return nil, errs.Wrap(errs.ErrLlmParse, "decode scoring response", err)
	}

	out := make(map[int]criteria.Vector, len(items))
	for _, it := range items {
		var v criteria.Vector
		for slug, score := range it.Scores {
			v = v.Set(slug, score)
		}
		out[it.Index] = v.Clamp()
	}
	return out, nil
}

// extractJSON trims leading/trailing prose and markdown code fences some
// models wrap JSON in, returning the substring from the first '[' or '{'
// to the matching last ']' or '}'.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}
	openBracket, closeBracket := byte('['), byte(']')
	if s[start] == '{' {
		openBracket, closeBracket = '{', '}'
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case openBracket:
			depth++
		case closeBracket:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
