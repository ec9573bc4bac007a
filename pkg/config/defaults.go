package config

import "time"

// DefaultPipelineConfig returns the knob defaults named throughout
// spec.md §4. sentinel.yaml may override any subset; mergo fills the
// rest from these values.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		ChunkSize:                 5000,
		ScoringBatchSize:          20,
		MessageMaxLength:          512,
		ScoreCacheTTLMinutes:      60,
		LowScoreMinScorings:       5,
		LowScoreThreshold:         0.05,
		SeveritySkipEnabled:       true,
		SeveritySkipSet:           []string{"debug"},
		SeveritySkipDefault:       0,
		MaxScoringJobDuration:     10 * time.Minute,
		WindowMinutes:             5,
		MetaContextWindowCount:    5,
		SkipZeroScoreMeta:         true,
		FilterZeroScoreMetaEvents: false,
		MaxEventsPerWindow:        200,
		WMeta:                     0.7,
		MaxNewFindingsPerWindow:   5,
		MaxOpenFindingsPerSystem:  25,
		AutoResolveAfterMisses:    5,
		SeverityDecayAfterOccurrences: 10,
		SeverityDecayEnabled:      true,
		FuzzyDedupEnabled:         false,
		FindingDedupThreshold:     0.6,
		FuzzyDedupWindow:          20,
		OrchestratorInterval:      5 * time.Minute,
		DefaultRetentionDays:      90,
	}
}

// DefaultSystemPrompts returns the canonical prompts from spec.md §6.3.
func DefaultSystemPrompts() *SystemPrompts {
	return &SystemPrompts{
		Scoring: "Return {scores:[{it_security, performance_degradation, failure_prediction, anomaly, compliance_audit, operational_risk}]} one element per input event, floats in [0,1].",
		Meta:    "Given the system specification, previous summaries, currently-open findings indexed 1..N, and the current-window events with their scores, return {meta_scores, summary, new_findings:[{text, severity in {critical,high,medium,low,info}, criterion?}], resolved_indices:[int], recommended_action?}.",
	}
}

// DefaultLLMConfig returns conservative defaults for the LLM oracle
// adapter.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		BaseURL:           "http://localhost:11434/v1",
		APIKeyEnv:         "LLM_API_KEY",
		ScoringModel:      "gpt-4o-mini",
		MetaModel:         "gpt-4o-mini",
		Temperature:       0.1,
		CallTimeout:       30 * time.Second,
		RequestsPerSecond: 5,
		MaxRetries:        3,
		CostPerMillionInputTokens:  map[string]float64{"gpt-4o-mini": 0.15},
		CostPerMillionOutputTokens: map[string]float64{"gpt-4o-mini": 0.60},
	}
}

// DefaultRedisConfig returns the local-dev default.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{Addr: "localhost:6379", DB: 0}
}
