package config

import "time"

// PipelineConfig holds every token-optimisation, windowing, and
// lifecycle knob named in spec.md §4. It is the typed projection of the
// `app_config(key, value json)` table (§6.4): at the start of every tick
// the orchestrator reads the "pipeline" key through store.AppConfig.Get
// and, when the row exists, uses it in place of the loaded value;
// sentinel.yaml and the built-in defaults supply the value otherwise.
// Nothing writes the defaults into the table.
type PipelineConfig struct {
	// Scoring (§4.4)
	ChunkSize              int           `yaml:"chunk_size"`
	ScoringBatchSize       int           `yaml:"scoring_batch_size"`
	MessageMaxLength       int           `yaml:"message_max_length"`
	ScoreCacheTTLMinutes   int           `yaml:"score_cache_ttl_minutes"`
	LowScoreMinScorings    int           `yaml:"low_score_min_scorings"`
	LowScoreThreshold      float64       `yaml:"low_score_threshold"`
	SeveritySkipEnabled    bool          `yaml:"severity_skip_enabled"`
	SeveritySkipSet        []string      `yaml:"severity_skip_set"`
	SeveritySkipDefault    float64       `yaml:"severity_skip_default_value"`
	MaxScoringJobDuration  time.Duration `yaml:"max_scoring_job_duration"`

	// Windowing (§4.5)
	WindowMinutes int `yaml:"window_minutes"`

	// Meta-analysis (§4.6)
	MetaContextWindowCount   int  `yaml:"meta_context_window_count"`
	SkipZeroScoreMeta        bool `yaml:"skip_zero_score_meta"`
	FilterZeroScoreMetaEvents bool `yaml:"filter_zero_score_meta_events"`
	MaxEventsPerWindow        int  `yaml:"max_events_per_window"`

	// Effective-score blending (§3 I4)
	WMeta float64 `yaml:"w_meta"`

	// Finding lifecycle (§4.7)
	MaxNewFindingsPerWindow     int     `yaml:"max_new_findings_per_window"`
	MaxOpenFindingsPerSystem    int     `yaml:"max_open_findings_per_system"`
	AutoResolveAfterMisses      int     `yaml:"auto_resolve_after_misses"`
	SeverityDecayAfterOccurrences int   `yaml:"severity_decay_after_occurrences"`
	SeverityDecayEnabled        bool    `yaml:"severity_decay_enabled"`
	FuzzyDedupEnabled           bool    `yaml:"fuzzy_dedup_enabled"`
	FindingDedupThreshold       float64 `yaml:"finding_dedup_threshold"`
	FuzzyDedupWindow            int     `yaml:"fuzzy_dedup_window"`

	// Orchestrator (§4.9)
	OrchestratorInterval time.Duration `yaml:"orchestrator_interval"`

	// Retention (§1, §9)
	DefaultRetentionDays int `yaml:"default_retention_days"`
}

// SystemPrompts holds the overridable LLM system prompts (§6.3).
type SystemPrompts struct {
	Scoring string `yaml:"scoring"`
	Meta    string `yaml:"meta"`
}

// LLMConfig configures the HTTP LLM oracle adapter (§6.2).
type LLMConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	ScoringModel  string        `yaml:"scoring_model"`
	MetaModel     string        `yaml:"meta_model"`
	Temperature   float64       `yaml:"temperature"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
	RequestsPerSecond float64   `yaml:"requests_per_second"`
	MaxRetries    int           `yaml:"max_retries"`
	// CostPerMillionInputTokens / OutputTokens keyed by model name, used
	// to populate llm_usage.cost_estimate.
	CostPerMillionInputTokens  map[string]float64 `yaml:"cost_per_million_input_tokens"`
	CostPerMillionOutputTokens map[string]float64 `yaml:"cost_per_million_output_tokens"`
}

// RedisConfig configures the router cache broadcast and partition lease.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password_env"`
	DB       int    `yaml:"db"`
}

// YAMLConfig is the structure of sentinel.yaml on disk.
type YAMLConfig struct {
	Pipeline *PipelineConfig `yaml:"pipeline"`
	Prompts  *SystemPrompts  `yaml:"prompts"`
	LLM      *LLMConfig      `yaml:"llm"`
	Redis    *RedisConfig    `yaml:"redis"`
}

// Config is the umbrella configuration object returned by Initialize.
type Config struct {
	configDir string
	Pipeline  *PipelineConfig
	Prompts   *SystemPrompts
	LLM       *LLMConfig
	Redis     *RedisConfig
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string { return c.configDir }
