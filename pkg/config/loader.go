package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read sentinel.yaml from configDir (missing file is not fatal —
//     built-in defaults are used).
//  2. Expand environment variable references.
//  3. Parse YAML into structs.
//  4. Merge user-defined values over built-in defaults.
//  5. Validate.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	yamlCfg, err := loadYAML(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	pipeline := DefaultPipelineConfig()
	if yamlCfg.Pipeline != nil {
		if err := mergo.Merge(pipeline, yamlCfg.Pipeline, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge pipeline config: %w", err)
		}
	}

	prompts := DefaultSystemPrompts()
	if yamlCfg.Prompts != nil {
		if err := mergo.Merge(prompts, yamlCfg.Prompts, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge prompts config: %w", err)
		}
	}

	llmCfg := DefaultLLMConfig()
	if yamlCfg.LLM != nil {
		if err := mergo.Merge(llmCfg, yamlCfg.LLM, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge llm config: %w", err)
		}
	}

	redisCfg := DefaultRedisConfig()
	if yamlCfg.Redis != nil {
		if err := mergo.Merge(redisCfg, yamlCfg.Redis, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge redis config: %w", err)
		}
	}

	cfg := &Config{
		configDir: configDir,
		Pipeline:  pipeline,
		Prompts:   prompts,
		LLM:       llmCfg,
		Redis:     redisCfg,
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized successfully",
		"window_minutes", cfg.Pipeline.WindowMinutes,
		"w_meta", cfg.Pipeline.WMeta,
		"orchestrator_interval", cfg.Pipeline.OrchestratorInterval)

	return cfg, nil
}

func loadYAML(configDir string) (*YAMLConfig, error) {
	path := filepath.Join(configDir, "sentinel.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("sentinel.yaml not found, using built-in defaults", "path", path)
			return &YAMLConfig{}, nil
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(string(data))

	var cfg YAMLConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Pipeline.WMeta < 0 || cfg.Pipeline.WMeta > 1 {
		return NewValidationError("pipeline.w_meta", "must be in [0,1]")
	}
	if cfg.Pipeline.WindowMinutes <= 0 {
		return NewValidationError("pipeline.window_minutes", "must be positive")
	}
	if cfg.Pipeline.ScoringBatchSize <= 0 || cfg.Pipeline.ScoringBatchSize > 100 {
		return NewValidationError("pipeline.scoring_batch_size", "must be in (0,100]")
	}
	if cfg.LLM.BaseURL == "" {
		return NewValidationError("llm.base_url", "must not be empty")
	}
	return nil
}
