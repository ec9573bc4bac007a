package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitializeDefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Pipeline.WindowMinutes)
	require.Equal(t, 0.7, cfg.Pipeline.WMeta)
	require.NotEmpty(t, cfg.LLM.BaseURL)
}

func TestInitializeMergesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
pipeline:
  window_minutes: 10
  w_meta: 0.5
llm:
  base_url: "https://llm.example.com"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentinel.yaml"), []byte(yaml), 0o600))

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Pipeline.WindowMinutes)
	require.Equal(t, 0.5, cfg.Pipeline.WMeta)
	require.Equal(t, "https://llm.example.com", cfg.LLM.BaseURL)
	// Untouched defaults remain.
	require.Equal(t, 5000, cfg.Pipeline.ChunkSize)
}

func TestInitializeRejectsInvalidWMeta(t *testing.T) {
	dir := t.TempDir()
	yaml := "pipeline:\n  w_meta: 1.5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentinel.yaml"), []byte(yaml), 0o600))

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
}

func TestResolveSecret(t *testing.T) {
	t.Setenv("SENTINEL_TEST_SECRET", "hunter2")

	v, err := ResolveSecret("env:SENTINEL_TEST_SECRET")
	require.NoError(t, err)
	require.Equal(t, "hunter2", v)

	v, err = ResolveSecret("literal-value")
	require.NoError(t, err)
	require.Equal(t, "literal-value", v)

	_, err = ResolveSecret("env:SENTINEL_TEST_MISSING")
	require.Error(t, err)
}
