package config

import (
	"os"
	"strings"
)

// ResolveSecret resolves a secret reference of the form "env:VAR_NAME"
// (§6.5: "Secrets are resolved via env:VAR_NAME references, never stored
// plaintext"). If ref does not have the "env:" prefix, it is returned
// unchanged (treated as a literal, non-secret value). Returns
// ErrMissingSecret if the referenced variable is unset or empty.
func ResolveSecret(ref string) (string, error) {
	const prefix = "env:"
	if !strings.HasPrefix(ref, prefix) {
		return ref, nil
	}
	name := strings.TrimPrefix(ref, prefix)
	val := os.Getenv(name)
	if val == "" {
		return "", NewLoadError(name, ErrMissingSecret)
	}
	return val, nil
}

// ExpandEnv replaces ${VAR} and $VAR references in s using os.Getenv,
// matching the shell-style expansion the teacher applies to YAML files
// before parsing.
func ExpandEnv(s string) string {
	return os.Expand(s, os.Getenv)
}
