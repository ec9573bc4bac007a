// Package errs defines the error taxonomy shared across the pipeline
// (spec §7). Component boundaries never let an untyped error escape the
// orchestrator: every error returned across a package boundary is, or
// wraps, one of the sentinels below so the orchestrator can classify it
// and decide whether to retry, skip, or abort.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInputValidation marks malformed ingest records or rule config.
	// Never retried; surfaced to the caller as-is.
	ErrInputValidation = errors.New("input validation failed")

	// ErrTransientIO marks a retryable DB or LLM HTTP failure. The unit
	// of work is retried on the next pipeline tick.
	ErrTransientIO = errors.New("transient I/O failure")

	// ErrLlmCall marks a failed LLM HTTP call (non-2xx, timeout,
	// connection failure). The affected batch/window is marked failed.
	ErrLlmCall = errors.New("llm call failed")

	// ErrLlmParse marks a response that could not be decoded into the
	// expected JSON contract.
	ErrLlmParse = errors.New("llm response parse failed")

	// ErrMetaParse marks a meta-analysis response that failed to parse.
	// The window is recorded with an empty meta-result; no alerts run.
	ErrMetaParse = errors.New("meta-analysis response parse failed")

	// ErrFatalConfig marks missing or invalid configuration at startup.
	// The process must abort.
	ErrFatalConfig = errors.New("fatal configuration error")

	// ErrInvariant marks a code-level assertion failure (e.g. an
	// orphaned foreign key). The affected unit is skipped, never
	// silently treated as success.
	ErrInvariant = errors.New("invariant violation")

	// ErrNotFound is returned when a lookup misses.
	ErrNotFound = errors.New("not found")
)

// Wrap annotates err with msg while preserving errors.Is/As against the
// sentinel it was constructed from.
func Wrap(sentinel error, msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, sentinel)
	}
	return fmt.Errorf("%s: %w: %v", msg, sentinel, err)
}

// Invariant builds an ErrInvariant with context, matching the teacher's
// ValidationError{Field, Message} shape.
type Invariant struct {
	Component string
	Message   string
}

func (e *Invariant) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Component, e.Message)
}

func (e *Invariant) Unwrap() error { return ErrInvariant }

// NewInvariant constructs an *Invariant error.
func NewInvariant(component, message string) error {
	return &Invariant{Component: component, Message: message}
}
