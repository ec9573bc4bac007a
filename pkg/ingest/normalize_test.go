package ingest

import (
	"testing"
	"time"

	"github.com/codeready-toolchain/sentinel/pkg/models"
)

func TestResolveMessagePriority(t *testing.T) {
	raw := models.RawEvent{"short_message": "fallback", "msg": "lowest"}
	msg, ok := ResolveMessage(raw)
	if !ok || msg != "fallback" {
		t.Errorf("ResolveMessage() = %q, %v, want short_message to win over msg", msg, ok)
	}

	raw["message"] = "primary"
	msg, ok = ResolveMessage(raw)
	if !ok || msg != "primary" {
		t.Errorf("ResolveMessage() = %q, %v, want message to win over all", msg, ok)
	}
}

func TestResolveMessageBlankSkipped(t *testing.T) {
	raw := models.RawEvent{"message": "   ", "msg": "real content"}
	msg, ok := ResolveMessage(raw)
	if !ok || msg != "real content" {
		t.Errorf("ResolveMessage() should skip blank message and fall through to msg, got %q, %v", msg, ok)
	}
}

func TestSeverityFromRawNumeric(t *testing.T) {
	raw := models.RawEvent{"severity": float64(3)}
	if got := severityFromRaw(raw); got != "error" {
		t.Errorf("severityFromRaw(3) = %q, want error", got)
	}
}

func TestSeverityFromRawOutOfRange(t *testing.T) {
	raw := models.RawEvent{"severity": float64(9)}
	if got := severityFromRaw(raw); got != "" {
		t.Errorf("severityFromRaw(9) = %q, want empty", got)
	}
}

func TestEnrichSeverityUpgradesOnly(t *testing.T) {
	// header says info, body screams panic: upgrade to critical.
	if got := EnrichSeverity("info", "kernel panic detected"); got != "critical" {
		t.Errorf("EnrichSeverity() = %q, want critical", got)
	}
	// header already critical, body is mundane: never downgrade.
	if got := EnrichSeverity("critical", "service started"); got != "critical" {
		t.Errorf("EnrichSeverity() = %q, want critical (no downgrade)", got)
	}
	// no header, no body evidence: defaults to info.
	if got := EnrichSeverity("", "heartbeat ok"); got != "info" {
		t.Errorf("EnrichSeverity() = %q, want info", got)
	}
}

func TestResolveTimestampISO8601(t *testing.T) {
	raw := models.RawEvent{"timestamp": "2024-03-01T12:00:00Z"}
	got := resolveTimestamp(raw, time.Now())
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("resolveTimestamp() = %v, want %v", got, want)
	}
}

func TestResolveTimestampEpochMagnitude(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		value float64
	}{
		{"seconds", 1_700_000_000},
		{"millis", 1_700_000_000_000},
		{"micros", 1_700_000_000_000_000},
		{"nanos", 1_700_000_000_000_000_000},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw := models.RawEvent{"timestamp": c.value}
			got := resolveTimestamp(raw, now)
			if got.Year() < 2023 || got.Year() > 2024 {
				t.Errorf("resolveTimestamp(%v) = %v, year out of expected range", c.value, got)
			}
		})
	}
}

func TestResolveTimestampUnparseableFallsBackToNow(t *testing.T) {
	now := time.Date(2024, 5, 5, 5, 5, 5, 0, time.UTC)
	raw := models.RawEvent{"timestamp": "not-a-date"}
	got := resolveTimestamp(raw, now)
	if !got.Equal(now) {
		t.Errorf("resolveTimestamp() = %v, want fallback %v", got, now)
	}
}

func TestNormalizeAppliesTimezoneOffset(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := models.RawEvent{"message": "boot complete", "timestamp": "2024-01-01T10:00:00Z"}
	offset := 120 // system is UTC+2: subtract 120 minutes to normalise to UTC
	ev, err := Normalize("sys1", "src1", raw, now, 0, &offset)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("Normalize() timestamp = %v, want %v", ev.Timestamp, want)
	}
}

func TestNormalizeRejectsEmptyMessage(t *testing.T) {
	raw := models.RawEvent{"host": "web1"}
	if _, err := Normalize("sys1", "src1", raw, time.Now(), 0, nil); err == nil {
		t.Error("Normalize() should reject a payload with no resolvable message")
	}
}

func TestNormalizeTruncatesOverlongMessages(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	raw := models.RawEvent{"message": string(long)}
	ev, err := Normalize("sys1", "src1", raw, time.Now(), 100, nil)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(ev.Message) != 100 {
		t.Errorf("Normalize() message length = %d, want 100", len(ev.Message))
	}
}

func TestNormalizedHashStableAndSensitive(t *testing.T) {
	e1 := models.Event{SystemID: "s", Host: "h", Service: "svc", Program: "p", Message: "m"}
	e2 := e1
	if NormalizedHash(e1) != NormalizedHash(e2) {
		t.Error("NormalizedHash must be deterministic")
	}
	e2.Message = "different"
	if NormalizedHash(e1) == NormalizedHash(e2) {
		t.Error("NormalizedHash must vary with message content")
	}
}
