package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
	"github.com/codeready-toolchain/sentinel/pkg/models"
)

// defaultMessageMaxLength bounds a normalised message before it is
// persisted or sent to the LLM (§4.4). Overlong messages are
// truncated, not rejected.
const defaultMessageMaxLength = 512

// messageKeys is the priority order §4.1 rule 1 resolves "message"
// from: the first key present with non-blank content wins.
var messageKeys = []string{"message", "short_message", "msg"}

// ResolveMessage extracts the message field per §4.1 rule 1, trying
// messageKeys in order. ok is false if no key yielded non-blank text.
func ResolveMessage(raw models.RawEvent) (string, bool) {
	for _, key := range messageKeys {
		v, present := raw[key]
		if !present {
			continue
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		return s, true
	}
	return "", false
}

// rfc5424Severities maps the numeric 0-7 severity code (§4.1 rule 3) to
// its RFC-5424 name.
var rfc5424Severities = [8]string{
	"emergency", "alert", "critical", "error", "warning", "notice", "info", "debug",
}

// eventSeverityRank orders severities from most (0) to least severe,
// used by EnrichSeverity to decide whether body evidence should
// upgrade a header severity. Unrecognised names rank lowest so any
// recognised body evidence can upgrade them.
var eventSeverityRank = map[string]int{
	"emergency": 0,
	"alert":     0,
	"critical":  0,
	"error":     1,
	"warning":   2,
	"notice":    3,
	"info":      3,
	"debug":     4,
}

func severityRank(sev string) int {
	if r, ok := eventSeverityRank[sev]; ok {
		return r
	}
	return 99
}

// severityFromRaw resolves §4.1 rule 3: numeric 0-7 maps to RFC-5424
// names, strings are lower-cased, anything else is dropped.
func severityFromRaw(raw models.RawEvent) string {
	v, ok := raw["severity"]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(t))
	case float64:
		return severityFromNumeric(int(t))
	case int:
		return severityFromNumeric(t)
	}
	return ""
}

func severityFromNumeric(n int) string {
	if n < 0 || n > 7 {
		return ""
	}
	return rfc5424Severities[n]
}

// severityWords is the ordered, most-severe-first ruleset §4.1 rule 4
// scans message bodies against.
var severityWords = []struct {
	re  *regexp.Regexp
	sev string
}{
	{regexp.MustCompile(`(?i)\bpanic\b|kernel panic|\bfatal\b|\bemerg(ency)?\b`), "critical"},
	{regexp.MustCompile(`(?i)^ERROR:|level=error|out of memory|segfault|\berror\b|\berr\b|\bfail(ed|ure)?\b`), "error"},
	{regexp.MustCompile(`(?i)\bwarn(ing)?\b|deprecated`), "warning"},
	{regexp.MustCompile(`(?i)\bnotice\b|\binfo(rmation)?\b`), "info"},
	{regexp.MustCompile(`(?i)\bdebug\b`), "debug"},
}

func scanBodySeverity(message string) string {
	for _, sw := range severityWords {
		if sw.re.MatchString(message) {
			return sw.sev
		}
	}
	return ""
}

// EnrichSeverity implements §4.1 rule 4: content-based severity
// enrichment. The message body is always scanned, even when a header
// severity is present, and body evidence only ever upgrades the
// severity (never downgrades it).
func EnrichSeverity(existing, message string) string {
	header := strings.ToLower(strings.TrimSpace(existing))
	body := scanBodySeverity(message)

	switch {
	case header == "" && body == "":
		return "info"
	case header == "":
		return body
	case body == "":
		return header
	case severityRank(body) < severityRank(header):
		return body
	default:
		return header
	}
}

// isoLayouts are tried in order when the timestamp field is a string
// that isn't strict RFC3339 (§4.1 rule 2 "ISO 8601 strings").
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseISO8601(s string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// epochFromMagnitude classifies a numeric epoch value by magnitude
// (§4.1 rule 2): >1e18 nanoseconds, >1e15 microseconds, >1e12
// milliseconds, otherwise seconds.
func epochFromMagnitude(v float64) time.Time {
	switch {
	case v > 1e18:
		return time.Unix(0, int64(v))
	case v > 1e15:
		return time.Unix(0, int64(v*float64(time.Microsecond)))
	case v > 1e12:
		return time.Unix(0, int64(v*float64(time.Millisecond)))
	default:
		return time.Unix(int64(v), 0)
	}
}

// resolveTimestamp implements §4.1 rule 2: ISO-8601 strings or numeric
// epochs of any magnitude; anything unparseable falls back to
// receivedAt ("now").
func resolveTimestamp(raw models.RawEvent, receivedAt time.Time) time.Time {
	v, ok := raw["timestamp"]
	if !ok {
		return receivedAt
	}
	switch t := v.(type) {
	case string:
		if parsed, ok := parseISO8601(t); ok {
			return parsed
		}
		return receivedAt
	case float64:
		return epochFromMagnitude(t)
	case int64:
		return epochFromMagnitude(float64(t))
	case int:
		return epochFromMagnitude(float64(t))
	default:
		return receivedAt
	}
}

// Normalize builds a models.Event from a raw, already-reassembled
// payload (§4.1). messageMaxLength <= 0 uses the default of 512.
// tzOffsetMin, if non-nil, is the monitored system's timezone offset
// in minutes, subtracted from the resolved timestamp (rule 6).
func Normalize(systemID, logSourceID string, raw models.RawEvent, receivedAt time.Time, messageMaxLength int, tzOffsetMin *int) (models.Event, error) {
	message, ok := ResolveMessage(raw)
	if !ok {
		return models.Event{}, errs.Wrap(errs.ErrInputValidation, "normalize event", errs.NewInvariant("ingest", "empty message"))
	}
	if messageMaxLength <= 0 {
		messageMaxLength = defaultMessageMaxLength
	}

	message = DecodeEscapes(message)
	if len(message) > messageMaxLength {
		message = message[:messageMaxLength]
	}

	timestamp := resolveTimestamp(raw, receivedAt)
	if tzOffsetMin != nil {
		timestamp = timestamp.Add(-time.Duration(*tzOffsetMin) * time.Minute)
	}

	host, _ := raw["host"].(string)
	sourceIP, _ := raw["source_ip"].(string)
	service, _ := raw["service"].(string)
	facility, _ := raw["facility"].(string)
	program, _ := raw["program"].(string)
	traceID, _ := raw["trace_id"].(string)
	spanID, _ := raw["span_id"].(string)
	externalID, _ := raw["id"].(string)
	severity := EnrichSeverity(severityFromRaw(raw), message)

	e := models.Event{
		ID:          uuid.NewString(),
		SystemID:    systemID,
		LogSourceID: logSourceID,
		Timestamp:   timestamp,
		ReceivedAt:  receivedAt,
		Message:     message,
		Severity:    severity,
		Host:        host,
		SourceIP:    sourceIP,
		Service:     service,
		Facility:    facility,
		Program:     program,
		TraceID:     traceID,
		SpanID:      spanID,
		ExternalID:  externalID,
		Raw:         raw,
	}
	e.NormalizedHash = NormalizedHash(e)
	return e, nil
}

// NormalizedHash is the SHA-256 of the event's identity-bearing fields
// (UTC RFC3339Nano timestamp, message, host, source_ip, service, program,
// facility) joined by null bytes, used for write-time dedup on
// (normalized_hash, timestamp) (§3).
func NormalizedHash(e models.Event) string {
	parts := []string{e.Timestamp.UTC().Format(time.RFC3339Nano), e.Message, e.Host, e.SourceIP, e.Service, e.Program, e.Facility}
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}
