// Package models holds the domain structs persisted by pkg/store. JSON
// columns are unmarshaled into these typed structs at the store boundary;
// business logic never sees a bare map[string]interface{} for a
// persisted field.
package models

import "time"

// MonitoredSystem is a logical unit (server, service, cluster) whose
// events, windows, and findings cascade-delete with it.
type MonitoredSystem struct {
	ID                   string
	Name                 string
	Description          string
	RetentionDays        *int
	TimezoneOffsetMin    *int
	EventSourceSelector  string // "local" or "external_search"
	CreatedAt            time.Time
}

// LogSource is a routing rule owned by one system.
type LogSource struct {
	ID        string
	SystemID  string
	Label     string
	Selector  map[string]string // field name -> regex pattern
	Priority  int
	Active    bool
	CreatedAt time.Time
}

// RawEvent is the heterogeneous, pre-normalisation representation of one
// ingest record: an unordered mapping from field name to value.
type RawEvent map[string]any

// Event is a normalised, stored log line.
type Event struct {
	ID              string
	SystemID        string
	LogSourceID     string
	Timestamp       time.Time
	ReceivedAt      time.Time
	Message         string
	Severity        string
	Host            string
	SourceIP        string
	Service         string
	Facility        string
	Program         string
	TraceID         string
	SpanID          string
	ExternalID      string
	Raw             map[string]any
	NormalizedHash  string
	AcknowledgedAt  *time.Time
	ScoredAt        *time.Time
	TemplateID      *string
}

// MessageTemplate is the canonicalised, deduplicated form of a message.
type MessageTemplate struct {
	ID              string
	SystemID        string
	TemplateText    string
	PatternHash     string
	OccurrenceCount int
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
	LastScoredAt    *time.Time
	CachedScores    *[6]float64
	ScoreCount      int
	AvgMaxScore     float64
}

// Window is a closed-open time interval scoped to a system.
type Window struct {
	ID       string
	SystemID string
	FromTS   time.Time
	ToTS     time.Time
	Trigger  string // "time" | "event-count"
	CreatedAt time.Time
}

// EventScore is a per-event, per-criterion score. Rows with score == 0
// are never persisted (I2).
type EventScore struct {
	EventID      string
	CriterionID  int
	ScoreType    string // always "event"
	Score        float64
}

// MetaFinding is one structured finding as returned by the meta-analyser,
// before lifecycle dedup/decay processing.
type MetaFinding struct {
	Text      string `json:"text"`
	Severity  string `json:"severity"` // critical|high|medium|low|info
	Criterion string `json:"criterion,omitempty"` // optional criterion slug
}

// MetaResult is the per-window analysis output.
type MetaResult struct {
	ID                string
	WindowID          string
	SystemID          string
	MetaScores        [6]float64
	Summary           string
	NewFindings       []MetaFinding
	ResolvedIndices   []int
	RecommendedAction string
	KeyEventIDs       []string
	Model             string
	CreatedAt         time.Time
	Failed            bool
}

// FindingStatus is the lifecycle state of a Finding (I5: resolved is terminal).
type FindingStatus string

const (
	FindingOpen         FindingStatus = "open"
	FindingAcknowledged FindingStatus = "acknowledged"
	FindingResolved     FindingStatus = "resolved"
)

// FindingSeverity ranks from most to least severe.
type FindingSeverity string

const (
	SeverityCritical FindingSeverity = "critical"
	SeverityHigh     FindingSeverity = "high"
	SeverityMedium   FindingSeverity = "medium"
	SeverityLow      FindingSeverity = "low"
	SeverityInfo     FindingSeverity = "info"
)

// severityRank ranks severities from most (0) to least (4) severe, used
// for decay and for picking which findings to keep when a window exceeds
// max_new_findings_per_window.
var severityRank = map[FindingSeverity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// Rank returns the severity's rank (0 = most severe). Unknown severities
// rank as the least severe.
func (s FindingSeverity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// Decayed returns the next-lower severity, or the same severity if
// already at the bottom of the scale.
func (s FindingSeverity) Decayed() FindingSeverity {
	switch s {
	case SeverityCritical:
		return SeverityHigh
	case SeverityHigh:
		return SeverityMedium
	case SeverityMedium:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Finding is a persistent, deduplicated, decaying issue entity.
type Finding struct {
	ID                 string
	SystemID           string
	Status             FindingStatus
	Severity           FindingSeverity
	OriginalSeverity   FindingSeverity
	CriterionSlug      string
	Text               string
	Fingerprint        string
	OccurrenceCount    int
	ConsecutiveMisses  int
	CreatedByMetaID    string
	ResolvedByMetaID   *string
	CreatedAt          time.Time
	LastSeenAt         time.Time
	ResolvedAt         *time.Time
}

// EffectiveScore is the dashboard read model: blended per-window,
// per-criterion score.
type EffectiveScore struct {
	WindowID       string
	SystemID       string
	CriterionID    int
	EffectiveValue float64
	MetaScore      float64
	MaxEventScore  float64
}

// NormalBehaviorTemplate is a user-curated regex marking events as
// routine.
type NormalBehaviorTemplate struct {
	ID             string
	SystemID       string
	MessagePattern string
	HostPattern    *string
	ProgramPattern *string
	Enabled        bool
}

// NotificationChannel is a delivery target (slack, webhook, email, ...).
type NotificationChannel struct {
	ID     string
	Name   string
	Type   string
	Config map[string]string // may contain "env:VAR_NAME" secret references
}

// TriggerConfig describes what makes a NotificationRule fire.
type TriggerConfig struct {
	Kind          string   `json:"kind"` // "threshold" | "schedule"
	CriterionSlug string   `json:"criterion_slug"`
	MinScore      float64  `json:"min_score"`
	CronExpr      string   `json:"cron_expr"`
	SystemIDs     []string `json:"system_ids"` // empty = all systems
}

// NotificationRule binds a trigger to channels with throttling.
type NotificationRule struct {
	ID                     string
	Name                   string
	Enabled                bool
	Trigger                TriggerConfig
	Filter                 string // CEL expression, optional
	ChannelIDs             []string
	ThrottleIntervalSeconds int
	SendRecovery           bool
	NotifyOnlyOnStateChange bool
}

// Silence suppresses dispatch (but not history recording) for a scope.
type Silence struct {
	ID            string
	SystemIDs     []string
	CriterionSlug string
	From          time.Time
	Until         time.Time
	Reason        string
}

// AlertState is the alert evaluator's state machine state.
type AlertState string

const (
	AlertFiring   AlertState = "firing"
	AlertResolved AlertState = "resolved"
)

// AlertHistory is one state-transition or throttled-repeat record.
type AlertHistory struct {
	ID            string
	RuleID        string
	SystemID      string
	CriterionID   int
	State         AlertState
	Value         float64
	Suppressed    bool
	DispatchedAt  *time.Time
	CreatedAt     time.Time
}

// LlmUsage is an audit row for one LLM call.
type LlmUsage struct {
	ID           string
	RunType      string // "scoring" | "meta"
	Model        string
	SystemID     string
	WindowID     *string
	EventCount   int
	TokenInput   int
	TokenOutput  int
	RequestCount int
	CostEstimate float64
	CreatedAt    time.Time
}
