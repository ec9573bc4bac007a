// Package telemetry wires up OpenTelemetry tracing (stdout exporter, in
// the absence of a collector endpoint in this deployment) and the
// Prometheus metrics the orchestrator and HTTP server expose at
// /metrics (§4 Supplemented features: observability).
package telemetry

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Metrics holds every registered Prometheus collector. Only
// OrchestratorTickDuration is updated (by the orchestrator, once per
// tick); the other collectors are registered and exported at zero.
type Metrics struct {
	EventsIngested    *prometheus.CounterVec
	EventsScored      *prometheus.CounterVec
	WindowsCreated     *prometheus.CounterVec
	MetaAnalysisRuns   *prometheus.CounterVec
	FindingsOpened     *prometheus.CounterVec
	AlertsDispatched   *prometheus.CounterVec
	LlmCallDuration    *prometheus.HistogramVec
	LlmCostTotal       *prometheus.CounterVec
	OrchestratorTickDuration prometheus.Histogram
}

// NewMetrics registers every collector against the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_events_ingested_total",
			Help: "Number of normalised events written per system.",
		}, []string{"system_id"}),
		EventsScored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_events_scored_total",
			Help: "Number of events marked scored per system.",
		}, []string{"system_id"}),
		WindowsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_windows_created_total",
			Help: "Number of analysis windows created per system.",
		}, []string{"system_id"}),
		MetaAnalysisRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_meta_analysis_runs_total",
			Help: "Number of meta-analysis runs per system and outcome.",
		}, []string{"system_id", "outcome"}),
		FindingsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_findings_opened_total",
			Help: "Number of new findings opened per system.",
		}, []string{"system_id"}),
		AlertsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_alerts_dispatched_total",
			Help: "Number of alert dispatches per rule and state.",
		}, []string{"rule", "state"}),
		LlmCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "sentinel_llm_call_duration_seconds",
			Help: "LLM call latency by run type.",
		}, []string{"run_type"}),
		LlmCostTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_llm_cost_estimate_total",
			Help: "Estimated LLM cost in dollars by run type.",
		}, []string{"run_type"}),
		OrchestratorTickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "sentinel_orchestrator_tick_duration_seconds",
			Help: "Duration of one full orchestrator pipeline pass.",
		}),
	}
}

// InitTracer configures a stdout-exported tracer provider and installs
// it as the global. Production deployments would swap the exporter for
// an OTLP endpoint; stdout keeps this self-contained for now.
func InitTracer(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	slog.Info("tracing initialised", "service", serviceName, "exporter", "stdout")
	return tp.Shutdown, nil
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
