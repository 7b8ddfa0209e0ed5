// Package metrics instruments the phase executor/tool dispatch path and
// the work-source poll cycles with OpenTelemetry metrics backed by a
// Prometheus exporter, following the counter/histogram-per-concern shape
// of pkg/observability/metrics.go and the meter-as-field wrapper of
// runtime/agent/telemetry/clue.go (goadesign-goa-ai). Callers that don't
// care about metrics can use Noop(), which is always safe to call.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder instruments phase executions, tool dispatches, and work-source
// polls. All methods are nil-receiver safe so instrumentation can be
// wired in only where configured.
type Recorder struct {
	phaseDuration metric.Float64Histogram
	phaseTotal    metric.Int64Counter
	phaseRetries  metric.Int64Counter

	toolDuration metric.Float64Histogram
	toolTotal    metric.Int64Counter
	toolErrors   metric.Int64Counter

	pollDuration metric.Float64Histogram
	pollItems    metric.Int64Counter
	pollErrors   metric.Int64Counter
}

// NewPrometheusRecorder builds a Recorder backed by a fresh Prometheus
// exporter and meter provider. It returns the provider's registry-backed
// http.Handler-compatible exporter alongside the recorder so callers can
// mount a /metrics endpoint (see prometheus.New()'s Collector contract).
func NewPrometheusRecorder(namespace string) (*Recorder, *sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New(prometheus.WithNamespace(namespace))
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("feature-factory")

	r := &Recorder{}
	r.phaseDuration, _ = meter.Float64Histogram("phase_duration_seconds",
		metric.WithDescription("Phase executor wall-clock duration in seconds"))
	r.phaseTotal, _ = meter.Int64Counter("phase_runs_total",
		metric.WithDescription("Total phase executions by agent and outcome"))
	r.phaseRetries, _ = meter.Int64Counter("phase_retries_total",
		metric.WithDescription("Total phase retry attempts by agent"))

	r.toolDuration, _ = meter.Float64Histogram("tool_call_duration_seconds",
		metric.WithDescription("Tool dispatch duration in seconds"))
	r.toolTotal, _ = meter.Int64Counter("tool_calls_total",
		metric.WithDescription("Total tool dispatches by tool name"))
	r.toolErrors, _ = meter.Int64Counter("tool_errors_total",
		metric.WithDescription("Total tool dispatch errors by tool name"))

	r.pollDuration, _ = meter.Float64Histogram("worksource_poll_duration_seconds",
		metric.WithDescription("Work-source poll-cycle duration in seconds"))
	r.pollItems, _ = meter.Int64Counter("worksource_poll_items_total",
		metric.WithDescription("Total work items emitted per poll cycle"))
	r.pollErrors, _ = meter.Int64Counter("worksource_poll_errors_total",
		metric.WithDescription("Total work-source poll cycles that errored"))

	return r, provider, nil
}

// Noop returns a Recorder whose instruments are all nil, so every
// recording method becomes a no-op. Safe to use when metrics aren't
// configured.
func Noop() *Recorder { return &Recorder{} }

// RecordPhase records one phase-executor attempt sequence: its outcome
// ("completed"|"failed"), duration, and retry count.
func (r *Recorder) RecordPhase(ctx context.Context, agent, outcome string, duration time.Duration, retries int) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("outcome", outcome),
	)
	if r.phaseDuration != nil {
		r.phaseDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if r.phaseTotal != nil {
		r.phaseTotal.Add(ctx, 1, attrs)
	}
	if retries > 0 && r.phaseRetries != nil {
		r.phaseRetries.Add(ctx, int64(retries), metric.WithAttributes(attribute.String("agent", agent)))
	}
}

// RecordTool records one tool dispatch's duration and whether it errored.
func (r *Recorder) RecordTool(ctx context.Context, tool string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	if r.toolDuration != nil {
		r.toolDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if r.toolTotal != nil {
		r.toolTotal.Add(ctx, 1, attrs)
	}
	if err != nil && r.toolErrors != nil {
		r.toolErrors.Add(ctx, 1, attrs)
	}
}

// RecordPoll records one work-source poll cycle's timing, item count, and
// whether it errored.
func (r *Recorder) RecordPoll(ctx context.Context, source string, duration time.Duration, itemCount int, err error) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	if r.pollDuration != nil {
		r.pollDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if r.pollItems != nil {
		r.pollItems.Add(ctx, int64(itemCount), attrs)
	}
	if err != nil && r.pollErrors != nil {
		r.pollErrors.Add(ctx, 1, attrs)
	}
}
