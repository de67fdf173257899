package observe

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/vivahq/viva"

// Metrics bundles every instrument the service records. A nil *Metrics is
// valid and records nothing, so tests can pass nil without stubbing.
type Metrics struct {
	interviewsStarted   metric.Int64Counter
	interviewsCompleted metric.Int64Counter
	interviewsErrored   metric.Int64Counter
	interviewsAbandoned metric.Int64Counter
	startRejections     metric.Int64Counter
	providerErrors      metric.Int64Counter

	activeInterviews metric.Int64UpDownCounter

	turnDuration       metric.Float64Histogram
	synthesisDuration  metric.Float64Histogram
	evaluationDuration metric.Float64Histogram
	httpDuration       metric.Float64Histogram
}

// NewMetrics creates all instruments on the global meter provider. Call
// after [InitProvider].
func NewMetrics() (*Metrics, error) {
	m := otel.GetMeterProvider().Meter(meterName)
	var (
		mm  Metrics
		err error
	)

	if mm.interviewsStarted, err = m.Int64Counter("interviews_started_total",
		metric.WithDescription("Interviews successfully started")); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	if mm.interviewsCompleted, err = m.Int64Counter("interviews_completed_total",
		metric.WithDescription("Interviews that ran to completion")); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	if mm.interviewsErrored, err = m.Int64Counter("interviews_errored_total",
		metric.WithDescription("Interviews that died on an unrecoverable failure")); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	if mm.interviewsAbandoned, err = m.Int64Counter("interviews_abandoned_total",
		metric.WithDescription("Interviews reaped after stalling")); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	if mm.startRejections, err = m.Int64Counter("interview_start_rejections_total",
		metric.WithDescription("Start requests rejected by the one-attempt gate")); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	if mm.providerErrors, err = m.Int64Counter("provider_errors_total",
		metric.WithDescription("Failed calls to external AI providers")); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	if mm.activeInterviews, err = m.Int64UpDownCounter("interviews_active",
		metric.WithDescription("Interviews currently in flight")); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	if mm.turnDuration, err = m.Float64Histogram("interview_turn_duration_seconds",
		metric.WithDescription("Time from question asked to answer captured"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 240, 480)); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	if mm.synthesisDuration, err = m.Float64Histogram("voice_synthesis_duration_seconds",
		metric.WithDescription("Speech synthesis latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2, 5, 10, 20)); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	if mm.evaluationDuration, err = m.Float64Histogram("evaluation_duration_seconds",
		metric.WithDescription("Post-interview evaluation latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 5, 10, 30, 60)); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	if mm.httpDuration, err = m.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP handler latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5)); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}

	return &mm, nil
}

// InterviewStarted records a successful start in the given transport mode.
func (m *Metrics) InterviewStarted(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.interviewsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
	m.activeInterviews.Add(ctx, 1)
}

// InterviewFinished records the terminal outcome of an interview.
func (m *Metrics) InterviewFinished(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	switch outcome {
	case "completed":
		m.interviewsCompleted.Add(ctx, 1)
	case "error":
		m.interviewsErrored.Add(ctx, 1)
	case "abandoned":
		m.interviewsAbandoned.Add(ctx, 1)
	}
	m.activeInterviews.Add(ctx, -1)
}

// StartRejected records a start attempt bounced by the one-attempt gate.
func (m *Metrics) StartRejected(ctx context.Context, role string) {
	if m == nil {
		return
	}
	m.startRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

// ProviderError records one failed provider call.
func (m *Metrics) ProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.providerErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind)))
}

// TurnObserved records one completed question turn.
func (m *Metrics) TurnObserved(ctx context.Context, questionType string, d time.Duration) {
	if m == nil {
		return
	}
	m.turnDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("question_type", questionType)))
}

// SynthesisObserved records one synthesis call.
func (m *Metrics) SynthesisObserved(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.synthesisDuration.Record(ctx, d.Seconds())
}

// EvaluationObserved records one evaluation call.
func (m *Metrics) EvaluationObserved(ctx context.Context, d time.Duration, degraded bool) {
	if m == nil {
		return
	}
	m.evaluationDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.Bool("degraded", degraded)))
}

// HTTPObserved records one handled HTTP request.
func (m *Metrics) HTTPObserved(ctx context.Context, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status)))
}
