// Package observe provides observability primitives for the Atlas voice
// assistant: OpenTelemetry metrics, pipeline tracing, and structured logging
// helpers.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported via
// a Prometheus bridge (see [InitProvider]) so they can be scraped from the
// admin endpoint. A package-level default [Metrics] instance is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Atlas metrics.
const meterName = "github.com/atlasvoice/atlas"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// PipelineDuration tracks the latency of one utterance through the full
	// pipeline (normalize → classify → resolve → dispatch).
	PipelineDuration metric.Float64Histogram

	// DispatchDuration tracks capability handler execution latency.
	// Use with attribute.String("kind", ...).
	DispatchDuration metric.Float64Histogram

	// RenderDuration tracks speech output render latency per queue item.
	RenderDuration metric.Float64Histogram

	// Intents counts classified intents. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("action", ...)
	Intents metric.Int64Counter

	// RecognitionEvents counts recognition results by disposition:
	//   attribute.String("disposition", "forwarded"|"interim"|"below_floor"|"dropped_suspended"|"pre_trigger")
	RecognitionEvents metric.Int64Counter

	// DispatchErrors counts failed dispatches. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("error", ...)
	DispatchErrors metric.Int64Counter

	// QueueDropped counts speech queue items discarded by the overflow cap.
	QueueDropped metric.Int64Counter

	// CaptureRestarts counts recoverable recognizer error retries.
	CaptureRestarts metric.Int64Counter

	// QueueDepth tracks the number of queued (not yet rendered) utterances.
	QueueDepth metric.Int64UpDownCounter

	// ActiveSessions tracks live capture sessions (0 or 1 per orchestrator).
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PipelineDuration, err = m.Float64Histogram("atlas.pipeline.duration",
		metric.WithDescription("Latency of one utterance through the intent pipeline."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("atlas.dispatch.duration",
		metric.WithDescription("Latency of capability handler execution by intent kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RenderDuration, err = m.Float64Histogram("atlas.render.duration",
		metric.WithDescription("Latency of speech output rendering per queue item."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Intents, err = m.Int64Counter("atlas.intents",
		metric.WithDescription("Total classified intents by kind and action."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionEvents, err = m.Int64Counter("atlas.recognition.events",
		metric.WithDescription("Total recognition events by disposition."),
	); err != nil {
		return nil, err
	}
	if met.DispatchErrors, err = m.Int64Counter("atlas.dispatch.errors",
		metric.WithDescription("Total failed dispatches by kind and error."),
	); err != nil {
		return nil, err
	}
	if met.QueueDropped, err = m.Int64Counter("atlas.queue.dropped",
		metric.WithDescription("Speech queue items discarded by the overflow cap."),
	); err != nil {
		return nil, err
	}
	if met.CaptureRestarts, err = m.Int64Counter("atlas.capture.restarts",
		metric.WithDescription("Recognizer restarts after recoverable errors."),
	); err != nil {
		return nil, err
	}

	if met.QueueDepth, err = m.Int64UpDownCounter("atlas.queue.depth",
		metric.WithDescription("Number of queued speech output items."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("atlas.active_sessions",
		metric.WithDescription("Number of live capture sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] instance backed by the
// globally registered meter provider. The instance is created on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// Instrument names are constants, so creation cannot fail at
			// runtime for a reason the caller could handle.
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordDispatch records one handler dispatch outcome.
func (m *Metrics) RecordDispatch(ctx context.Context, kind string, seconds float64, errKind string) {
	if m == nil {
		return
	}
	m.DispatchDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("kind", kind)))
	if errKind != "" {
		m.DispatchErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("error", errKind),
		))
	}
}

// RecordRecognition records a recognition event disposition.
func (m *Metrics) RecordRecognition(ctx context.Context, disposition string) {
	if m == nil {
		return
	}
	m.RecognitionEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("disposition", disposition)))
}

// RecordIntent records a classified intent.
func (m *Metrics) RecordIntent(ctx context.Context, kind, action string) {
	if m == nil {
		return
	}
	m.Intents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("action", action),
	))
}
