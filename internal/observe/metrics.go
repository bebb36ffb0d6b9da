// Package observe provides application-wide observability primitives for
// museguide: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all museguide metrics.
const meterName = "github.com/MrWong99/museguide"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ChatDuration tracks how long a chat reply takes to build.
	ChatDuration metric.Float64Histogram

	// RecordingDuration tracks the wall-clock length of finished recordings.
	RecordingDuration metric.Float64Histogram

	// --- Counters ---

	// ChatRequests counts chat replies. Use with attributes:
	//   attribute.String("intent", ...), attribute.String("kind", ...)
	ChatRequests metric.Int64Counter

	// Recognitions counts recognition lookups. Use with attribute:
	//   attribute.String("status", "matched"|"unmatched")
	Recognitions metric.Int64Counter

	// RecordingSessions counts completed recording sessions. Use with attribute:
	//   attribute.String("reason", "stop"|"max_duration")
	RecordingSessions metric.Int64Counter

	// IngestFrames counts audio frames accepted from clients. Use with attribute:
	//   attribute.String("codec", ...)
	IngestFrames metric.Int64Counter

	// --- Error counters ---

	// RecorderErrors counts recorder failures. Use with attribute:
	//   attribute.String("stage", ...)
	RecorderErrors metric.Int64Counter

	// IngestErrors counts undecodable or rejected client packets. Use with attribute:
	//   attribute.String("codec", ...)
	IngestErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with attributes:
	//   attribute.String("name", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings tracks recordings currently in progress.
	ActiveRecordings metric.Int64UpDownCounter

	// ActiveClients tracks connected audio ingest clients.
	ActiveClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// request-scoped work.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// recordingBuckets covers recordings from the minimum hold to the hard cap.
var recordingBuckets = []float64{
	0.3, 0.5, 1, 2, 5, 10, 15, 20, 25, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ChatDuration, err = m.Float64Histogram("museguide.chat.duration",
		metric.WithDescription("Latency of building a chat reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("museguide.recording.duration",
		metric.WithDescription("Length of finished recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(recordingBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChatRequests, err = m.Int64Counter("museguide.chat.requests",
		metric.WithDescription("Total chat replies by intent and request kind."),
	); err != nil {
		return nil, err
	}
	if met.Recognitions, err = m.Int64Counter("museguide.recognitions",
		metric.WithDescription("Total recognition lookups by status."),
	); err != nil {
		return nil, err
	}
	if met.RecordingSessions, err = m.Int64Counter("museguide.recording.sessions",
		metric.WithDescription("Total completed recording sessions by stop reason."),
	); err != nil {
		return nil, err
	}
	if met.IngestFrames, err = m.Int64Counter("museguide.ingest.frames",
		metric.WithDescription("Total audio frames ingested by codec."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.RecorderErrors, err = m.Int64Counter("museguide.recorder.errors",
		metric.WithDescription("Total recorder failures by stage."),
	); err != nil {
		return nil, err
	}
	if met.IngestErrors, err = m.Int64Counter("museguide.ingest.errors",
		metric.WithDescription("Total rejected ingest packets by codec."),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("museguide.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("museguide.active_recordings",
		metric.WithDescription("Number of recordings in progress."),
	); err != nil {
		return nil, err
	}
	if met.ActiveClients, err = m.Int64UpDownCounter("museguide.active_clients",
		metric.WithDescription("Number of connected audio ingest clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("museguide.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordChat records one chat reply with its latency.
func (m *Metrics) RecordChat(ctx context.Context, intent, kind string, d time.Duration) {
	m.ChatRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("intent", intent),
			attribute.String("kind", kind),
		),
	)
	m.ChatDuration.Record(ctx, d.Seconds())
}

// RecordRecognition records a recognition lookup outcome.
func (m *Metrics) RecordRecognition(ctx context.Context, matched bool) {
	status := "unmatched"
	if matched {
		status = "matched"
	}
	m.Recognitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordRecordingSession records a finished recording and its length.
func (m *Metrics) RecordRecordingSession(ctx context.Context, reason string, d time.Duration) {
	m.RecordingSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.RecordingDuration.Record(ctx, d.Seconds())
}

// RecordRecorderError records a recorder failure at the given stage
// (e.g. "create", "prepare", "start", "stop").
func (m *Metrics) RecordRecorderError(ctx context.Context, stage string) {
	m.RecorderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordIngest records n ingested frames, or one rejected packet when err is
// non-nil.
func (m *Metrics) RecordIngest(ctx context.Context, codec string, n int, err error) {
	attrs := metric.WithAttributes(attribute.String("codec", codec))
	if err != nil {
		m.IngestErrors.Add(ctx, 1, attrs)
		return
	}
	m.IngestFrames.Add(ctx, int64(n), attrs)
}

// RecordBreakerTransition records a circuit breaker moving to state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("name", name),
			attribute.String("to", to),
		),
	)
}
