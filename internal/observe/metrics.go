// Package observe provides application-wide observability primitives for
// phonoscore: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all phonoscore metrics.
const meterName = "github.com/MrWong99/phonoscore"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per analysis stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// G2PDuration tracks grapheme-to-phoneme conversion latency.
	G2PDuration metric.Float64Histogram

	// TimingDuration tracks audio decoding plus silence detection latency.
	TimingDuration metric.Float64Histogram

	// AnalysisDuration tracks end-to-end analysis latency.
	AnalysisDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Analyses counts finished analyses. Use with attribute:
	//   attribute.String("status", ...)
	Analyses metric.Int64Counter

	// WordRatings counts per-word pronunciation ratings. Use with attribute:
	//   attribute.String("rating", ...)
	WordRatings metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Score distribution ---

	// Scores records produced scores. Use with attribute:
	//   attribute.String("kind", "fluency"|"accuracy")
	Scores metric.Float64Histogram

	// --- Gauges ---

	// ActiveAnalyses tracks the number of analyses currently in flight.
	ActiveAnalyses metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// recognition and phonemization latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// scoreBuckets matches the score range [10, 90] and the accuracy levels.
var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("phonoscore.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.G2PDuration, err = m.Float64Histogram("phonoscore.g2p.duration",
		metric.WithDescription("Latency of grapheme-to-phoneme conversion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TimingDuration, err = m.Float64Histogram("phonoscore.timing.duration",
		metric.WithDescription("Latency of audio decoding and silence detection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("phonoscore.analysis.duration",
		metric.WithDescription("End-to-end analysis latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("phonoscore.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Analyses, err = m.Int64Counter("phonoscore.analyses",
		metric.WithDescription("Total finished analyses by status."),
	); err != nil {
		return nil, err
	}
	if met.WordRatings, err = m.Int64Counter("phonoscore.word.ratings",
		metric.WithDescription("Total per-word pronunciation ratings by rating."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("phonoscore.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.Scores, err = m.Float64Histogram("phonoscore.score",
		metric.WithDescription("Distribution of produced fluency and accuracy scores."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveAnalyses, err = m.Int64UpDownCounter("phonoscore.active_analyses",
		metric.WithDescription("Number of analyses currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("phonoscore.http.request.duration",
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordAnalysis records a finished analysis with its outcome status.
func (m *Metrics) RecordAnalysis(ctx context.Context, status string) {
	m.Analyses.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordScore records a produced score of the given kind.
func (m *Metrics) RecordScore(ctx context.Context, kind string, score float64) {
	m.Scores.Record(ctx, score, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordWordRating records one per-word rating by its label.
func (m *Metrics) RecordWordRating(ctx context.Context, rating string) {
	m.WordRatings.Add(ctx, 1, metric.WithAttributes(attribute.String("rating", rating)))
}
