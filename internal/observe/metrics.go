// Package observe provides application-wide observability primitives for
// voicewire: OpenTelemetry metrics and the SDK wiring that exposes them.
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

// meterName is the instrumentation scope name used for all voicewire metrics.
const meterName = "github.com/voicewire/voicewire"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks reply generation latency.
	LLMDuration metric.Float64Histogram

	// TTSFirstChunk tracks time from synthesis start to the first audio chunk.
	TTSFirstChunk metric.Float64Histogram

	// StreamDuration tracks total outbound stream duration.
	StreamDuration metric.Float64Histogram

	// --- Counters ---

	// FramesEmitted counts PCM frames sent to clients.
	FramesEmitted metric.Int64Counter

	// PacingDriftResets counts scheduler deadline resets after falling more
	// than two base delays behind the wall clock.
	PacingDriftResets metric.Int64Counter

	// PacingSlow counts switches to the slowest pacing tier triggered by a
	// client reporting an empty buffer with growing underruns.
	PacingSlow metric.Int64Counter

	// TransportStalls counts streams terminated because the outbound
	// transport stopped accepting frames.
	TransportStalls metric.Int64Counter

	// Turns counts completed conversation turns. Use with attributes:
	//   attribute.String("input", "voice"|"text"), attribute.String("status", ...)
	Turns metric.Int64Counter

	// ProviderErrors counts provider failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live client sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveStreams tracks the number of outbound streams currently emitting.
	ActiveStreams metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("voicewire.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("voicewire.llm.duration",
		metric.WithDescription("Latency of reply generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSFirstChunk, err = m.Float64Histogram("voicewire.tts.first_chunk",
		metric.WithDescription("Time from synthesis start to first audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StreamDuration, err = m.Float64Histogram("voicewire.stream.duration",
		metric.WithDescription("Total outbound stream duration."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesEmitted, err = m.Int64Counter("voicewire.frames.emitted",
		metric.WithDescription("Total PCM frames sent to clients."),
	); err != nil {
		return nil, err
	}
	if met.PacingDriftResets, err = m.Int64Counter("voicewire.pacing.drift_resets",
		metric.WithDescription("Scheduler deadline resets after falling behind the wall clock."),
	); err != nil {
		return nil, err
	}
	if met.PacingSlow, err = m.Int64Counter("voicewire.pacing.slow",
		metric.WithDescription("Switches to the slowest pacing tier on client underrun growth."),
	); err != nil {
		return nil, err
	}
	if met.TransportStalls, err = m.Int64Counter("voicewire.transport.stalls",
		metric.WithDescription("Streams terminated because the transport stopped accepting frames."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("voicewire.turns",
		metric.WithDescription("Completed conversation turns by input mode and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voicewire.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voicewire.active_sessions",
		metric.WithDescription("Number of live client sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("voicewire.active_streams",
		metric.WithDescription("Number of outbound streams currently emitting."),
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

// RecordTurn records a completed conversation turn.
func (m *Metrics) RecordTurn(ctx context.Context, input, status string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("input", input),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
