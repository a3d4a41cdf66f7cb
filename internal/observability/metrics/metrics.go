// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meeting_capture"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Relay bridge metrics
	BridgesTotal   prometheus.Counter
	BridgesActive  prometheus.Gauge
	BridgeDuration prometheus.Histogram
	BridgeRejected *prometheus.CounterVec
	AuthTimeouts   prometheus.Counter

	// Relay forwarding metrics
	ForwardedMessages *prometheus.CounterVec
	ForwardedBytes    *prometheus.CounterVec

	// Transport metrics
	TransportReconnects prometheus.Counter
	TransportDropped    prometheus.Counter

	// Audio metrics
	FramesEncoded  prometheus.Counter
	AudioBytesSent prometheus.Counter

	// Transcript metrics
	SegmentsStarted   prometheus.Counter
	SegmentsFinalized prometheus.Counter
	DeltasApplied     prometheus.Counter
	EventsAbsorbed    *prometheus.CounterVec
	SpeakersAssigned  prometheus.Counter

	// Session metrics
	SessionsStarted   prometheus.Counter
	SessionsActive    prometheus.Gauge
	RecordingDuration prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Relay bridge metrics
		BridgesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_bridges_total",
			Help:      "Total number of relay bridges opened",
		}),
		BridgesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_bridges_active",
			Help:      "Number of currently active relay bridges",
		}),
		BridgeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_bridge_duration_seconds",
			Help:      "Lifetime of relay bridges in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 30, 60, 300, 900, 1800, 3600},
		}),
		BridgeRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_bridges_rejected_total",
			Help:      "Total number of rejected bridge requests",
		}, []string{"reason"}),
		AuthTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_auth_timeouts_total",
			Help:      "Total number of upstream authentication deadline expiries",
		}),

		// Relay forwarding metrics
		ForwardedMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_forwarded_messages_total",
			Help:      "Total number of messages forwarded by the relay",
		}, []string{"direction"}),
		ForwardedBytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_forwarded_bytes_total",
			Help:      "Total bytes forwarded by the relay",
		}, []string{"direction"}),

		// Transport metrics
		TransportReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_reconnects_total",
			Help:      "Total number of transport reconnection attempts",
		}),
		TransportDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_dropped_messages_total",
			Help:      "Total messages dropped by the send-queue overflow policy",
		}),

		// Audio metrics
		FramesEncoded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_encoded_total",
			Help:      "Total PCM frames emitted by the encoder",
		}),
		AudioBytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total audio bytes sent over the transport",
		}),

		// Transcript metrics
		SegmentsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_segments_started_total",
			Help:      "Total transcript segments opened",
		}),
		SegmentsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_segments_finalized_total",
			Help:      "Total transcript segments finalized",
		}),
		DeltasApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_deltas_applied_total",
			Help:      "Total delta fragments appended to open segments",
		}),
		EventsAbsorbed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_events_absorbed_total",
			Help:      "Total anomalous transcript events logged and absorbed",
		}, []string{"reason"}),
		SpeakersAssigned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_speakers_assigned_total",
			Help:      "Total speaker labels applied to segments",
		}),

		// Session metrics
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total recording sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently recording",
		}),
		RecordingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Duration of completed recordings in seconds",
			Buckets:   []float64{5, 15, 60, 300, 900, 1800, 3600, 7200},
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordBridgeOpen records a new relay bridge being accepted.
func (m *Metrics) RecordBridgeOpen() {
	m.BridgesTotal.Inc()
	m.BridgesActive.Inc()
}

// RecordBridgeClose records a bridge ending.
func (m *Metrics) RecordBridgeClose(durationSeconds float64) {
	m.BridgesActive.Dec()
	m.BridgeDuration.Observe(durationSeconds)
}

// RecordBridgeRejected records a rejected bridge request.
func (m *Metrics) RecordBridgeRejected(reason string) {
	m.BridgeRejected.WithLabelValues(reason).Inc()
}

// RecordAuthTimeout records an authentication deadline expiry.
func (m *Metrics) RecordAuthTimeout() {
	m.AuthTimeouts.Inc()
}

// RecordForward records one message relayed in the given direction
// ("downstream" or "upstream").
func (m *Metrics) RecordForward(direction string, bytes int) {
	m.ForwardedMessages.WithLabelValues(direction).Inc()
	m.ForwardedBytes.WithLabelValues(direction).Add(float64(bytes))
}

// RecordTransportReconnect records one transport reconnection attempt.
func (m *Metrics) RecordTransportReconnect() {
	m.TransportReconnects.Inc()
}

// RecordTransportDropped records a message discarded by the send-queue
// overflow policy.
func (m *Metrics) RecordTransportDropped() {
	m.TransportDropped.Inc()
}

// RecordFrameSent records one encoded audio frame leaving the capture engine.
func (m *Metrics) RecordFrameSent(bytes int) {
	m.FramesEncoded.Inc()
	m.AudioBytesSent.Add(float64(bytes))
}

// RecordSegmentStarted records a transcript segment being opened.
func (m *Metrics) RecordSegmentStarted() {
	m.SegmentsStarted.Inc()
}

// RecordSegmentFinalized records a transcript segment being finalized.
func (m *Metrics) RecordSegmentFinalized() {
	m.SegmentsFinalized.Inc()
}

// RecordDeltaApplied records a delta fragment appended to an open segment.
func (m *Metrics) RecordDeltaApplied() {
	m.DeltasApplied.Inc()
}

// RecordEventAbsorbed records an anomalous transcript event that was logged
// and absorbed rather than surfaced.
func (m *Metrics) RecordEventAbsorbed(reason string) {
	m.EventsAbsorbed.WithLabelValues(reason).Inc()
}

// RecordSpeakerAssigned records a speaker label applied to a segment.
func (m *Metrics) RecordSpeakerAssigned() {
	m.SpeakersAssigned.Inc()
}

// RecordSessionStart records a recording session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a recording session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.RecordingDuration.Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
