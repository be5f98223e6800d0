package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voicelink service
type Metrics struct {
	// Session metrics
	SessionsAccepted prometheus.Counter
	SessionsRejected prometheus.Counter
	ActiveSessions   prometheus.Gauge
	SessionsClosed   *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	ProtocolErrors   *prometheus.CounterVec

	// Request metrics
	TextRequests    prometheus.Counter
	AudioRequests   prometheus.Counter
	AudioChunks     prometheus.Counter
	AudioBytes      prometheus.Counter
	AudioDuration   prometheus.Histogram
	ResponseLatency *prometheus.HistogramVec

	// Storage metrics
	RecordingsPersisted prometheus.Counter
	StorageFailures     prometheus.Counter
	StorageDuration     prometheus.Histogram
	VoiceRatio          prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with the default registry
func NewMetrics() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// New creates all metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		// Session metrics
		SessionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_sessions_accepted_total",
			Help: "Total number of TCP sessions accepted",
		}),
		SessionsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_sessions_rejected_total",
			Help: "Total number of connections refused because the session limit was reached",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicelink_active_sessions",
			Help: "Current number of active sessions",
		}),
		SessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_sessions_closed_total",
			Help: "Total number of sessions closed, by reason",
		}, []string{"reason"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicelink_session_duration_seconds",
			Help:    "Lifetime of sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27 minutes
		}),
		ProtocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_protocol_errors_total",
			Help: "Total number of protocol errors, by reason",
		}, []string{"reason"}),

		// Request metrics
		TextRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_text_requests_total",
			Help: "Total number of TEXT requests answered",
		}),
		AudioRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_audio_requests_total",
			Help: "Total number of AUDIO_START requests completed",
		}),
		AudioChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_audio_chunks_total",
			Help: "Total number of PCM chunks received",
		}),
		AudioBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_audio_bytes_total",
			Help: "Total number of PCM bytes received",
		}),
		AudioDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicelink_audio_duration_seconds",
			Help:    "Playback length of received recordings",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2 minutes
		}),
		ResponseLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicelink_response_latency_seconds",
			Help:    "Time from request completion to response written",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"kind"}),

		// Storage metrics
		RecordingsPersisted: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_recordings_persisted_total",
			Help: "Total number of audio containers written to storage",
		}),
		StorageFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_storage_failures_total",
			Help: "Total number of failed audio container writes",
		}),
		StorageDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicelink_storage_write_duration_seconds",
			Help:    "Time spent writing audio containers",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		VoiceRatio: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicelink_recording_voice_ratio",
			Help:    "Fraction of analysis windows classified as voice per recording",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),

		// HTTP API metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicelink_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordSessionAccepted counts an accepted session and raises the active gauge
func (m *Metrics) RecordSessionAccepted() {
	m.SessionsAccepted.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionRejected counts a connection refused at the session limit
func (m *Metrics) RecordSessionRejected() {
	m.SessionsRejected.Inc()
}

// RecordSessionClosed lowers the active gauge and records why and after how long the session ended
func (m *Metrics) RecordSessionClosed(reason string, durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.SessionsClosed.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordProtocolError counts a protocol error by reason
func (m *Metrics) RecordProtocolError(reason string) {
	m.ProtocolErrors.WithLabelValues(reason).Inc()
}

// RecordTextRequest records an answered TEXT request
func (m *Metrics) RecordTextRequest(latencySeconds float64) {
	m.TextRequests.Inc()
	m.ResponseLatency.WithLabelValues("text").Observe(latencySeconds)
}

// RecordAudioChunk records one received PCM chunk
func (m *Metrics) RecordAudioChunk(sizeBytes int) {
	m.AudioChunks.Inc()
	m.AudioBytes.Add(float64(sizeBytes))
}

// RecordAudioRequest records a completed audio exchange
func (m *Metrics) RecordAudioRequest(durationSeconds, latencySeconds float64) {
	m.AudioRequests.Inc()
	m.AudioDuration.Observe(durationSeconds)
	m.ResponseLatency.WithLabelValues("audio").Observe(latencySeconds)
}

// RecordPersisted records a successful storage write
func (m *Metrics) RecordPersisted(durationSeconds, voiceRatio float64) {
	m.RecordingsPersisted.Inc()
	m.StorageDuration.Observe(durationSeconds)
	m.VoiceRatio.Observe(voiceRatio)
}

// RecordStorageFailure records a failed storage write
func (m *Metrics) RecordStorageFailure() {
	m.StorageFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
