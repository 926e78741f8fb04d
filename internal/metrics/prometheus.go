package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice server
type Metrics struct {
	// Session metrics
	ActiveSessions   prometheus.Gauge
	SessionsOpened   prometheus.Counter
	SessionsClosed   *prometheus.CounterVec
	SessionsRejected prometheus.Counter
	SessionDuration  prometheus.Histogram

	// Fragment metrics
	FragmentsReceived prometheus.Counter
	FragmentSize      prometheus.Histogram
	FragmentsSilent   prometheus.Counter

	// Transcript metrics
	TranscriptsEmitted    prometheus.Counter
	TranscriptsSuppressed prometheus.Counter

	// Transcoding metrics
	TranscodeDuration prometheus.Histogram
	TranscodeFailures prometheus.Counter

	// Transcription metrics
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionFailures *prometheus.CounterVec
	TranscriptionDuration *prometheus.HistogramVec

	// Reply metrics
	ReplyRequests prometheus.Counter
	ReplyFailures prometheus.Counter
	ReplyDuration prometheus.Histogram

	// Batch endpoint metrics
	BatchRequests prometheus.Counter
	BatchFailures *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voicebot_active_sessions",
			Help: "Current number of open streaming sessions",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_sessions_opened_total",
			Help: "Total number of streaming sessions opened",
		}),
		SessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_sessions_closed_total",
			Help: "Total number of streaming sessions closed, by reason",
		}, []string{"reason"}),
		SessionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_sessions_rejected_total",
			Help: "Total number of connections rejected at the session limit",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicebot_session_duration_seconds",
			Help:    "Duration of streaming sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		// Fragment metrics
		FragmentsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_fragments_received_total",
			Help: "Total number of audio fragments received",
		}),
		FragmentSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicebot_fragment_size_bytes",
			Help:    "Size of received audio fragments in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		FragmentsSilent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_fragments_silent_total",
			Help: "Total number of fragments skipped by the silence gate",
		}),

		// Transcript metrics
		TranscriptsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_transcripts_emitted_total",
			Help: "Total number of new utterances emitted to peers",
		}),
		TranscriptsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_transcripts_suppressed_total",
			Help: "Total number of empty or repeated transcripts suppressed",
		}),

		// Transcoding metrics
		TranscodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicebot_transcode_duration_seconds",
			Help:    "Duration of audio transcoding",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),
		TranscodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_transcode_failures_total",
			Help: "Total number of failed transcodes",
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_transcription_requests_total",
			Help: "Total number of transcription requests, by profile",
		}, []string{"profile"}),
		TranscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_transcription_failures_total",
			Help: "Total number of failed transcription requests, by profile",
		}, []string{"profile"}),
		TranscriptionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicebot_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"profile"}),

		// Reply metrics
		ReplyRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_reply_requests_total",
			Help: "Total number of reply generation requests",
		}),
		ReplyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_reply_failures_total",
			Help: "Total number of failed reply generations",
		}),
		ReplyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicebot_reply_duration_seconds",
			Help:    "Duration of reply generation",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),

		// Batch endpoint metrics
		BatchRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_batch_requests_total",
			Help: "Total number of batch transcription requests",
		}),
		BatchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_batch_failures_total",
			Help: "Total number of failed batch transcriptions, by stage",
		}, []string{"stage"}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicebot_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordSessionOpened increments opened sessions and the active gauge
func (m *Metrics) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionClosed records a session's end
func (m *Metrics) RecordSessionClosed(reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsClosed.WithLabelValues(reason).Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionRejected increments the rejected sessions counter
func (m *Metrics) RecordSessionRejected() {
	if m == nil {
		return
	}
	m.SessionsRejected.Inc()
}

// RecordFragment records a received audio fragment
func (m *Metrics) RecordFragment(sizeBytes int) {
	if m == nil {
		return
	}
	m.FragmentsReceived.Inc()
	m.FragmentSize.Observe(float64(sizeBytes))
}

// RecordSilentFragment increments the silence gate counter
func (m *Metrics) RecordSilentFragment() {
	if m == nil {
		return
	}
	m.FragmentsSilent.Inc()
}

// RecordTranscript records whether a transcript was emitted or suppressed
func (m *Metrics) RecordTranscript(emitted bool) {
	if m == nil {
		return
	}
	if emitted {
		m.TranscriptsEmitted.Inc()
	} else {
		m.TranscriptsSuppressed.Inc()
	}
}

// RecordTranscode records a transcoder run
func (m *Metrics) RecordTranscode(success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscodeDuration.Observe(durationSeconds)
	if !success {
		m.TranscodeFailures.Inc()
	}
}

// RecordTranscription records a transcription request for profile
func (m *Metrics) RecordTranscription(profile string, success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionRequests.WithLabelValues(profile).Inc()
	m.TranscriptionDuration.WithLabelValues(profile).Observe(durationSeconds)
	if !success {
		m.TranscriptionFailures.WithLabelValues(profile).Inc()
	}
}

// RecordReply records a reply generation
func (m *Metrics) RecordReply(success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ReplyRequests.Inc()
	m.ReplyDuration.Observe(durationSeconds)
	if !success {
		m.ReplyFailures.Inc()
	}
}

// RecordBatchRequest increments the batch request counter
func (m *Metrics) RecordBatchRequest() {
	if m == nil {
		return
	}
	m.BatchRequests.Inc()
}

// RecordBatchFailure records a batch failure at stage
func (m *Metrics) RecordBatchFailure(stage string) {
	if m == nil {
		return
	}
	m.BatchFailures.WithLabelValues(stage).Inc()
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
