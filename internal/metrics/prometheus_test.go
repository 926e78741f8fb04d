package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSessionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSessionOpened()
	m.RecordSessionOpened()
	m.RecordSessionClosed("timeout", 12.5)
	m.RecordSessionRejected()

	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("Expected 1 active session, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsOpened); got != 2 {
		t.Errorf("Expected 2 opened sessions, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsClosed.WithLabelValues("timeout")); got != 1 {
		t.Errorf("Expected 1 timeout close, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsRejected); got != 1 {
		t.Errorf("Expected 1 rejected session, got %v", got)
	}
}

func TestPipelineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordFragment(2048)
	m.RecordSilentFragment()
	m.RecordTranscript(true)
	m.RecordTranscript(false)
	m.RecordTranscript(false)
	m.RecordTranscode(false, 0.2)
	m.RecordTranscription("fast", true, 0.4)
	m.RecordTranscription("accurate", false, 1.2)
	m.RecordReply(false, 0.9)
	m.RecordBatchRequest()
	m.RecordBatchFailure("transcode")

	tests := []struct {
		name      string
		collector prometheus.Collector
		expected  float64
	}{
		{"fragments", m.FragmentsReceived, 1},
		{"silent", m.FragmentsSilent, 1},
		{"emitted", m.TranscriptsEmitted, 1},
		{"suppressed", m.TranscriptsSuppressed, 2},
		{"transcode failures", m.TranscodeFailures, 1},
		{"fast requests", m.TranscriptionRequests.WithLabelValues("fast"), 1},
		{"fast failures", m.TranscriptionFailures.WithLabelValues("fast"), 0},
		{"accurate failures", m.TranscriptionFailures.WithLabelValues("accurate"), 1},
		{"reply failures", m.ReplyFailures, 1},
		{"batch requests", m.BatchRequests, 1},
		{"batch transcode failures", m.BatchFailures.WithLabelValues("transcode"), 1},
	}

	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.collector); got != tt.expected {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.expected, got)
		}
	}
}

func TestHTTPMetricsExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordHTTPRequest("GET", "/health", "200", 0.001)
	m.RecordHTTPError("POST", "/transcribe", "bad_request")

	expected := `
# HELP voicebot_http_requests_total Total number of HTTP requests
# TYPE voicebot_http_requests_total counter
voicebot_http_requests_total{endpoint="/health",method="GET",status_code="200"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "voicebot_http_requests_total"); err != nil {
		t.Errorf("Unexpected exposition: %v", err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics

	// Must not panic
	m.RecordSessionOpened()
	m.RecordSessionClosed("peer_closed", 1)
	m.RecordFragment(10)
	m.RecordTranscript(true)
	m.RecordTranscode(true, 0.1)
	m.RecordTranscription("fast", true, 0.1)
	m.RecordReply(true, 0.1)
	m.RecordBatchFailure("transcribe")
	m.RecordHTTPRequest("GET", "/", "200", 0.1)
}

func TestNewMetricsPerRegistry(t *testing.T) {
	// Separate registries must not collide
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
