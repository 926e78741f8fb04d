package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AmalSKumar0/voicebot/internal/batch"
	"github.com/AmalSKumar0/voicebot/internal/config"
	"github.com/AmalSKumar0/voicebot/internal/metrics"
	"github.com/AmalSKumar0/voicebot/internal/protocol"
	"github.com/AmalSKumar0/voicebot/internal/stream"
	"github.com/AmalSKumar0/voicebot/internal/transcription"
	"github.com/AmalSKumar0/voicebot/internal/vad"
)

const (
	serviceName    = "voicebot"
	serviceVersion = "1.0.0"
)

// TranscriptionStats is implemented by transcription clients that keep
// request statistics
type TranscriptionStats interface {
	GetStats() transcription.ClientStats
}

// Components are the collaborators served over HTTP
type Components struct {
	Sessions      *stream.Manager
	Batch         *batch.Handler
	Transcription TranscriptionStats // optional
	Gate          *vad.Processor     // optional
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer // defaults to prometheus.DefaultGatherer
}

// HTTPServer serves the streaming, batch and monitoring endpoints
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	components Components
	upgrader   websocket.Upgrader

	// Server state
	startTime time.Time
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(appConfig *config.Config, components Components, logger *slog.Logger) *HTTPServer {
	if components.Gatherer == nil {
		components.Gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		components: components,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		startTime: time.Now(),
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)

	// Batch requests run a transcode and an accurate transcription before
	// the response is written
	writeTimeout := appConfig.Transcoder.GetTimeoutDuration() +
		appConfig.Transcription.GetTimeoutDuration()*time.Duration(appConfig.Transcription.MaxRetries+1) +
		10*time.Second

	h.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", appConfig.Server.Address, appConfig.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// Handler returns the root handler, for use with httptest
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Streaming conversation endpoint
	mux.HandleFunc("/ws", h.withMetrics("/ws", h.handleWebSocket))

	// One-shot transcription endpoint
	mux.HandleFunc("/transcribe", h.withMetrics("/transcribe", h.handleTranscribe))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session monitoring endpoints
	mux.HandleFunc("/streams", h.withMetrics("/streams", h.handleStreams))
	mux.HandleFunc("/streams/", h.withMetrics("/streams/{id}", h.handleStreamDetail))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	if h.config.Metrics.Enabled {
		mux.Handle(h.config.Metrics.Path, promhttp.HandlerFor(h.components.Gatherer, promhttp.HandlerOpts{}))
	}

	// Static assets for the browser client
	staticFiles := http.FileServer(http.Dir(h.config.Server.StaticDir))
	mux.Handle("/static/", http.StripPrefix("/static/", staticFiles))

	// Index page, falling back to API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call the original handler
		handler(ww, r)

		// Record metrics
		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.components.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		// Record error if status code indicates an error
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.components.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over the connection
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.ListenAndServe(); err != nil {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// ListenAndServe serves until Stop is called. It returns nil after a
// graceful shutdown.
func (h *HTTPServer) ListenAndServe() error {
	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server. Upgraded WebSocket connections
// are not tracked by the server; they end through the session manager.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// handleWebSocket implements the /ws endpoint
func (h *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error
		h.logger.Debug("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	conn := newWSConn(ws, int(h.config.Session.MaxFragmentBytes))

	session, err := h.components.Sessions.Open(conn)
	if err != nil {
		code := websocket.CloseTryAgainLater
		if errors.Is(err, stream.ErrManagerStopped) {
			code = websocket.CloseGoingAway
		}
		conn.closeWith(code, err.Error())
		return
	}

	// The request context stays live for hijacked connections until the
	// handler returns
	if err := h.components.Sessions.Run(r.Context(), session); err != nil {
		h.logger.Debug("Session ended with fault",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}
}

// handleTranscribe implements the /transcribe endpoint
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.config.Server.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.Server.MaxUploadBytes)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.NewError(protocol.ErrNoAudioFile))
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.logger.Warn("Failed to read multipart upload", slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadRequest, protocol.NewError(protocol.ErrUploadFailed))
			return
		}

		if part.FormName() != "audio" {
			part.Close()
			continue
		}

		filename := part.FileName()
		if filename == "" {
			filename = "upload"
		}

		text, err := h.components.Batch.Transcribe(r.Context(), filename, part)
		part.Close()

		if err != nil {
			message := protocol.ErrTranscriptionFailed
			var stageErr *batch.StageError
			if errors.As(err, &stageErr) {
				message = stageErr.Message()
			}
			writeJSON(w, http.StatusOK, protocol.NewError(message))
			return
		}

		writeJSON(w, http.StatusOK, protocol.BatchResult{Text: text})
		return
	}

	writeJSON(w, http.StatusBadRequest, protocol.NewError(protocol.ErrNoAudioFile))
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	components := map[string]interface{}{
		"session_manager": map[string]interface{}{
			"status":          "running",
			"active_sessions": h.components.Sessions.GetActiveSessionCount(),
			"max_sessions":    h.config.Server.MaxConcurrentSessions,
		},
		"conversation_store": map[string]interface{}{
			"backend": h.config.Conversation.Backend,
		},
	}

	gate := map[string]interface{}{"enabled": h.components.Gate != nil}
	if h.components.Gate != nil {
		gate["threshold"] = h.components.Gate.GetThreshold()
		gate["window_size"] = h.components.Gate.GetWindowSize()
	}
	components["silence_gate"] = gate

	if h.components.Transcription != nil {
		stats := h.components.Transcription.GetStats()
		components["transcription"] = map[string]interface{}{
			"status":          "running",
			"total_requests":  stats.TotalRequests,
			"success_rate":    stats.SuccessRate,
			"active_requests": stats.ActiveRequests,
		}
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": components,
	}

	writeJSON(w, http.StatusOK, health)
}

// handleStreams implements the /streams endpoint
func (h *HTTPServer) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.components.Sessions.GetAllSessions()
	sessionInfos := make([]stream.SessionInfo, 0, len(sessions))

	for _, session := range sessions {
		sessionInfos = append(sessionInfos, session.GetSessionInfo())
	}

	response := map[string]interface{}{
		"total_streams": len(sessionInfos),
		"timestamp":     time.Now().UTC(),
		"streams":       sessionInfos,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleStreamDetail implements the /streams/{id} endpoint
func (h *HTTPServer) handleStreamDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Extract session ID from URL path
	sessionID := r.URL.Path[len("/streams/"):]
	if sessionID == "" {
		http.Error(w, "Stream ID required", http.StatusBadRequest)
		return
	}

	session, exists := h.components.Sessions.GetSession(sessionID)
	if !exists {
		http.Error(w, "Stream not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, session.GetSessionInfo())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := h.config

	// Return sanitized configuration (API keys and passwords are omitted)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"port":                    cfg.Server.Port,
			"address":                 cfg.Server.Address,
			"static_dir":              cfg.Server.StaticDir,
			"temp_dir":                cfg.Server.TempDir,
			"max_concurrent_sessions": cfg.Server.MaxConcurrentSessions,
			"max_upload_bytes":        cfg.Server.MaxUploadBytes,
		},
		"session": map[string]interface{}{
			"receive_timeout":          cfg.Session.ReceiveTimeout,
			"max_fragment_bytes":       cfg.Session.MaxFragmentBytes,
			"max_fragments_per_second": cfg.Session.MaxFragmentsPerSecond,
			"fragment_burst":           cfg.Session.FragmentBurst,
		},
		"transcoder": map[string]interface{}{
			"ffmpeg_path":    cfg.Transcoder.FFmpegPath,
			"sample_rate":    cfg.Transcoder.SampleRate,
			"channels":       cfg.Transcoder.Channels,
			"timeout":        cfg.Transcoder.Timeout,
			"max_concurrent": cfg.Transcoder.MaxConcurrent,
		},
		"transcription": map[string]interface{}{
			"endpoint":       cfg.Transcription.Endpoint,
			"model":          cfg.Transcription.Model,
			"language":       cfg.Transcription.Language,
			"timeout":        cfg.Transcription.Timeout,
			"max_retries":    cfg.Transcription.MaxRetries,
			"max_concurrent": cfg.Transcription.MaxConcurrent,
		},
		"reply": map[string]interface{}{
			"base_url":    cfg.Reply.BaseURL,
			"model":       cfg.Reply.Model,
			"temperature": cfg.Reply.Temperature,
			"timeout":     cfg.Reply.Timeout,
		},
		"conversation": map[string]interface{}{
			"backend":        cfg.Conversation.Backend,
			"history_window": cfg.Conversation.HistoryWindow,
			"evict_on_close": cfg.Conversation.EvictOnClose,
			"redis_addr":     cfg.Conversation.RedisAddr,
			"redis_db":       cfg.Conversation.RedisDB,
			"redis_prefix":   cfg.Conversation.RedisPrefix,
			"redis_ttl":      cfg.Conversation.RedisTTL,
		},
		"vad": map[string]interface{}{
			"enabled":     cfg.VAD.Enabled,
			"threshold":   cfg.VAD.Threshold,
			"window_size": cfg.VAD.WindowSize,
		},
		"logging": map[string]interface{}{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
			"output": cfg.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var fragments, transcripts, suppressed, replies uint64
	for _, session := range h.components.Sessions.GetAllSessions() {
		info := session.GetSessionInfo()
		fragments += info.FragmentsReceived
		transcripts += info.TranscriptsEmitted
		suppressed += info.TranscriptsSuppressed
		replies += info.RepliesSent
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"streams": map[string]interface{}{
			"active_count":           h.components.Sessions.GetActiveSessionCount(),
			"fragments_received":     fragments,
			"transcripts_emitted":    transcripts,
			"transcripts_suppressed": suppressed,
			"replies_sent":           replies,
		},
	}

	if h.components.Transcription != nil {
		stats["transcription"] = h.components.Transcription.GetStats()
	}
	if h.components.Gate != nil {
		stats["silence_gate"] = map[string]interface{}{
			"threshold":   h.components.Gate.GetThreshold(),
			"window_size": h.components.Gate.GetWindowSize(),
			"stats":       h.components.Gate.GetStats(),
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint. It serves the browser client when
// static_dir/index.html exists and API documentation otherwise.
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	index := filepath.Join(h.config.Server.StaticDir, "index.html")
	if _, err := os.Stat(index); err == nil {
		http.ServeFile(w, r, index)
		return
	}

	endpoints := map[string]interface{}{
		"GET /":             "Browser client or API documentation",
		"GET /ws":           "Streaming conversation (WebSocket)",
		"POST /transcribe":  "Transcribe an uploaded audio file (multipart field \"audio\")",
		"GET /health":       "Service health check",
		"GET /streams":      "List all active sessions",
		"GET /streams/{id}": "Get detailed session information",
		"GET /config":       "Get service configuration",
		"GET /stats":        "Get service statistics",
	}
	if h.config.Metrics.Enabled {
		endpoints["GET "+h.config.Metrics.Path] = "Prometheus metrics"
	}

	apiDoc := map[string]interface{}{
		"service":   "Voice Conversation Service",
		"version":   serviceVersion,
		"endpoints": endpoints,
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
