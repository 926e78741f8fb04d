package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client provides HTTP client functionality for transcription API requests
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Concurrency limiting semaphore
	logger     *slog.Logger

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains transcription client configuration
type Config struct {
	Endpoint      string
	APIKey        string // optional for self-hosted servers
	Model         string
	Language      string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	RetryBackoff  time.Duration // first retry delay, doubled per attempt
}

// segment is one decoded span of a verbose_json response
type segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// transcriptionResponse represents the response from the transcription API
type transcriptionResponse struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []segment `json:"segments,omitempty"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

const maxBackoff = 30 * time.Second

// NewClient creates a new transcription HTTP client
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Model == "" {
		config.Model = "whisper-1"
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		logger:     logger,
	}, nil
}

// Transcribe uploads the audio file at path and returns the concatenated
// segment text, whitespace-trimmed.
func (c *Client) Transcribe(ctx context.Context, path string, profile Profile) (string, error) {
	audioData, err := os.ReadFile(path)
	if err != nil {
		return "", &TranscriptionError{Message: "failed to read audio file", Cause: err}
	}
	if len(audioData) == 0 {
		return "", &TranscriptionError{Message: "empty audio file", Cause: ErrEmptyAudio}
	}

	// Acquire semaphore for concurrency limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", &TranscriptionError{Message: "waiting for request slot", Cause: ctx.Err()}
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := c.config.RetryBackoff << (attempt - 1)
			if backoffTime > maxBackoff {
				backoffTime = maxBackoff
			}

			c.logger.Debug("Retrying transcription",
				slog.String("file", filepath.Base(path)),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoffTime),
				slog.String("error", lastErr.Error()),
			)

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				c.incrementFailedRequests()
				return "", &TranscriptionError{Message: "cancelled during retry", Cause: ctx.Err()}
			}
		}

		text, err := c.doRequest(ctx, filepath.Base(path), audioData, profile)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return text, nil
		}

		lastErr = err

		if !isRetryable(ctx, err) {
			break
		}
	}

	c.incrementFailedRequests()
	return "", lastErr
}

// doRequest performs a single HTTP request to the transcription API
func (c *Client) doRequest(ctx context.Context, filename string, audioData []byte, profile Profile) (string, error) {
	body, contentType, err := c.createMultipartRequest(filename, audioData, profile)
	if err != nil {
		return "", &TranscriptionError{Message: "failed to create multipart request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return "", &TranscriptionError{Message: "failed to create HTTP request", Cause: err}
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "voicebot/1.0")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &TranscriptionError{Message: "HTTP request failed", Cause: err, Retryable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TranscriptionError{Message: "failed to read response body", Cause: err, Retryable: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TranscriptionError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
			Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	var transcriptionResp transcriptionResponse
	if err := json.Unmarshal(respBody, &transcriptionResp); err != nil {
		return "", &TranscriptionError{Message: "failed to parse response JSON", Cause: err}
	}

	return joinSegments(transcriptionResp), nil
}

// createMultipartRequest creates a multipart/form-data request body
func (c *Client) createMultipartRequest(filename string, audioData []byte, profile Profile) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(audioData); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	params := profile.Params()
	fields := [][2]string{
		{"model", c.config.Model},
		{"response_format", "verbose_json"},
		{"temperature", "0"},
		{"beam_size", strconv.Itoa(params.BeamSize)},
	}
	if params.BestOf > 0 {
		fields = append(fields, [2]string{"best_of", strconv.Itoa(params.BestOf)})
	}
	if params.VADFilter {
		fields = append(fields,
			[2]string{"vad_filter", "true"},
			[2]string{"vad_threshold", strconv.FormatFloat(params.VADThreshold, 'f', -1, 64)},
		)
	}
	if c.config.Language != "" {
		fields = append(fields, [2]string{"language", c.config.Language})
	}

	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", field[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// joinSegments concatenates segment texts in chronological order, falling
// back to the top-level text for servers that omit segments.
func joinSegments(resp transcriptionResponse) string {
	if len(resp.Segments) == 0 {
		return strings.TrimSpace(resp.Text)
	}

	var sb strings.Builder
	for _, seg := range resp.Segments {
		sb.WriteString(seg.Text)
	}
	return strings.TrimSpace(sb.String())
}

// errorMessage extracts the message from an OpenAI-style error body
func errorMessage(body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Error.Message != "" {
			return errResp.Error.Message
		}
		if errResp.Detail != "" {
			return errResp.Detail
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return msg
}

// isRetryable reports whether a failed attempt should be retried
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var terr *TranscriptionError
	if errors.As(err, &terr) {
		return terr.Retryable
	}
	return false
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for in-flight requests to complete
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	c.httpClient.CloseIdleConnections()
	return nil
}
