package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/AmalSKumar0/voicebot/internal/audio"
	"github.com/AmalSKumar0/voicebot/internal/metrics"
	"github.com/AmalSKumar0/voicebot/internal/protocol"
	"github.com/AmalSKumar0/voicebot/internal/transcription"
)

// Stages at which a batch request can fail
const (
	StageUpload     = "upload"
	StageTranscode  = "transcode"
	StageTranscribe = "transcribe"
)

// StageError reports which step of a batch request failed
type StageError struct {
	Stage string
	Cause error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("batch %s failed: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Cause
}

// Message returns the error text reported to clients
func (e *StageError) Message() string {
	switch e.Stage {
	case StageUpload:
		return protocol.ErrUploadFailed
	case StageTranscode:
		return protocol.ErrConversionFailed
	default:
		return protocol.ErrTranscriptionFailed
	}
}

// Handler runs one-shot transcriptions
type Handler struct {
	workspace   *audio.Workspace
	transcoder  audio.Transcoder
	transcriber transcription.Transcriber
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewHandler creates a batch handler
func NewHandler(workspace *audio.Workspace, transcoder audio.Transcoder, transcriber transcription.Transcriber, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		workspace:   workspace,
		transcoder:  transcoder,
		transcriber: transcriber,
		metrics:     m,
		logger:      logger,
	}
}

// Transcribe saves the upload, normalizes it and transcribes it with the
// accurate profile. Failures are returned as *StageError.
func (h *Handler) Transcribe(ctx context.Context, filename string, r io.Reader) (string, error) {
	h.metrics.RecordBatchRequest()
	startTime := time.Now()

	rawPath := h.workspace.UploadPath(filename)
	wavPath := ""
	defer func() {
		h.workspace.Remove(rawPath, audio.NormalizedPath(rawPath), wavPath)
	}()

	size, err := h.workspace.Save(rawPath, r)
	if err != nil {
		return "", h.fail(StageUpload, err)
	}

	transcodeStart := time.Now()
	wavPath, err = h.transcoder.Transcode(ctx, rawPath)
	h.metrics.RecordTranscode(err == nil, time.Since(transcodeStart).Seconds())
	if err != nil {
		return "", h.fail(StageTranscode, err)
	}

	transcribeStart := time.Now()
	text, err := h.transcriber.Transcribe(ctx, wavPath, transcription.ProfileAccurate)
	text = strings.TrimSpace(text)
	h.metrics.RecordTranscription(transcription.ProfileAccurate.String(), err == nil, time.Since(transcribeStart).Seconds())
	if err != nil {
		return "", h.fail(StageTranscribe, err)
	}

	h.logger.Info("Batch transcription completed",
		slog.String("filename", filename),
		slog.Int64("upload_bytes", size),
		slog.Int("transcript_chars", len(text)),
		slog.Duration("duration", time.Since(startTime)),
	)

	return text, nil
}

func (h *Handler) fail(stage string, err error) error {
	h.metrics.RecordBatchFailure(stage)
	h.logger.Warn("Batch transcription failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	return &StageError{Stage: stage, Cause: err}
}
