package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// Transcoder normalizes an arbitrary compressed audio file into a
// fixed-rate mono PCM WAV container.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath string) (string, error)
}

// TranscodeError reports a failed run of the external audio filter
type TranscodeError struct {
	Input    string
	ExitCode int
	Stderr   string
	Cause    error
}

// Error implements the error interface.
func (e *TranscodeError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("transcode %s: exit status %d: %s", filepath.Base(e.Input), e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("transcode %s: %v", filepath.Base(e.Input), e.Cause)
}

// Unwrap returns the underlying error.
func (e *TranscodeError) Unwrap() error {
	return e.Cause
}

// FFmpegConfig contains ffmpeg transcoder configuration
type FFmpegConfig struct {
	Path          string
	SampleRate    int
	Channels      int
	Timeout       time.Duration
	MaxConcurrent int
}

// FFmpegTranscoder shells out to ffmpeg through a bounded worker pool
type FFmpegTranscoder struct {
	config FFmpegConfig
	pool   *semaphore.Weighted
	logger *slog.Logger
}

// maxStderrBytes bounds how much filter output is kept for error reports
const maxStderrBytes = 512

// NewFFmpegTranscoder creates a transcoder, applying defaults for zero values
func NewFFmpegTranscoder(config FFmpegConfig, logger *slog.Logger) *FFmpegTranscoder {
	if config.Path == "" {
		config.Path = "ffmpeg"
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.Channels <= 0 {
		config.Channels = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	return &FFmpegTranscoder{
		config: config,
		pool:   semaphore.NewWeighted(int64(config.MaxConcurrent)),
		logger: logger,
	}
}

// NormalizedPath returns the path Transcode writes its output to for inputPath
func NormalizedPath(inputPath string) string {
	out := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".wav"
	if out == inputPath {
		out = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".16k.wav"
	}
	return out
}

// Transcode converts inputPath and returns the normalized output path.
// On failure no output file is left behind.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, inputPath string) (string, error) {
	outputPath := NormalizedPath(inputPath)

	if err := t.pool.Acquire(ctx, 1); err != nil {
		return "", &TranscodeError{Input: inputPath, Cause: fmt.Errorf("failed to acquire transcoder slot: %w", err)}
	}
	defer t.pool.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	args := []string{
		"-y",
		"-loglevel", "error",
		"-i", inputPath,
		"-ar", strconv.Itoa(t.config.SampleRate),
		"-ac", strconv.Itoa(t.config.Channels),
		outputPath,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, t.config.Path, args...)
	cmd.Stderr = &stderr
	// Children of a killed filter can hold stderr open
	cmd.WaitDelay = time.Second

	startTime := time.Now()
	err := cmd.Run()
	duration := time.Since(startTime)

	if err != nil {
		// ffmpeg may leave a partial file behind
		_ = os.Remove(outputPath)

		terr := &TranscodeError{Input: inputPath, Cause: err, Stderr: tail(stderr.String(), maxStderrBytes)}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			terr.ExitCode = exitErr.ExitCode()
		}
		if runCtx.Err() != nil {
			terr.Cause = fmt.Errorf("%w: %v", runCtx.Err(), err)
		}

		t.logger.Debug("Transcoding failed",
			slog.String("input", inputPath),
			slog.Int("exit_code", terr.ExitCode),
			slog.Duration("duration", duration),
			slog.String("error", terr.Error()),
		)
		return "", terr
	}

	if err := t.checkOutput(outputPath); err != nil {
		_ = os.Remove(outputPath)
		return "", &TranscodeError{Input: inputPath, Cause: err}
	}

	t.logger.Debug("Transcoded audio",
		slog.String("input", inputPath),
		slog.String("output", outputPath),
		slog.Duration("duration", duration),
	)

	return outputPath, nil
}

// checkOutput verifies that path holds 16-bit PCM at the configured rate
// and channel count
func (t *FFmpegTranscoder) checkOutput(path string) error {
	info, err := ReadWAVInfo(path)
	if err != nil {
		return fmt.Errorf("unreadable output: %w", err)
	}

	if int(info.SampleRate) != t.config.SampleRate ||
		int(info.Channels) != t.config.Channels ||
		info.BitsPerSample != 16 {
		return fmt.Errorf("unexpected output format: %d Hz, %d channels, %d-bit (want %d Hz, %d channels, 16-bit)",
			info.SampleRate, info.Channels, info.BitsPerSample, t.config.SampleRate, t.config.Channels)
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
