package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/AmalSKumar0/voicebot/internal/audio/audiotest"
)

// fakeFFmpeg is a stand-in for ffmpeg: it records its arguments, fails on
// inputs containing CORRUPT (after writing a partial file) and otherwise
// copies the input to the output path, so a WAV input yields WAV output.
const fakeFFmpeg = `#!/bin/sh
in=""
out=""
echo "$@" > "$FAKE_FFMPEG_ARGS"
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift 2 ;;
    -ar|-ac|-loglevel) shift 2 ;;
    -y) shift ;;
    *) out="$1"; shift ;;
  esac
done
if grep -q CORRUPT "$in"; then
  echo "partial" > "$out"
  echo "Invalid data found when processing input" >&2
  exit 1
fi
if grep -q SLOW "$in"; then
  sleep 5
fi
cp "$in" "$out"
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newFakeTranscoder(t *testing.T, timeout time.Duration) (*FFmpegTranscoder, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg requires a POSIX shell")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(script, []byte(fakeFFmpeg), 0o755); err != nil {
		t.Fatalf("Failed to write fake ffmpeg: %v", err)
	}

	argsFile := filepath.Join(dir, "args.txt")
	t.Setenv("FAKE_FFMPEG_ARGS", argsFile)

	transcoder := NewFFmpegTranscoder(FFmpegConfig{
		Path:          script,
		SampleRate:    16000,
		Channels:      1,
		Timeout:       timeout,
		MaxConcurrent: 2,
	}, testLogger())

	return transcoder, argsFile
}

func TestNormalizedPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/tmp/abc_123.webm", "/tmp/abc_123.wav"},
		{"/tmp/upload.mp3", "/tmp/upload.wav"},
		{"/tmp/upload.wav", "/tmp/upload.16k.wav"},
		{"/tmp/noext", "/tmp/noext.wav"},
	}

	for _, tt := range tests {
		if got := NormalizedPath(tt.input); got != tt.expected {
			t.Errorf("NormalizedPath(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestTranscodeSuccess(t *testing.T) {
	transcoder, argsFile := newFakeTranscoder(t, 5*time.Second)

	input := audiotest.WriteWAV(t, t.TempDir(), "chunk.webm", sineSamples(16000, 100*time.Millisecond), 16000)

	output, err := transcoder.Transcode(context.Background(), input)
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}

	if output != NormalizedPath(input) {
		t.Errorf("Expected output %s, got %s", NormalizedPath(input), output)
	}

	if _, err := os.Stat(output); err != nil {
		t.Errorf("Expected output file to exist: %v", err)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("Failed to read recorded args: %v", err)
	}
	for _, want := range []string{"-y", "-i " + input, "-ar 16000", "-ac 1", output} {
		if !strings.Contains(string(args), want) {
			t.Errorf("Expected ffmpeg args to contain %q, got %q", want, string(args))
		}
	}
}

func TestTranscodeFailureLeavesNoOutput(t *testing.T) {
	transcoder, _ := newFakeTranscoder(t, 5*time.Second)

	input := filepath.Join(t.TempDir(), "chunk.webm")
	if err := os.WriteFile(input, []byte("CORRUPT"), 0o600); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	_, err := transcoder.Transcode(context.Background(), input)
	if err == nil {
		t.Fatal("Expected transcode error")
	}

	var terr *TranscodeError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected *TranscodeError, got %T", err)
	}
	if terr.ExitCode != 1 {
		t.Errorf("Expected exit code 1, got %d", terr.ExitCode)
	}
	if !strings.Contains(terr.Stderr, "Invalid data") {
		t.Errorf("Expected stderr to be captured, got %q", terr.Stderr)
	}

	if _, err := os.Stat(NormalizedPath(input)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected partial output to be removed, stat err: %v", err)
	}
}

func TestTranscodeRejectsUnexpectedOutput(t *testing.T) {
	tests := []struct {
		name  string
		write func(t *testing.T, dir string) string
		want  string
	}{
		{
			name: "wrong sample rate",
			write: func(t *testing.T, dir string) string {
				return audiotest.WriteWAV(t, dir, "chunk.webm", sineSamples(8000, 100*time.Millisecond), 8000)
			},
			want: "unexpected output format: 8000 Hz",
		},
		{
			name: "not a WAV file",
			write: func(t *testing.T, dir string) string {
				path := filepath.Join(dir, "chunk.webm")
				if err := os.WriteFile(path, []byte("webm-bytes"), 0o600); err != nil {
					t.Fatalf("Failed to write input: %v", err)
				}
				return path
			},
			want: "unreadable output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transcoder, _ := newFakeTranscoder(t, 5*time.Second)
			input := tt.write(t, t.TempDir())

			_, err := transcoder.Transcode(context.Background(), input)
			var terr *TranscodeError
			if !errors.As(err, &terr) {
				t.Fatalf("Expected *TranscodeError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error to contain %q, got %q", tt.want, err.Error())
			}

			if _, err := os.Stat(NormalizedPath(input)); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("Expected rejected output to be removed, stat err: %v", err)
			}
		})
	}
}

func TestTranscodeMissingBinary(t *testing.T) {
	transcoder := NewFFmpegTranscoder(FFmpegConfig{
		Path: filepath.Join(t.TempDir(), "does-not-exist"),
	}, testLogger())

	input := filepath.Join(t.TempDir(), "chunk.webm")
	if err := os.WriteFile(input, []byte("data"), 0o600); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	_, err := transcoder.Transcode(context.Background(), input)
	var terr *TranscodeError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected *TranscodeError, got %v", err)
	}
}

func TestTranscodeTimeout(t *testing.T) {
	transcoder, _ := newFakeTranscoder(t, 200*time.Millisecond)

	input := filepath.Join(t.TempDir(), "chunk.webm")
	if err := os.WriteFile(input, []byte("SLOW"), 0o600); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	start := time.Now()
	_, err := transcoder.Transcode(context.Background(), input)
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("Transcode was not cut short: %v", elapsed)
	}
}

func TestTranscodeCancelledWhileWaitingForSlot(t *testing.T) {
	transcoder := NewFFmpegTranscoder(FFmpegConfig{MaxConcurrent: 1}, testLogger())

	// Occupy the only slot
	if err := transcoder.pool.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Failed to occupy slot: %v", err)
	}
	defer transcoder.pool.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := transcoder.Transcode(ctx, "/tmp/never-used.webm")
	var terr *TranscodeError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected *TranscodeError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
