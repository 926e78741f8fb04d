package transcription

import (
	"context"
	"errors"
	"fmt"
)

// Transcriber converts a normalized audio file into text
type Transcriber interface {
	Transcribe(ctx context.Context, path string, profile Profile) (string, error)
}

// Profile is a named quality/latency tradeoff for transcription
type Profile int

const (
	// ProfileFast uses greedy decoding for per-fragment streaming
	ProfileFast Profile = iota
	// ProfileAccurate uses beam search with voice activity filtering
	ProfileAccurate
)

// String returns the profile name
func (p Profile) String() string {
	switch p {
	case ProfileFast:
		return "fast"
	case ProfileAccurate:
		return "accurate"
	default:
		return fmt.Sprintf("profile(%d)", int(p))
	}
}

// DecodeParams are the decoder settings a profile maps to
type DecodeParams struct {
	BeamSize     int
	BestOf       int
	VADFilter    bool
	VADThreshold float64
}

// Params returns the decoder settings for the profile
func (p Profile) Params() DecodeParams {
	if p == ProfileAccurate {
		return DecodeParams{
			BeamSize:     5,
			BestOf:       5,
			VADFilter:    true,
			VADThreshold: 0.5,
		}
	}
	return DecodeParams{BeamSize: 1}
}

// ErrEmptyAudio is returned when the audio file has no content
var ErrEmptyAudio = errors.New("audio data is empty")

// TranscriptionError represents a failed transcription request
type TranscriptionError struct {
	// StatusCode is the HTTP status returned by the server, 0 for transport errors
	StatusCode int
	Message    string
	Cause      error
	Retryable  bool
}

// Error implements the error interface.
func (e *TranscriptionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transcription error [%d]: %s", e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("transcription error: %s: %v", e.Message, e.Cause)
	}
	return "transcription error: " + e.Message
}

// Unwrap returns the underlying error.
func (e *TranscriptionError) Unwrap() error {
	return e.Cause
}
