package protocol

import (
	"encoding/json"
	"fmt"
)

// Speaker tags carried in the "type" field of a transcript message
const (
	TypeUser = "user"
	TypeAI   = "ai"
)

// Error strings reported to peers
const (
	ErrConversionFailed    = "Audio conversion failed"
	ErrTranscriptionFailed = "Transcription failed"
	ErrReplyFailed         = "AI response failed"
	ErrFragmentTooLarge    = "Audio fragment too large"
	ErrNoAudioFile         = "No audio file provided"
	ErrUploadFailed        = "Failed to save upload"
)

// Transcript is a transcribed utterance or a generated reply
// Layout: {"text": string, "type": "user"|"ai"}
type Transcript struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Error reports a recoverable or fatal failure
// Layout: {"error": string}
type Error struct {
	Error string `json:"error"`
}

// BatchResult is the successful batch endpoint response
// Layout: {"text": string}
type BatchResult struct {
	Text string `json:"text"`
}

// Message is any outbound message, decoded for inspection
type Message struct {
	Text  string `json:"text,omitempty"`
	Type  string `json:"type,omitempty"`
	Error string `json:"error,omitempty"`
}

// UserTranscript builds the message echoing the caller's utterance
func UserTranscript(text string) Transcript {
	return Transcript{Text: text, Type: TypeUser}
}

// AIReply builds the message carrying the assistant's reply
func AIReply(text string) Transcript {
	return Transcript{Text: text, Type: TypeAI}
}

// NewError builds an error message
func NewError(msg string) Error {
	return Error{Error: msg}
}

// IsError reports whether the message is an error report
func (m *Message) IsError() bool {
	return m.Error != ""
}

// ParseMessage decodes one outbound message
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	if err := ValidateMessage(&msg); err != nil {
		return nil, err
	}

	return &msg, nil
}

// ValidateMessage checks that a message is exactly one of the known shapes
func ValidateMessage(msg *Message) error {
	if msg.Error != "" {
		if msg.Text != "" || msg.Type != "" {
			return fmt.Errorf("error message must not carry text or type")
		}
		return nil
	}

	switch msg.Type {
	case TypeUser, TypeAI:
	case "":
		// batch result
	default:
		return fmt.Errorf("invalid message type: %q", msg.Type)
	}

	if msg.Text == "" {
		return fmt.Errorf("message has neither text nor error")
	}

	return nil
}

// String returns a string representation of the message
func (m *Message) String() string {
	if m.IsError() {
		return fmt.Sprintf("Error{%s}", m.Error)
	}
	if m.Type == "" {
		return fmt.Sprintf("Result{%q}", m.Text)
	}
	return fmt.Sprintf("Transcript{Type: %s, Text: %q}", m.Type, m.Text)
}
