package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AmalSKumar0/voicebot/internal/conversation"
)

// Engine produces the next reply for a message sequence
type Engine interface {
	Complete(ctx context.Context, messages []conversation.Message) (string, error)
}

// ErrEmptyReply is returned when the engine answers with only whitespace
var ErrEmptyReply = errors.New("empty reply")

// ReplyError reports a failed reply generation
type ReplyError struct {
	SessionID string
	Op        string // "snapshot", "complete" or "append"
	Cause     error
}

// Error implements the error interface.
func (e *ReplyError) Error() string {
	return fmt.Sprintf("reply %s for session %s: %v", e.Op, e.SessionID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ReplyError) Unwrap() error {
	return e.Cause
}

// Service generates replies against a conversation store
type Service struct {
	engine       Engine
	store        conversation.Store
	systemPrompt string
	logger       *slog.Logger
}

// NewService creates a reply service. systemPrompt is prepended to every
// request and never stored.
func NewService(engine Engine, store conversation.Store, systemPrompt string, logger *slog.Logger) *Service {
	return &Service{
		engine:       engine,
		store:        store,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

// GenerateReply asks the engine for the next assistant turn of sessionID and
// appends it to the history. History is untouched when the engine fails or
// returns a blank reply.
func (s *Service) GenerateReply(ctx context.Context, sessionID string) (string, error) {
	history, err := s.store.Snapshot(ctx, sessionID)
	if err != nil {
		return "", &ReplyError{SessionID: sessionID, Op: "snapshot", Cause: err}
	}

	messages := make([]conversation.Message, 0, len(history)+1)
	if s.systemPrompt != "" {
		messages = append(messages, conversation.Message{Role: conversation.RoleSystem, Content: s.systemPrompt})
	}
	messages = append(messages, history...)

	startTime := time.Now()
	text, err := s.engine.Complete(ctx, messages)
	if err != nil {
		return "", &ReplyError{SessionID: sessionID, Op: "complete", Cause: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &ReplyError{SessionID: sessionID, Op: "complete", Cause: ErrEmptyReply}
	}

	if err := s.store.Append(ctx, sessionID, conversation.Message{Role: conversation.RoleAssistant, Content: text}); err != nil {
		return "", &ReplyError{SessionID: sessionID, Op: "append", Cause: err}
	}

	s.logger.Debug("Generated reply",
		slog.String("session_id", sessionID),
		slog.Int("history_len", len(history)),
		slog.Duration("duration", time.Since(startTime)),
	)

	return text, nil
}
