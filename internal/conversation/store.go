package conversation

import (
	"context"
	"errors"
)

// DefaultWindow is the number of messages retained per session
const DefaultWindow = 6

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one immutable history entry
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Store is the session-keyed conversation history
type Store interface {
	// Append adds msg to the tail of the session's history, trimming the
	// head so at most the window remains.
	Append(ctx context.Context, sessionID string, msg Message) error
	// Snapshot returns a copy of the session's history, oldest first.
	Snapshot(ctx context.Context, sessionID string) ([]Message, error)
	// Delete drops the session's history.
	Delete(ctx context.Context, sessionID string) error
}

var (
	// ErrInvalidID is returned for an empty session identifier
	ErrInvalidID = errors.New("invalid session id")

	// ErrInvalidRole is returned when a message carries an unknown role
	ErrInvalidRole = errors.New("invalid message role")
)

func validate(sessionID string, msg Message) error {
	if sessionID == "" {
		return ErrInvalidID
	}
	if !msg.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}
