package stream

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReceiveTimeout is returned by Conn.Receive when no fragment arrives in time
	ErrReceiveTimeout = errors.New("receive timeout")

	// ErrPeerClosed is returned by Conn.Receive after the peer closed the channel
	ErrPeerClosed = errors.New("peer closed connection")

	// ErrFragmentTooLarge matches a FragmentTooLargeError
	ErrFragmentTooLarge = errors.New("fragment too large")
)

// FragmentTooLargeError is returned by Conn.Receive when a fragment exceeds
// the size limit. The fragment has been discarded and the channel stays usable.
type FragmentTooLargeError struct {
	Size  int
	Limit int
}

// Error implements the error interface.
func (e *FragmentTooLargeError) Error() string {
	return fmt.Sprintf("fragment of %d bytes exceeds limit of %d bytes", e.Size, e.Limit)
}

// Is reports whether target is ErrFragmentTooLarge.
func (e *FragmentTooLargeError) Is(target error) bool {
	return target == ErrFragmentTooLarge
}

// Conn is a bidirectional, message-oriented channel to one client
type Conn interface {
	// Receive blocks for the next binary fragment, at most timeout.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	// Send writes one JSON message.
	Send(v any) error
	// Close closes the channel.
	Close() error
}

// remoteAddresser is implemented by connections that know their peer address
type remoteAddresser interface {
	RemoteAddr() string
}
