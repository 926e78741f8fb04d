package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AmalSKumar0/voicebot/internal/stream"
)

const (
	writeTimeout      = 10 * time.Second
	closeFrameTimeout = 2 * time.Second
)

// wsConn adapts a gorilla WebSocket to stream.Conn. Inbound binary messages
// are fragments; outbound messages are JSON text frames.
type wsConn struct {
	conn *websocket.Conn

	// maxFragmentBytes bounds how much of one message is buffered; 0 means
	// no limit
	maxFragmentBytes int

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn, maxFragmentBytes int) *wsConn {
	return &wsConn{conn: conn, maxFragmentBytes: maxFragmentBytes}
}

// Receive blocks for the next binary message. Text frames are skipped.
// A message over maxFragmentBytes is drained without being buffered and
// reported as a *stream.FragmentTooLargeError.
func (c *wsConn) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("%w: %v", stream.ErrPeerClosed, err)
	}

	// Unblock the read when ctx ends
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		messageType, r, err := c.conn.NextReader()
		if err == nil && messageType != websocket.BinaryMessage {
			continue
		}

		var data []byte
		if err == nil {
			data, err = c.readFragment(r)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var tooLarge *stream.FragmentTooLargeError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, classifyReadError(err)
		}
		return data, nil
	}
}

// readFragment reads one message body, keeping at most maxFragmentBytes+1
// bytes in memory
func (c *wsConn) readFragment(r io.Reader) ([]byte, error) {
	if c.maxFragmentBytes <= 0 {
		return io.ReadAll(r)
	}

	data, err := io.ReadAll(io.LimitReader(r, int64(c.maxFragmentBytes)+1))
	if err != nil {
		return nil, err
	}
	if len(data) <= c.maxFragmentBytes {
		return data, nil
	}

	rest, err := io.Copy(io.Discard, r)
	if err != nil {
		return nil, err
	}
	return nil, &stream.FragmentTooLargeError{
		Size:  len(data) + int(rest),
		Limit: c.maxFragmentBytes,
	}
}

// classifyReadError maps a gorilla read error onto the stream sentinels
func classifyReadError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return stream.ErrReceiveTimeout
	}
	return fmt.Errorf("%w: %v", stream.ErrPeerClosed, err)
}

// Send writes v as a JSON text frame
func (c *wsConn) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Close sends a normal close frame and closes the socket. Safe to call
// more than once.
func (c *wsConn) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

// closeWith sends a close frame with code and reason, then closes the socket
func (c *wsConn) closeWith(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(closeFrameTimeout))
		c.writeMu.Unlock()

		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address
func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
