package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/AmalSKumar0/voicebot/internal/audio"
	"github.com/AmalSKumar0/voicebot/internal/conversation"
	"github.com/AmalSKumar0/voicebot/internal/metrics"
	"github.com/AmalSKumar0/voicebot/internal/protocol"
	"github.com/AmalSKumar0/voicebot/internal/transcription"
	"github.com/AmalSKumar0/voicebot/internal/vad"
)

// State is the lifecycle state of a session
type State int32

const (
	StateConnected State = iota
	StateReceiving
	StateProcessing
	StateClosed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReceiving:
		return "receiving"
	case StateProcessing:
		return "processing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Reasons a session ended
const (
	CloseReasonTimeout    = "timeout"
	CloseReasonPeerClosed = "peer_closed"
	CloseReasonShutdown   = "shutdown"
	CloseReasonFault      = "fault"
)

// Replier generates the assistant's next turn for a session
type Replier interface {
	GenerateReply(ctx context.Context, sessionID string) (string, error)
}

// Dependencies are the collaborators shared by all sessions
type Dependencies struct {
	Workspace   *audio.Workspace
	Transcoder  audio.Transcoder
	Transcriber transcription.Transcriber
	Store       conversation.Store
	Replier     Replier
	Gate        *vad.Processor // optional silence gate
	Metrics     *metrics.Metrics
}

// SessionConfig contains per-session limits
type SessionConfig struct {
	ReceiveTimeout     time.Duration
	MaxFragmentBytes   int
	FragmentsPerSecond float64 // zero disables throttling
	FragmentBurst      int
}

// Session is one streaming connection and its transient state
type Session struct {
	ID         string
	RemoteAddr string
	StartTime  time.Time

	conn    Conn
	deps    Dependencies
	config  SessionConfig
	limiter *rate.Limiter
	logger  *slog.Logger

	state atomic.Int32

	// Guarded by mu
	lastTranscript        string
	lastActivity          time.Time
	closeReason           string
	fragmentsReceived     uint64
	bytesReceived         uint64
	transcriptsEmitted    uint64
	transcriptsSuppressed uint64
	repliesSent           uint64
	errorsReported        uint64

	mu sync.RWMutex
}

// SessionInfo is a monitoring snapshot of a session
type SessionInfo struct {
	SessionID             string        `json:"session_id"`
	RemoteAddr            string        `json:"remote_addr,omitempty"`
	State                 string        `json:"state"`
	StartTime             time.Time     `json:"start_time"`
	LastActivity          time.Time     `json:"last_activity"`
	Duration              time.Duration `json:"duration"`
	LastTranscript        string        `json:"last_transcript"`
	FragmentsReceived     uint64        `json:"fragments_received"`
	BytesReceived         uint64        `json:"bytes_received"`
	TranscriptsEmitted    uint64        `json:"transcripts_emitted"`
	TranscriptsSuppressed uint64        `json:"transcripts_suppressed"`
	RepliesSent           uint64        `json:"replies_sent"`
	ErrorsReported        uint64        `json:"errors_reported"`
}

// NewSession creates a session for conn. Sessions are normally created
// through Manager.Open.
func NewSession(id string, conn Conn, deps Dependencies, config SessionConfig, logger *slog.Logger) *Session {
	if config.ReceiveTimeout <= 0 {
		config.ReceiveTimeout = 30 * time.Second
	}

	now := time.Now()
	s := &Session{
		ID:           id,
		StartTime:    now,
		conn:         conn,
		deps:         deps,
		config:       config,
		logger:       logger.With(slog.String("session_id", id)),
		lastActivity: now,
	}

	if ra, ok := conn.(remoteAddresser); ok {
		s.RemoteAddr = ra.RemoteAddr()
	}

	if config.FragmentsPerSecond > 0 {
		burst := config.FragmentBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.FragmentsPerSecond), burst)
	}

	return s
}

// Run processes fragments until the peer disconnects, the receive timeout
// elapses or ctx is cancelled; these end the session cleanly and return nil.
// Any other fault is reported to the peer and returned.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateClosed)

	for {
		s.setState(StateReceiving)

		data, err := s.conn.Receive(ctx, s.config.ReceiveTimeout)
		if err != nil {
			var tooLarge *FragmentTooLargeError
			switch {
			case errors.As(err, &tooLarge):
				if err := s.rejectOversized(tooLarge.Size); err != nil {
					return s.fault(err)
				}
				continue
			case errors.Is(err, ErrReceiveTimeout):
				s.setCloseReason(CloseReasonTimeout)
				return nil
			case errors.Is(err, ErrPeerClosed):
				s.setCloseReason(CloseReasonPeerClosed)
				return nil
			case ctx.Err() != nil:
				s.setCloseReason(CloseReasonShutdown)
				return nil
			default:
				return s.fault(fmt.Errorf("receive failed: %w", err))
			}
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				s.setCloseReason(CloseReasonShutdown)
				return nil
			}
		}

		s.setState(StateProcessing)
		if err := s.processFragment(ctx, data); err != nil {
			if ctx.Err() != nil {
				s.setCloseReason(CloseReasonShutdown)
				return nil
			}
			return s.fault(err)
		}
	}
}

// fault reports err to the peer if the channel is still writable
func (s *Session) fault(err error) error {
	s.setCloseReason(CloseReasonFault)
	s.logger.Error("Session fault", slog.String("error", err.Error()))

	if sendErr := s.conn.Send(protocol.NewError(err.Error())); sendErr == nil {
		s.incErrors()
	}
	return err
}

// processFragment runs one fragment through the pipeline. Recoverable
// adapter failures are reported to the peer and return nil; the returned
// error is an unexpected fault that ends the session.
func (s *Session) processFragment(ctx context.Context, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing fragment: %v", r)
		}
	}()

	if s.config.MaxFragmentBytes > 0 && len(data) > s.config.MaxFragmentBytes {
		return s.rejectOversized(len(data))
	}

	s.recordFragment(len(data))
	s.deps.Metrics.RecordFragment(len(data))

	rawPath := s.deps.Workspace.FragmentPath(s.ID)
	wavPath := ""
	defer func() {
		s.deps.Workspace.Remove(rawPath, audio.NormalizedPath(rawPath), wavPath)
	}()

	if err := s.deps.Workspace.WriteFile(rawPath, data); err != nil {
		return fmt.Errorf("failed to persist fragment: %w", err)
	}

	startTime := time.Now()
	wavPath, err = s.deps.Transcoder.Transcode(ctx, rawPath)
	s.deps.Metrics.RecordTranscode(err == nil, time.Since(startTime).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("Fragment conversion failed", slog.String("error", err.Error()))
		return s.sendError(protocol.ErrConversionFailed)
	}

	if s.deps.Gate != nil {
		analysis, gateErr := s.deps.Gate.AnalyzeFile(wavPath)
		switch {
		case gateErr != nil:
			s.logger.Debug("Silence gate skipped", slog.String("error", gateErr.Error()))
		case !analysis.HasVoice:
			s.deps.Metrics.RecordSilentFragment()
			s.suppress()
			return nil
		}
	}

	startTime = time.Now()
	transcript, err := s.deps.Transcriber.Transcribe(ctx, wavPath, transcription.ProfileFast)
	s.deps.Metrics.RecordTranscription(transcription.ProfileFast.String(), err == nil, time.Since(startTime).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("Fragment transcription failed", slog.String("error", err.Error()))
		return s.sendError(protocol.ErrTranscriptionFailed)
	}

	transcript = strings.TrimSpace(transcript)
	if !s.acceptTranscript(transcript) {
		s.suppress()
		return nil
	}

	s.deps.Metrics.RecordTranscript(true)
	s.logger.Info("New utterance", slog.String("transcript", transcript))

	if err := s.send(protocol.UserTranscript(transcript)); err != nil {
		return err
	}
	s.incEmitted()

	userMsg := conversation.Message{Role: conversation.RoleUser, Content: transcript}
	if err := s.deps.Store.Append(ctx, s.ID, userMsg); err != nil {
		return fmt.Errorf("failed to record utterance: %w", err)
	}

	startTime = time.Now()
	reply, err := s.deps.Replier.GenerateReply(ctx, s.ID)
	s.deps.Metrics.RecordReply(err == nil, time.Since(startTime).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("Reply generation failed", slog.String("error", err.Error()))
		return s.sendError(protocol.ErrReplyFailed)
	}

	if err := s.send(protocol.AIReply(reply)); err != nil {
		return err
	}
	s.incReplies()

	return nil
}

// acceptTranscript applies the dedup policy: empty transcripts and exact
// repeats of the previous emitted transcript are rejected.
func (s *Session) acceptTranscript(transcript string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if transcript == "" || transcript == s.lastTranscript {
		return false
	}
	s.lastTranscript = transcript
	return true
}

func (s *Session) send(v any) error {
	if err := s.conn.Send(v); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

// rejectOversized counts a fragment of size bytes that was not processed
// and tells the peer
func (s *Session) rejectOversized(size int) error {
	s.recordFragment(size)
	s.deps.Metrics.RecordFragment(size)
	s.logger.Warn("Rejected oversized fragment",
		slog.Int("fragment_bytes", size),
		slog.Int("max_bytes", s.config.MaxFragmentBytes),
	)
	return s.sendError(protocol.ErrFragmentTooLarge)
}

func (s *Session) sendError(msg string) error {
	if err := s.send(protocol.NewError(msg)); err != nil {
		return err
	}
	s.incErrors()
	return nil
}

func (s *Session) suppress() {
	s.deps.Metrics.RecordTranscript(false)
	s.mu.Lock()
	s.transcriptsSuppressed++
	s.mu.Unlock()
}

func (s *Session) recordFragment(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragmentsReceived++
	s.bytesReceived += uint64(size)
	s.lastActivity = time.Now()
}

func (s *Session) incEmitted() {
	s.mu.Lock()
	s.transcriptsEmitted++
	s.mu.Unlock()
}

func (s *Session) incReplies() {
	s.mu.Lock()
	s.repliesSent++
	s.mu.Unlock()
}

func (s *Session) incErrors() {
	s.mu.Lock()
	s.errorsReported++
	s.mu.Unlock()
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

func (s *Session) setCloseReason(reason string) {
	s.mu.Lock()
	s.closeReason = reason
	s.mu.Unlock()
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return State(s.state.Load())
}

// CloseReason returns why the session ended, empty while it is running
func (s *Session) CloseReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closeReason
}

// LastTranscript returns the most recently emitted transcript
func (s *Session) LastTranscript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTranscript
}

// GetSessionInfo returns a monitoring snapshot
func (s *Session) GetSessionInfo() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		SessionID:             s.ID,
		RemoteAddr:            s.RemoteAddr,
		State:                 s.State().String(),
		StartTime:             s.StartTime,
		LastActivity:          s.lastActivity,
		Duration:              time.Since(s.StartTime),
		LastTranscript:        s.lastTranscript,
		FragmentsReceived:     s.fragmentsReceived,
		BytesReceived:         s.bytesReceived,
		TranscriptsEmitted:    s.transcriptsEmitted,
		TranscriptsSuppressed: s.transcriptsSuppressed,
		RepliesSent:           s.repliesSent,
		ErrorsReported:        s.errorsReported,
	}
}
