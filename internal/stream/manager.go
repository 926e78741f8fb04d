package stream

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTooManySessions is returned by Open when the session limit is reached
	ErrTooManySessions = errors.New("too many active sessions")

	// ErrManagerStopped is returned by Open after Stop
	ErrManagerStopped = errors.New("session manager stopped")
)

// evictTimeout bounds the history deletion performed at session teardown
const evictTimeout = 5 * time.Second

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	MaxSessions  int // zero means unlimited
	EvictOnClose bool
	Session      SessionConfig
}

// Manager manages all active streaming sessions
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	config   ManagerConfig
	deps     Dependencies

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
	stopped bool
}

// NewManager creates a new session manager
func NewManager(deps Dependencies, config ManagerConfig, logger *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		config:   config,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Open registers a new session for conn. The session must then be driven
// by Run, which releases it.
func (m *Manager) Open(conn Conn) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrManagerStopped
	}

	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		m.deps.Metrics.RecordSessionRejected()
		m.logger.Warn("Rejected session at limit",
			slog.Int("active_sessions", len(m.sessions)),
			slog.Int("max_sessions", m.config.MaxSessions),
		)
		return nil, ErrTooManySessions
	}

	session := NewSession(uuid.NewString(), conn, m.deps, m.config.Session, m.logger)
	m.sessions[session.ID] = session
	m.running.Add(1)

	m.deps.Metrics.RecordSessionOpened()
	m.logger.Info("Created new session",
		slog.String("session_id", session.ID),
		slog.String("remote_addr", session.RemoteAddr),
	)

	return session, nil
}

// Serve opens a session for conn, runs it until it ends and tears it down.
// The connection is closed before Serve returns.
func (m *Manager) Serve(ctx context.Context, conn Conn) error {
	session, err := m.Open(conn)
	if err != nil {
		conn.Close()
		return err
	}

	return m.Run(ctx, session)
}

// Run drives a session returned by Open until it ends, then closes its
// connection and unregisters it.
func (m *Manager) Run(ctx context.Context, session *Session) error {
	defer m.running.Done()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	err := session.Run(runCtx)

	if closeErr := session.conn.Close(); closeErr != nil {
		m.logger.Debug("Error closing connection",
			slog.String("session_id", session.ID),
			slog.String("error", closeErr.Error()),
		)
	}

	m.remove(ctx, session)
	return err
}

// remove unregisters a session and, when configured, evicts its history
func (m *Manager) remove(ctx context.Context, session *Session) {
	m.mu.Lock()
	delete(m.sessions, session.ID)
	m.mu.Unlock()

	if m.config.EvictOnClose && m.deps.Store != nil {
		evictCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), evictTimeout)
		defer cancel()

		if err := m.deps.Store.Delete(evictCtx, session.ID); err != nil {
			m.logger.Warn("Failed to evict conversation history",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	info := session.GetSessionInfo()
	reason := session.CloseReason()
	m.deps.Metrics.RecordSessionClosed(reason, info.Duration.Seconds())

	m.logger.Info("Session removed",
		slog.String("session_id", session.ID),
		slog.String("reason", reason),
		slog.Duration("duration", info.Duration),
		slog.Uint64("fragments_received", info.FragmentsReceived),
		slog.Uint64("transcripts_emitted", info.TranscriptsEmitted),
		slog.Uint64("replies_sent", info.RepliesSent),
	)
}

// GetSession retrieves an active session
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// GetActiveSessionCount returns the number of currently active sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns a snapshot of all active sessions, oldest first
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
	return sessions
}

// Stop cancels all running sessions and waits for their teardown
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	active := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("Stopping session manager...", slog.Int("active_sessions", active))

	m.cancel()
	m.running.Wait()

	m.logger.Info("Session manager stopped")
}
