package conversation

import (
	"context"
	"hash/fnv"
	"sync"
)

const shardCount = 32

type shard struct {
	mu       sync.RWMutex
	sessions map[string][]Message
}

// MemoryStore keeps histories in process memory, sharded by session id so
// unrelated sessions rarely contend on the same lock.
type MemoryStore struct {
	window int
	shards [shardCount]*shard
}

// NewMemoryStore creates an in-memory store keeping window messages per session
func NewMemoryStore(window int) *MemoryStore {
	if window <= 0 {
		window = DefaultWindow
	}

	s := &MemoryStore{window: window}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string][]Message)}
	}
	return s
}

func (s *MemoryStore) shardFor(sessionID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return s.shards[h.Sum32()%shardCount]
}

// Append implements Store. It fails only on invalid input.
func (s *MemoryStore) Append(_ context.Context, sessionID string, msg Message) error {
	if err := validate(sessionID, msg); err != nil {
		return err
	}

	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	history := append(sh.sessions[sessionID], msg)
	if len(history) > s.window {
		// Copy so the dropped head is not retained by the backing array
		trimmed := make([]Message, s.window)
		copy(trimmed, history[len(history)-s.window:])
		history = trimmed
	}
	sh.sessions[sessionID] = history
	return nil
}

// Snapshot implements Store.
func (s *MemoryStore) Snapshot(_ context.Context, sessionID string) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	sh := s.shardFor(sessionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	history := sh.sessions[sessionID]
	out := make([]Message, len(history))
	copy(out, history)
	return out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidID
	}

	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	delete(sh.sessions, sessionID)
	sh.mu.Unlock()
	return nil
}

// Len returns the number of sessions with stored history
func (s *MemoryStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return total
}

// Window returns the per-session message limit
func (s *MemoryStore) Window() int {
	return s.window
}
