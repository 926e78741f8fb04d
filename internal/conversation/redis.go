package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session's history in a Redis list. Appends run as a
// MULTI/EXEC transaction so push, trim and expiry are atomic per key.
type RedisStore struct {
	client *redis.Client
	window int
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets how long an idle history is kept. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithWindow sets the number of messages retained per session.
func WithWindow(window int) RedisOption {
	return func(s *RedisStore) {
		if window > 0 {
			s.window = window
		}
	}
}

// NewRedisStore creates a Redis-backed conversation store
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		window: DefaultWindow,
		ttl:    24 * time.Hour,
		prefix: "voicebot",
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":conversation:" + sessionID
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, sessionID string, msg Message) error {
	if err := validate(sessionID, msg); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-s.window), -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append failed: %w", err)
	}

	return nil
}

// Snapshot implements Store.
func (s *RedisStore) Snapshot(ctx context.Context, sessionID string) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	items, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}

	history := make([]Message, 0, len(items))
	for _, item := range items {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		history = append(history, msg)
	}

	return history, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidID
	}

	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Ping checks connectivity to the Redis server
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Window returns the per-session message limit
func (s *RedisStore) Window() int {
	return s.window
}
