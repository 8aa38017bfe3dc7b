package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound indicates no live session exists for the ID.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists sessions. Records expire after a period of
// inactivity; an expired session reads as ErrSessionNotFound.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]memorySession
}

type memorySession struct {
	session   *Session
	expiresAt time.Time
}

// NewMemorySessionStore creates a store whose sessions expire ttl after
// their last save. ttl <= 0 disables expiry.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{ttl: ttl, now: time.Now, data: make(map[string]memorySession)}
}

// WithClock overrides the time source.
func (m *MemorySessionStore) WithClock(now func() time.Time) *MemorySessionStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Load implements SessionStore.
func (m *MemorySessionStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.data[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !rec.expiresAt.IsZero() && !m.now().Before(rec.expiresAt) {
		delete(m.data, id)
		return nil, ErrSessionNotFound
	}
	return rec.session.Clone(), nil
}

// Save implements SessionStore.
func (m *MemorySessionStore) Save(_ context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return errors.New("save session: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := memorySession{session: s.Clone()}
	if m.ttl > 0 {
		rec.expiresAt = m.now().Add(m.ttl)
	}
	m.data[s.ID] = rec
	return nil
}

// Delete implements SessionStore.
func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

// RedisSessionStore keeps each session as a JSON string with a key TTL.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisSessionStore wraps client. Sessions expire ttl after their last
// save; ttl <= 0 disables expiry.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl, prefix: "session"}
}

func (r *RedisSessionStore) key(id string) string {
	return r.prefix + ":" + id
}

// Load implements SessionStore.
func (r *RedisSessionStore) Load(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var s Session
	if err := sonic.ConfigStd.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

// Save implements SessionStore.
func (r *RedisSessionStore) Save(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return errors.New("save session: empty id")
	}
	raw, err := sonic.ConfigStd.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(s.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

// Delete implements SessionStore.
func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}
