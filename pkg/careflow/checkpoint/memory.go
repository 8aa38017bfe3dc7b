package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory checkpoint store.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	cfg    storeConfig
	data   map[Key]Record
	closed bool
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		cfg:  applyOptions(opts),
		data: make(map[Key]Record),
	}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, key Key, data []byte, expectedVersion int64) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	now := m.cfg.now()
	var current int64
	if rec, ok := m.data[key]; ok && !expired(rec.ExpiresAt, now) {
		current = rec.Version
	}
	if current != expectedVersion {
		return 0, &ConflictError{Key: key, Expected: expectedVersion, Actual: current}
	}

	// Copy data to avoid retaining caller's slice
	stored := make([]byte, len(data))
	copy(stored, data)

	next := current + 1
	m.data[key] = Record{
		Key:       key,
		Data:      stored,
		Version:   next,
		UpdatedAt: now,
		ExpiresAt: m.cfg.expiry(now),
	}
	return next, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key Key) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	rec, ok := m.data[key]
	if !ok || expired(rec.ExpiresAt, m.cfg.now()) {
		return nil, ErrNotFound
	}

	out := rec
	out.Data = make([]byte, len(rec.Data))
	copy(out.Data, rec.Data)
	return &out, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.data, key)
	return nil
}

// DeleteSession implements Store.
func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	for k := range m.data {
		if k.SessionID == sessionID {
			delete(m.data, k)
		}
	}
	return nil
}

// PurgeExpired drops expired records and returns how many were removed.
func (m *MemoryStore) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.now()
	n := 0
	for k, rec := range m.data {
		if expired(rec.ExpiresAt, now) {
			delete(m.data, k)
			n++
		}
	}
	return n
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the number of live checkpoints.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.cfg.now()
	count := 0
	for _, rec := range m.data {
		if !expired(rec.ExpiresAt, now) {
			count++
		}
	}
	return count
}

var _ Store = (*MemoryStore)(nil)
