// Package checkpoint provides versioned, expiring storage for suspended
// workflow instances.
//
// Every record is keyed by (session, workflow) and carries a monotonic
// version. Writers pass the version they read; a write against any other
// version fails with ErrVersionConflict, which is how two concurrent turns
// for the same session are serialized.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Key identifies a checkpoint.
type Key struct {
	SessionID string
	Workflow  string
}

// String returns the key in "session/workflow" form for logs.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.SessionID, k.Workflow)
}

// Validate reports whether both parts of the key are set.
func (k Key) Validate() error {
	if k.SessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidKey)
	}
	if k.Workflow == "" {
		return fmt.Errorf("%w: empty workflow", ErrInvalidKey)
	}
	return nil
}

// Record is a stored checkpoint.
type Record struct {
	Key       Key
	Data      []byte
	Version   int64
	UpdatedAt time.Time
	// ExpiresAt is zero when the record never expires.
	ExpiresAt time.Time
}

// Store persists checkpoints with optimistic concurrency.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes data for key if the stored version equals expectedVersion
	// and returns the new version. An expectedVersion of 0 means the key
	// must not exist (expired records count as absent).
	Put(ctx context.Context, key Key, data []byte, expectedVersion int64) (int64, error)

	// Get returns the current record. Returns ErrNotFound if the key is
	// absent or expired.
	Get(ctx context.Context, key Key) (*Record, error)

	// Delete removes a checkpoint. Returns nil if it doesn't exist.
	Delete(ctx context.Context, key Key) error

	// DeleteSession removes every checkpoint of a session.
	DeleteSession(ctx context.Context, sessionID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist or has expired.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrVersionConflict indicates the stored version differs from the
	// version the writer read.
	ErrVersionConflict = errors.New("checkpoint version conflict")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrInvalidKey indicates an incomplete key.
	ErrInvalidKey = errors.New("invalid checkpoint key")
)

// ConflictError describes a failed compare-and-set.
type ConflictError struct {
	Key      Key
	Expected int64
	// Actual is the stored version, 0 if the record is absent,
	// -1 if the backend could not report it.
	Actual int64
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("checkpoint %s: expected version %d, found %d", e.Key, e.Expected, e.Actual)
}

// Unwrap returns ErrVersionConflict for errors.Is support.
func (e *ConflictError) Unwrap() error {
	return ErrVersionConflict
}

// Option configures a store.
type Option func(*storeConfig)

type storeConfig struct {
	ttl time.Duration
	now func() time.Time
}

func defaultStoreConfig() storeConfig {
	return storeConfig{
		now: func() time.Time { return time.Now().UTC() },
	}
}

func applyOptions(opts []Option) storeConfig {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithTTL sets how long a checkpoint lives after its last write.
// Zero (the default) disables expiry.
func WithTTL(d time.Duration) Option {
	return func(c *storeConfig) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock overrides the time source. Used by tests to drive expiry.
func WithClock(now func() time.Time) Option {
	return func(c *storeConfig) {
		if now != nil {
			c.now = now
		}
	}
}

func (c storeConfig) expiry(now time.Time) time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(c.ttl)
}

func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}
