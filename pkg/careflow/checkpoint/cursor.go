package checkpoint

import (
	"context"
	"errors"
	"fmt"
)

// Cursor binds a store, a key, and the version last read or written.
// It carries the optimistic-concurrency token across the writes of one
// turn: each Save passes the cursor's version and advances it on success.
//
// A Cursor is not safe for concurrent use; each turn owns its own.
type Cursor struct {
	store   Store
	key     Key
	version int64
	size    int
}

// NewCursor creates a cursor at the given version. Use 0 for a key that
// has not been written yet.
func NewCursor(store Store, key Key, version int64) *Cursor {
	return &Cursor{store: store, key: key, version: version}
}

// Open reads the current record and returns a cursor positioned at its
// version together with the stored data. A missing record yields a cursor
// at version 0 and nil data.
func Open(ctx context.Context, store Store, key Key) (*Cursor, []byte, error) {
	rec, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return NewCursor(store, key, 0), nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return NewCursor(store, key, rec.Version), rec.Data, nil
}

// Save writes data at the cursor's version and advances it.
func (c *Cursor) Save(ctx context.Context, data []byte) error {
	v, err := c.store.Put(ctx, c.key, data, c.version)
	if err != nil {
		return fmt.Errorf("save %s: %w", c.key, err)
	}
	c.version = v
	c.size = len(data)
	return nil
}

// Delete removes the record. The cursor is reset to version 0.
func (c *Cursor) Delete(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("delete %s: %w", c.key, err)
	}
	c.version = 0
	return nil
}

// Key returns the bound key.
func (c *Cursor) Key() Key { return c.key }

// Version returns the version the next Save will expect.
func (c *Cursor) Version() int64 { return c.version }

// LastSize returns the size of the last saved payload in bytes.
func (c *Cursor) LastSize() int { return c.size }
