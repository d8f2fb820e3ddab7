// Package state keeps small values durable across sessions.
//
// A Cell owns one key of a Medium. It is read once when opened and written
// through on every change. Write failures are logged and otherwise ignored:
// the in-memory value stays authoritative for the current session.
package state

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Well-known keys.
const (
	KeyCSV          = "csvplay.csv"
	KeyQuery        = "csvplay.query"
	KeySort         = "csvplay.sort"
	KeyHaving       = "csvplay.having"
	KeySavedQueries = "csvplay.saved-queries"
)

// Medium is a durable key/value store. Keys are independent: there is no
// cross-key transaction.
type Medium interface {
	// Load returns the stored bytes and whether the key exists.
	Load(key string) ([]byte, bool, error)
	// Store replaces the bytes under key.
	Store(key string, value []byte) error
}

// PersistError reports a value that could not be written.
type PersistError struct {
	Key string
	Err error
}

func (e *PersistError) Error() string {
	return "persist " + e.Key + ": " + e.Err.Error()
}

func (e *PersistError) Unwrap() error { return e.Err }

// Cell is a typed, durable value.
type Cell[T any] struct {
	mu      sync.Mutex
	key     string
	medium  Medium
	value   T
	log     *zap.Logger
	lastErr error
}

// Open reads key from medium, falling back to def when the key is missing or
// its contents cannot be decoded.
func Open[T any](medium Medium, key string, def T, log *zap.Logger) *Cell[T] {
	if log == nil {
		log = zap.NewNop()
	}

	c := &Cell[T]{key: key, medium: medium, value: def, log: log}

	data, ok, err := medium.Load(key)
	switch {
	case err != nil:
		log.Warn("state load failed, using default", zap.String("key", key), zap.Error(err))
	case !ok || len(data) == 0:
	default:
		var saved T
		if err := json.Unmarshal(data, &saved); err != nil {
			log.Warn("state decode failed, using default", zap.String("key", key), zap.Error(err))
		} else {
			c.value = saved
		}
	}

	return c
}

// Key returns the cell's key.
func (c *Cell[T]) Key() string { return c.key }

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the value and persists it.
func (c *Cell[T]) Set(value T) {
	c.Update(func(T) T { return value })
}

// Update applies fn to the current value, stores the result and persists it.
func (c *Cell[T]) Update(fn func(old T) T) T {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = fn(c.value)
	c.lastErr = c.persist(c.value)
	if c.lastErr != nil {
		c.log.Warn("state persist failed", zap.String("key", c.key), zap.Error(c.lastErr))
	}
	return c.value
}

// Err returns the error of the most recent write, if any.
func (c *Cell[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Cell[T]) persist(value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &PersistError{Key: c.key, Err: errors.Wrap(err, "encode")}
	}
	if err := c.medium.Store(c.key, data); err != nil {
		return &PersistError{Key: c.key, Err: errors.Wrap(err, "store")}
	}
	return nil
}
