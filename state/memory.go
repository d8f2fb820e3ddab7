package state

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrQuotaExceeded is returned by a MemoryMedium whose quota is full.
var ErrQuotaExceeded = errors.New("quota exceeded")

// MemoryMedium keeps values in process memory. A positive quota limits the
// total number of stored bytes, which lets callers exercise write failures.
type MemoryMedium struct {
	mu    sync.RWMutex
	data  map[string][]byte
	quota int
}

// NewMemoryMedium creates an empty in-memory medium. quota <= 0 means
// unlimited.
func NewMemoryMedium(quota int) *MemoryMedium {
	return &MemoryMedium{data: make(map[string][]byte), quota: quota}
}

// Load implements Medium.
func (m *MemoryMedium) Load(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Store implements Medium.
func (m *MemoryMedium) Store(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quota > 0 {
		used := len(value)
		for k, v := range m.data {
			if k != key {
				used += len(v)
			}
		}
		if used > m.quota {
			return errors.Wrapf(ErrQuotaExceeded, "storing %d bytes under %s", len(value), key)
		}
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}
