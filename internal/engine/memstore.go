package engine

import (
	"sort"
	"sync"

	"github.com/celerix-dev/celerix-users/pkg/sdk"
)

// MemStore is a thread-safe in-memory Storage, optionally backed by a
// Persistence that receives a full snapshot after every write.
type MemStore struct {
	mu        sync.RWMutex
	origin    string
	data      map[string]string
	quota     int
	persister *Persistence
}

// NewMemStore initializes a store for origin.
// It accepts existing data (from Persistence.Load) and a persister, either of
// which may be nil. A quota <= 0 disables the size limit.
func NewMemStore(origin string, initialData map[string]string, p *Persistence, quota int) *MemStore {
	if initialData == nil {
		initialData = make(map[string]string)
	}
	return &MemStore{
		origin:    origin,
		data:      initialData,
		quota:     quota,
		persister: p,
	}
}

var _ sdk.Storage = (*MemStore)(nil)

// --- Interface Implementation ---

func (m *MemStore) GetItem(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.data[key]
	if !ok {
		return "", sdk.ErrKeyNotFound
	}
	return val, nil
}

func (m *MemStore) SetItem(key, value string) error {
	if !sdk.ValidKey(key) {
		return sdk.ErrInvalidKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quota > 0 {
		used := m.sizeLocked() - m.entrySize(key) + len(key) + len(value)
		if used > m.quota {
			return sdk.ErrQuotaExceeded
		}
	}

	prev, existed := m.data[key]
	m.data[key] = value

	if err := m.persistLocked(); err != nil {
		if existed {
			m.data[key] = prev
		} else {
			delete(m.data, key)
		}
		return err
	}
	return nil
}

func (m *MemStore) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, existed := m.data[key]
	if !existed {
		return nil
	}
	delete(m.data, key)

	if err := m.persistLocked(); err != nil {
		m.data[key] = prev
		return err
	}
	return nil
}

func (m *MemStore) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]string, 0, len(m.data))
	for k := range m.data {
		list = append(list, k)
	}
	sort.Strings(list)
	return list, nil
}

// Size returns the number of bytes currently held, counting keys and values.
func (m *MemStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sizeLocked()
}

// sizeLocked MUST be called while holding m.mu.
func (m *MemStore) sizeLocked() int {
	total := 0
	for k, v := range m.data {
		total += len(k) + len(v)
	}
	return total
}

func (m *MemStore) entrySize(key string) int {
	v, ok := m.data[key]
	if !ok {
		return 0
	}
	return len(key) + len(v)
}

// persistLocked writes a snapshot of the current state.
// It MUST be called while holding m.mu.Lock.
func (m *MemStore) persistLocked() error {
	if m.persister == nil {
		return nil
	}
	snapshot := make(map[string]string, len(m.data))
	for k, v := range m.data {
		snapshot[k] = v
	}
	return m.persister.Save(m.origin, snapshot)
}
