package storage

import (
	"errors"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ErrKeyNotFound is returned when a key doesn't exist in a section
var ErrKeyNotFound = errors.New("key not found")

// ErrEmptyName is returned when a section or key name is empty
var ErrEmptyName = errors.New("section and key must not be empty")

// Store is a sectioned key-value store
// All implementations must be thread-safe for concurrent access
type Store interface {
	// Get retrieves a value
	// Returns ErrKeyNotFound if the section or key doesn't exist
	Get(section, key string) ([]byte, error)

	// Put stores a value, creating the section if needed
	// Overwrites any existing value for the key
	Put(section, key string, value []byte) error

	// Delete removes a key; an emptied section disappears
	// No error if the key doesn't exist
	Delete(section, key string) error

	// Sections returns the section names in sorted order
	Sections() []string

	// Keys returns the keys of a section in sorted order
	Keys(section string) []string

	// Stats returns storage statistics
	Stats() StoreStats
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Sections int `json:"sections"` // Number of sections
	Keys     int `json:"keys"`     // Number of keys across sections
	Bytes    int `json:"bytes"`    // Total size of all values in bytes
}

// MemoryStore implements Store with nested maps
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // section -> key -> value
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string][]byte),
	}
}

// Get returns a copy of the value to prevent external modification
func (m *MemoryStore) Get(section, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[section][key]
	if !exists {
		return nil, ErrKeyNotFound
	}
	return slices.Clone(value), nil
}

// Put stores a copy of value to prevent external modification
func (m *MemoryStore) Put(section, key string, value []byte) error {
	if section == "" || key == "" {
		return ErrEmptyName
	}
	stored := slices.Clone(value)
	if stored == nil {
		stored = []byte{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sec, ok := m.data[section]
	if !ok {
		sec = make(map[string][]byte)
		m.data[section] = sec
	}
	sec[key] = stored
	return nil
}

// Delete removes a key (idempotent)
func (m *MemoryStore) Delete(section, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sec, ok := m.data[section]
	if !ok {
		return nil
	}
	delete(sec, key)
	if len(sec) == 0 {
		delete(m.data, section)
	}
	return nil
}

// Sections returns the section names in sorted order
func (m *MemoryStore) Sections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := maps.Keys(m.data)
	slices.Sort(names)
	return names
}

// Keys returns the keys of a section in sorted order
func (m *MemoryStore) Keys(section string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := maps.Keys(m.data[section])
	slices.Sort(keys)
	return keys
}

// Stats returns storage statistics
func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := StoreStats{Sections: len(m.data)}
	for _, sec := range m.data {
		stats.Keys += len(sec)
		for _, value := range sec {
			stats.Bytes += len(value)
		}
	}
	return stats
}

// export returns a deep copy of the contents
func (m *MemoryStore) export() map[string]map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]map[string][]byte, len(m.data))
	for name, sec := range m.data {
		cp := make(map[string][]byte, len(sec))
		for k, v := range sec {
			cp[k] = slices.Clone(v)
		}
		out[name] = cp
	}
	return out
}

// replace swaps the whole contents for data, which must not be retained
// by the caller
func (m *MemoryStore) replace(data map[string]map[string][]byte) {
	if data == nil {
		data = make(map[string]map[string][]byte)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
}
