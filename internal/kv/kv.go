// ABOUTME: Synchronous keyed local storage of string values
// ABOUTME: MemoryStore for tests and FileStore persisting a TOML document, optionally sealed

package kv

import (
	"errors"
	"sync"
)

// ErrSealed is returned when a sealed value cannot be opened with the configured key.
var ErrSealed = errors.New("stored value cannot be decrypted")

// Store is a synchronous string key-value store. Concurrent read-modify-write
// sequences are not coordinated: the last writer wins.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Key joins a prefix and an owner id into a storage key.
func Key(prefix, ownerID string) string {
	return prefix + ":" + ownerID
}

// MemoryStore keeps entries in a map.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

// Get implements Store.
func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

// Set implements Store.
func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

var _ Store = (*MemoryStore)(nil)
