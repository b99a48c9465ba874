package flowstore

import (
	"sync"
	"time"
)

// entry is a single stored flow with its expiration
type entry struct {
	value      interface{}
	expiration time.Time
}

// Store is a thread-safe in-memory store for per-session flow state. Each
// operator's view/edit and upload flows live here between requests, keyed by
// session ID, and expire when the operator goes idle. Values are held as-is
// (the flows are live stateful objects, not serializable snapshots).
type Store struct {
	data  map[string]entry
	mutex sync.RWMutex
}

// NewStore creates a flow store and starts its expiry sweep.
func NewStore() *Store {
	store := &Store{
		data: make(map[string]entry),
	}

	go store.cleanupExpired()

	return store
}

// Get retrieves a flow by key. Expired entries read as absent.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	item, exists := s.data[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(item.expiration) {
		return nil, false
	}

	return item.value, true
}

// Set stores a flow under the key with the given TTL.
func (s *Store) Set(key string, value interface{}, ttl time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.data[key] = entry{
		value:      value,
		expiration: time.Now().Add(ttl),
	}
}

// Delete removes a flow from the store.
func (s *Store) Delete(key string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.data, key)
}

// cleanupExpired removes expired entries periodically
func (s *Store) cleanupExpired() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.mutex.Lock()
		now := time.Now()
		for key, item := range s.data {
			if now.After(item.expiration) {
				delete(s.data, key)
			}
		}
		s.mutex.Unlock()
	}
}

// Size returns the current number of stored flows (for debugging/monitoring)
func (s *Store) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.data)
}
