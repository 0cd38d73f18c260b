package kotapay

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// Store holds the client's shared mutable state: the cached access token and
// the hourly request counter. The store is injected so deployments with
// multiple gateway instances can point the client at a shared backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetOrFill returns the value under key, invoking fill to produce it when
	// the key is absent or expired. Concurrent callers on a missing key share
	// a single fill invocation. fill returns the value and its TTL.
	GetOrFill(ctx context.Context, key string, fill func(ctx context.Context) (string, time.Duration, error)) (string, error)

	// Increment atomically increments the counter under key and returns the
	// new value. The first writer creates the key with the given TTL; later
	// writers leave the expiry untouched.
	Increment(key string, ttl time.Duration) (int64, error)

	// Delete removes key if present.
	Delete(key string)
}

type memoryEntry struct {
	value     string
	count     int64
	expiresAt time.Time
}

type memoryFlight struct {
	done  chan struct{}
	value string
	err   error
}

// MemoryStore is an in-process Store for single-instance deployments and
// tests.
type MemoryStore struct {
	clock   clockz.Clock
	mu      sync.Mutex
	entries map[string]*memoryEntry
	flights map[string]*memoryFlight
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clock:   clockz.RealClock,
		entries: make(map[string]*memoryEntry),
		flights: make(map[string]*memoryFlight),
	}
}

// GetOrFill implements Store. A fill error is not cached, so the next caller
// retries.
func (s *MemoryStore) GetOrFill(ctx context.Context, key string, fill func(ctx context.Context) (string, time.Duration, error)) (string, error) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok && s.clock.Now().Before(e.expiresAt) {
		s.mu.Unlock()
		return e.value, nil
	}

	if f, ok := s.flights[key]; ok {
		s.mu.Unlock()
		select {
		case <-f.done:
			return f.value, f.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f := &memoryFlight{done: make(chan struct{})}
	s.flights[key] = f
	s.mu.Unlock()

	value, ttl, err := fill(ctx)

	s.mu.Lock()
	if err == nil {
		s.entries[key] = &memoryEntry{value: value, expiresAt: s.clock.Now().Add(ttl)}
	}
	f.value = value
	f.err = err
	delete(s.flights, key)
	s.mu.Unlock()
	close(f.done)

	if err != nil {
		return "", err
	}
	return value, nil
}

// Increment implements Store.
func (s *MemoryStore) Increment(key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	e, ok := s.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		s.entries[key] = &memoryEntry{count: 1, expiresAt: now.Add(ttl)}
		return 1, nil
	}
	e.count++
	return e.count, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}
