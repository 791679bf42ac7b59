package session

import (
	"context"
	"sync"
	"time"

	"github.com/smallnest/ragserve/rag"
)

// Store persists conversation histories keyed by session id.
type Store interface {
	// Get returns the history of a session. Unseen ids return an empty
	// history, not an error.
	Get(ctx context.Context, id string) (rag.History, error)
	// Append adds turns to the end of a session's history, creating the
	// session if needed.
	Append(ctx context.Context, id string, turns ...rag.Message) error
	// Delete removes a session and its history. Deleting an unseen id is
	// not an error.
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	history  rag.History
	lastUsed time.Time
}

// MemoryStore keeps histories in process memory. With a non-zero TTL a
// background janitor evicts sessions idle for longer than the TTL.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
	ttl      time.Duration
	done     chan struct{}
	closeOne sync.Once
}

// NewMemoryStore creates a MemoryStore. ttl of zero disables eviction.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	if ttl > 0 {
		go s.janitor()
	}
	return s
}

func (s *MemoryStore) janitor() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired(time.Now())
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.sessions {
		if now.Sub(entry.lastUsed) > s.ttl {
			delete(s.sessions, id)
		}
	}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (rag.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[id]
	if !ok {
		return rag.History{}, nil
	}
	return entry.history.Clone(), nil
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, id string, turns ...rag.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		entry = &memoryEntry{}
		s.sessions[id] = entry
	}
	entry.history = append(entry.history, turns...)
	entry.lastUsed = time.Now()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the eviction janitor. Safe to call more than once.
func (s *MemoryStore) Close() {
	s.closeOne.Do(func() { close(s.done) })
}

// KeyedMutex serializes work per key, so concurrent requests for the same
// session do not interleave their history writes while requests for
// different sessions stay parallel.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for key and returns its unlock function. The
// per-key entry is reclaimed once the last holder unlocks.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()
		k.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
