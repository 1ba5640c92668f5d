package clientstate

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is a process-local ClientStateStore. A zero ttl disables expiry.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	ttl     time.Duration
	entries map[string]memoryEntry
}

var _ domain.ClientStateStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return newMemoryStore(clockwork.NewRealClock(), 0)
}

func newMemoryStore(clock clockwork.Clock, ttl time.Duration) *MemoryStore {
	return &MemoryStore{clock: clock, ttl: ttl, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expiredLocked(e) {
		delete(s.entries, key)
		return "", domain.ErrStateNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memoryEntry{value: value}
	if s.ttl > 0 {
		e.expiresAt = s.clock.Now().Add(s.ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

func (s *MemoryStore) expiredLocked(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt)
}

// empty drops expired entries and reports whether anything is left.
func (s *MemoryStore) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		if s.expiredLocked(e) {
			delete(s.entries, k)
		}
	}
	return len(s.entries) == 0
}

// MemoryProvider keeps one MemoryStore per workspace for the life of the process.
type MemoryProvider struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	ttl    time.Duration
	stores map[string]*MemoryStore
}

func NewMemoryProvider(clock clockwork.Clock, ttl time.Duration) *MemoryProvider {
	return &MemoryProvider{clock: clock, ttl: ttl, stores: make(map[string]*MemoryStore)}
}

func (p *MemoryProvider) For(workspaceID string) domain.ClientStateStore {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.stores[workspaceID]
	if !ok {
		s = newMemoryStore(p.clock, p.ttl)
		p.stores[workspaceID] = s
	}
	return s
}

// Sweep forgets workspaces whose entries have all expired or been deleted.
func (p *MemoryProvider) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for id, s := range p.stores {
		if s.empty() {
			delete(p.stores, id)
			removed++
		}
	}
	return removed
}
