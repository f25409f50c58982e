package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-tickets/internal/clock"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	clock    clock.Clock
	ttl      time.Duration
	sessions map[string]time.Time
}

// NewMemoryStore instantiates the store. A zero ttl keeps sessions forever.
func NewMemoryStore(clk clock.Clock, ttl time.Duration) *MemoryStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryStore{clock: clk, ttl: ttl, sessions: make(map[string]time.Time)}
}

func (s *MemoryStore) Issue(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[hashID(id)] = s.expiry()
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) Touch(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := hashID(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.sessions[key]
	if !ok {
		return false, nil
	}
	if s.ttl > 0 && !s.clock.Now().Before(expires) {
		delete(s.sessions, key)
		return false, nil
	}
	s.sessions[key] = s.expiry()
	return true, nil
}

func (s *MemoryStore) expiry() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(s.ttl)
}
