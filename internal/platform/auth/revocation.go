package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore records, per session subject, the instant before which
// issued sessions are no longer accepted.
type RevocationStore interface {
	RevokeBefore(ctx context.Context, subject string, t time.Time) error
	RevokedBefore(ctx context.Context, subject string) (time.Time, error)
}

// MemoryRevocationStore is the single-process RevocationStore used when no
// Redis is configured. Times are kept at second precision to match the iat
// claim.
type MemoryRevocationStore struct {
	mu     sync.RWMutex
	before map[string]time.Time
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{before: make(map[string]time.Time)}
}

func (s *MemoryRevocationStore) RevokeBefore(_ context.Context, subject string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.before[subject] = t.Truncate(time.Second)
	return nil
}

func (s *MemoryRevocationStore) RevokedBefore(_ context.Context, subject string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.before[subject], nil
}
