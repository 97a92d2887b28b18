package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local SessionStore.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.Token]; exists {
		return ErrTokenExists
	}
	m.sessions[s.Token] = s.Clone()
	return nil
}

func (m *MemoryStore) Refresh(_ context.Context, token string, now time.Time, ttl time.Duration) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Expired(now, ttl) {
		delete(m.sessions, token)
		return s.Clone(), ErrSessionExpired
	}
	s.LastActivity = now
	return s.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, false, nil
	}
	delete(m.sessions, token)
	return s.Clone(), true, nil
}

func (m *MemoryStore) Sweep(_ context.Context, now time.Time, ttl time.Duration) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []*Session
	for token, s := range m.sessions {
		if s.Expired(now, ttl) {
			delete(m.sessions, token)
			removed = append(removed, s.Clone())
		}
	}
	return removed, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions), nil
}
