package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/store"
)

// TokenStore implements store.TokenStore in memory.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]domain.AuthToken
}

// NewTokenStore creates an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]domain.AuthToken)}
}

var _ store.TokenStore = (*TokenStore)(nil)

// Create implements store.TokenStore.Create.
func (s *TokenStore) Create(_ context.Context, token *domain.AuthToken) error {
	if err := token.Validate(); err != nil {
		return store.ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token.Token]; ok {
		return store.ErrTokenExists
	}
	s.tokens[token.Token] = cloneToken(*token)
	return nil
}

// GetByValue implements store.TokenStore.GetByValue.
func (s *TokenStore) GetByValue(_ context.Context, value string) (*domain.AuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[value]
	if !ok {
		return nil, store.ErrTokenNotFound
	}
	t = cloneToken(t)
	return &t, nil
}

// Revoke implements store.TokenStore.Revoke.
func (s *TokenStore) Revoke(_ context.Context, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[value]
	if !ok || t.Status == domain.TokenStatusRevoked {
		return false, nil
	}
	t.Revoke()
	s.tokens[value] = t
	return true, nil
}

// MarkExpired implements store.TokenStore.MarkExpired.
func (s *TokenStore) MarkExpired(_ context.Context, value string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[value]
	if !ok || !t.IsLapsedAt(now) {
		return false, nil
	}
	expire(&t)
	s.tokens[value] = t
	return true, nil
}

// SweepExpired implements store.TokenStore.SweepExpired.
func (s *TokenStore) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.tokens {
		if t.IsLapsedAt(now) {
			expire(&t)
			s.tokens[k] = t
			n++
		}
	}
	return n, nil
}

func expire(t *domain.AuthToken) {
	t.Status = domain.TokenStatusExpired
	t.IsActive = false
}

func cloneToken(t domain.AuthToken) domain.AuthToken {
	t.Permissions = maps.Clone(t.Permissions)
	return t
}
