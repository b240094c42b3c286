package memory

import (
	"context"
	"sync"
	"time"

	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/store"
)

// RefreshTokenStore keeps refresh tokens keyed by their signed value.
type RefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]models.RefreshToken
}

var _ store.RefreshTokenStore = (*RefreshTokenStore)(nil)

func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{tokens: map[string]models.RefreshToken{}}
}

func (s *RefreshTokenStore) Create(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.tokens[token.Token]; taken {
		return store.ErrDuplicate
	}
	stamp(&token.ID, &token.CreatedAt, &token.UpdatedAt)
	s.tokens[token.Token] = *token
	return nil
}

func (s *RefreshTokenStore) FindUsable(_ context.Context, token string, now time.Time) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok || !t.Usable(now) {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *RefreshTokenStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return store.ErrNotFound
	}
	if t.IsRevoked {
		return store.ErrStale
	}
	t.IsRevoked = true
	t.UpdatedAt = time.Now()
	s.tokens[token] = t
	return nil
}

func (s *RefreshTokenStore) RevokeAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, t := range s.tokens {
		if t.UserID == userID && !t.IsRevoked {
			t.IsRevoked = true
			s.tokens[k] = t
		}
	}
	return nil
}

func (s *RefreshTokenStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.tokens {
		if t.IsRevoked || !t.ExpiresAt.After(now) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}
