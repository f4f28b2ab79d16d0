package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
)

// ResetTokenStore tracks single-use password reset tokens.
type ResetTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*domain.PasswordResetToken
}

func NewResetTokenStore() *ResetTokenStore {
	return &ResetTokenStore{tokens: make(map[string]*domain.PasswordResetToken)}
}

func (s *ResetTokenStore) Create(_ context.Context, rec *domain.PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *rec
	s.tokens[rec.Token] = &stored
	return nil
}

// Consume validates and deletes in one critical section, so concurrent
// redemptions of the same token cannot both succeed.
func (s *ResetTokenStore) Consume(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tokens[token]
	if !ok {
		return "", autherror.ErrResetInvalidOrExpired
	}

	delete(s.tokens, token)

	if time.Now().After(rec.ExpiresAt) {
		return "", autherror.ErrResetInvalidOrExpired
	}

	return rec.UserID, nil
}

func (s *ResetTokenStore) DeleteForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, rec := range s.tokens {
		if rec.UserID == userID {
			delete(s.tokens, token)
		}
	}
	return nil
}

func (s *ResetTokenStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, rec := range s.tokens {
		if now.After(rec.ExpiresAt) {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed, nil
}

func (s *ResetTokenStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens), nil
}
