package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
)

func newResetToken(userID, token string, ttl time.Duration) *domain.PasswordResetToken {
	return &domain.PasswordResetToken{
		Token:     token,
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}
}

func TestResetTokenStore_ConsumeIsSingleUse(t *testing.T) {
	s := NewResetTokenStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newResetToken("u1", "reset-1", time.Hour)))

	userID, err := s.Consume(ctx, "reset-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = s.Consume(ctx, "reset-1")
	assert.ErrorIs(t, err, autherror.ErrResetInvalidOrExpired)
}

func TestResetTokenStore_ConsumeExpired(t *testing.T) {
	s := NewResetTokenStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newResetToken("u1", "reset-1", -time.Minute)))

	// An expired token fails and is gone afterwards.
	_, err := s.Consume(ctx, "reset-1")
	assert.ErrorIs(t, err, autherror.ErrResetInvalidOrExpired)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestResetTokenStore_ConcurrentConsume(t *testing.T) {
	s := NewResetTokenStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newResetToken("u1", "reset-1", time.Hour)))

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Consume(ctx, "reset-1")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
}

func TestResetTokenStore_DeleteForUser(t *testing.T) {
	s := NewResetTokenStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newResetToken("u1", "reset-1", time.Hour)))
	require.NoError(t, s.Create(ctx, newResetToken("u1", "reset-2", time.Hour)))
	require.NoError(t, s.Create(ctx, newResetToken("u2", "reset-3", time.Hour)))

	require.NoError(t, s.DeleteForUser(ctx, "u1"))

	_, err := s.Consume(ctx, "reset-1")
	assert.ErrorIs(t, err, autherror.ErrResetInvalidOrExpired)

	userID, err := s.Consume(ctx, "reset-3")
	require.NoError(t, err)
	assert.Equal(t, "u2", userID)
}

func TestResetTokenStore_Sweep(t *testing.T) {
	s := NewResetTokenStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newResetToken("u1", "reset-live", time.Hour)))
	require.NoError(t, s.Create(ctx, newResetToken("u1", "reset-dead", -time.Minute)))

	removed, err := s.Sweep(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
