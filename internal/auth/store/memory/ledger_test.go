package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
)

func newRefreshToken(userID, token string, ttl time.Duration) *domain.RefreshToken {
	return &domain.RefreshToken{
		ID:        token + "-id",
		UserID:    userID,
		Token:     token,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
}

func TestTokenLedger_RecordAndValidate(t *testing.T) {
	l := NewTokenLedger()
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, newRefreshToken("u1", "tok-1", time.Hour)))

	userID, err := l.Validate(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = l.Validate(ctx, "unknown")
	assert.ErrorIs(t, err, autherror.ErrInvalidToken)
}

func TestTokenLedger_ValidateEvictsExpired(t *testing.T) {
	l := NewTokenLedger()
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, newRefreshToken("u1", "tok-1", -time.Minute)))

	_, err := l.Validate(ctx, "tok-1")
	assert.ErrorIs(t, err, autherror.ErrInvalidToken)

	active, _, err := l.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, active)
}

func TestTokenLedger_RotateRetiresOld(t *testing.T) {
	l := NewTokenLedger()
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, newRefreshToken("u1", "tok-old", time.Hour)))

	userID, err := l.Rotate(ctx, "tok-old", newRefreshToken("u1", "tok-new", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	// The old token is gone and blacklisted; the new one validates.
	_, err = l.Validate(ctx, "tok-old")
	assert.ErrorIs(t, err, autherror.ErrInvalidToken)

	revoked, err := l.IsBlacklisted(ctx, "tok-old")
	require.NoError(t, err)
	assert.True(t, revoked)

	userID, err = l.Validate(ctx, "tok-new")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	// Replaying the rotation fails.
	_, err = l.Rotate(ctx, "tok-old", newRefreshToken("u1", "tok-newer", time.Hour))
	assert.ErrorIs(t, err, autherror.ErrInvalidToken)
}

func TestTokenLedger_RotateConcurrent(t *testing.T) {
	l := NewTokenLedger()
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, newRefreshToken("u1", "tok-old", time.Hour)))

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			next := newRefreshToken("u1", fmt.Sprintf("tok-next-%d", i), time.Hour)
			_, errs[i] = l.Rotate(ctx, "tok-old", next)
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

	active, _, err := l.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestTokenLedger_BlacklistIsIdempotent(t *testing.T) {
	l := NewTokenLedger()
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	require.NoError(t, l.Blacklist(ctx, "tok-1", expiresAt))
	require.NoError(t, l.Blacklist(ctx, "tok-1", expiresAt))

	revoked, err := l.IsBlacklisted(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	_, blacklisted, err := l.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, blacklisted)
}

func TestTokenLedger_RevokeAll(t *testing.T) {
	l := NewTokenLedger()
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, newRefreshToken("u1", "tok-1", time.Hour)))
	require.NoError(t, l.Record(ctx, newRefreshToken("u1", "tok-2", time.Hour)))
	require.NoError(t, l.Record(ctx, newRefreshToken("u2", "tok-3", time.Hour)))

	require.NoError(t, l.RevokeAll(ctx, "u1"))

	_, err := l.Validate(ctx, "tok-1")
	assert.ErrorIs(t, err, autherror.ErrInvalidToken)
	_, err = l.Validate(ctx, "tok-2")
	assert.ErrorIs(t, err, autherror.ErrInvalidToken)

	// Another user's token is untouched.
	userID, err := l.Validate(ctx, "tok-3")
	require.NoError(t, err)
	assert.Equal(t, "u2", userID)

	count, err := l.CountActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestTokenLedger_DeleteOldest(t *testing.T) {
	l := NewTokenLedger()
	ctx := context.Background()

	oldest := newRefreshToken("u1", "tok-oldest", time.Hour)
	oldest.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, l.Record(ctx, oldest))
	require.NoError(t, l.Record(ctx, newRefreshToken("u1", "tok-recent", time.Hour)))

	require.NoError(t, l.DeleteOldest(ctx, "u1"))

	_, err := l.Validate(ctx, "tok-oldest")
	assert.ErrorIs(t, err, autherror.ErrInvalidToken)

	_, err = l.Validate(ctx, "tok-recent")
	assert.NoError(t, err)
}

func TestTokenLedger_Sweep(t *testing.T) {
	l := NewTokenLedger()
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, newRefreshToken("u1", "tok-live", time.Hour)))
	require.NoError(t, l.Record(ctx, newRefreshToken("u1", "tok-dead", -time.Minute)))
	require.NoError(t, l.Blacklist(ctx, "tok-revoked", time.Now().Add(-time.Minute)))

	removed, err := l.Sweep(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	active, blacklisted, err := l.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
	assert.Equal(t, 0, blacklisted)
}
