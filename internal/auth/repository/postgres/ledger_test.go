package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
	repo "github.com/BochengYin/AIMiniGames/internal/auth/repository/postgres"
	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
)

func TestTokenLedgerValidate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := repo.NewTokenLedger(mock)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("SELECT rt.user_id").
			WithArgs("tok-1").
			WillReturnRows(pgxmock.NewRows([]string{"user_id", "expires_at"}).
				AddRow("user-123", time.Now().Add(time.Hour)))

		userID, err := l.Validate(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "user-123", userID)
	})

	t.Run("missing or blacklisted", func(t *testing.T) {
		mock.ExpectQuery("SELECT rt.user_id").
			WithArgs("tok-1").
			WillReturnError(pgx.ErrNoRows)

		_, err := l.Validate(ctx, "tok-1")
		assert.ErrorIs(t, err, autherror.ErrInvalidToken)
	})

	t.Run("expired entry is evicted", func(t *testing.T) {
		mock.ExpectQuery("SELECT rt.user_id").
			WithArgs("tok-1").
			WillReturnRows(pgxmock.NewRows([]string{"user_id", "expires_at"}).
				AddRow("user-123", time.Now().Add(-time.Minute)))
		mock.ExpectExec("DELETE FROM refresh_tokens").
			WithArgs("tok-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		_, err := l.Validate(ctx, "tok-1")
		assert.ErrorIs(t, err, autherror.ErrInvalidToken)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenLedgerRotate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := repo.NewTokenLedger(mock)
	ctx := context.Background()

	next := &domain.RefreshToken{
		ID:        "next-id",
		UserID:    "user-123",
		Token:     "tok-new",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}

	t.Run("success", func(t *testing.T) {
		expiresAt := time.Now().Add(time.Hour)

		mock.ExpectBegin()
		mock.ExpectQuery("DELETE FROM refresh_tokens").
			WithArgs("tok-old").
			WillReturnRows(pgxmock.NewRows([]string{"user_id", "expires_at"}).
				AddRow("user-123", expiresAt))
		mock.ExpectExec("INSERT INTO token_blacklist").
			WithArgs("tok-old", expiresAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO refresh_tokens").
			WithArgs(next.ID, next.UserID, next.Token, next.ExpiresAt, next.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		userID, err := l.Rotate(ctx, "tok-old", next)
		require.NoError(t, err)
		assert.Equal(t, "user-123", userID)
	})

	t.Run("lost race", func(t *testing.T) {
		// A concurrent rotation already deleted the row.
		mock.ExpectBegin()
		mock.ExpectQuery("DELETE FROM refresh_tokens").
			WithArgs("tok-old").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := l.Rotate(ctx, "tok-old", next)
		assert.ErrorIs(t, err, autherror.ErrInvalidToken)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenLedgerBlacklist(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := repo.NewTokenLedger(mock)
	expiresAt := time.Now().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO token_blacklist").
		WithArgs("tok-1", expiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs("tok-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	assert.NoError(t, l.Blacklist(context.Background(), "tok-1", expiresAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenLedgerRevokeAll(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := repo.NewTokenLedger(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO token_blacklist").
		WithArgs("user-123").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs("user-123").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	assert.NoError(t, l.RevokeAll(context.Background(), "user-123"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenLedgerSweep(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := repo.NewTokenLedger(mock)
	now := time.Now()

	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("DELETE FROM token_blacklist").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	removed, err := l.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 5, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
