package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
	repo "github.com/BochengYin/AIMiniGames/internal/auth/repository/postgres"
	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
)

var userColumns = []string{
	"id", "email", "handle", "full_name", "password_hash", "role", "is_active",
	"created_at", "updated_at", "last_login", "failed_attempts", "locked_until",
}

func userRow(id, email, handle string) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(userColumns).
		AddRow(id, email, handle, "", "hash", "user", true, now, now, nil, 0, nil)
}

func TestUserRepositoryGetByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewUserRepository(mock)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email").
			WithArgs("a@x.com").
			WillReturnRows(userRow("user-123", "a@x.com", "alice"))

		user, err := r.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "user-123", user.ID)
		assert.Equal(t, "alice", user.Handle)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email").
			WithArgs("a@x.com").
			WillReturnError(pgx.ErrNoRows)

		user, err := r.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email").
			WithArgs("a@x.com").
			WillReturnError(fmt.Errorf("db error"))

		_, err := r.GetByEmail(ctx, "a@x.com")
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewUserRepository(mock)
	ctx := context.Background()

	now := time.Now()
	user := &domain.User{
		ID:           "user-123",
		Email:        "a@x.com",
		Handle:       "Alice",
		PasswordHash: "hash",
		Role:         "user",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	t.Run("success lowercases handle", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO users").
			WithArgs(user.ID, user.Email, "alice", user.FullName, user.PasswordHash,
				user.Role, user.Active, user.CreatedAt, user.UpdatedAt, user.FailedAttempts).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, r.Create(ctx, user))
	})

	t.Run("duplicate email", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO users").
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

		assert.ErrorIs(t, r.Create(ctx, user), autherror.ErrEmailAlreadyInUse)
	})

	t.Run("duplicate handle", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO users").
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_handle_key"})

		assert.ErrorIs(t, r.Create(ctx, user), autherror.ErrHandleAlreadyTaken)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryMutate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewUserRepository(mock)
	ctx := context.Background()

	t.Run("locks row and writes the mutation", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, email").
			WithArgs("user-123").
			WillReturnRows(userRow("user-123", "a@x.com", "alice"))
		mock.ExpectExec("UPDATE users").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		user, err := r.Mutate(ctx, "user-123", func(u *domain.User) {
			u.FailedAttempts = 3
		})
		require.NoError(t, err)
		assert.Equal(t, 3, user.FailedAttempts)
	})

	t.Run("missing user", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, email").
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := r.Mutate(ctx, "missing", func(u *domain.User) {})
		assert.ErrorIs(t, err, autherror.ErrUserNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewUserRepository(mock)
	ctx := context.Background()

	t.Run("deleted", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM users").
			WithArgs("user-123").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		deleted, err := r.Delete(ctx, "user-123")
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("already gone", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM users").
			WithArgs("user-123").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		deleted, err := r.Delete(ctx, "user-123")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewUserRepository(mock)
	now := time.Now()

	mock.ExpectQuery("SELECT count").
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows([]string{"total", "active", "locked"}).AddRow(10, 8, 1))

	total, active, locked, err := r.Counts(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Equal(t, 8, active)
	assert.Equal(t, 1, locked)

	assert.NoError(t, mock.ExpectationsWereMet())
}
