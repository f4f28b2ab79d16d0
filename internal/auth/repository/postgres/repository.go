// Package postgres provides durable implementations of the auth store
// interfaces for deployments that outgrow the in-memory authority.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
)

const uniqueViolation = "23505"

// DBPool is the subset of pgxpool.Pool the repositories use; pgxmock
// satisfies it in tests.
type DBPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type UserRepository struct {
	db DBPool
}

func NewUserRepository(db DBPool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, handle, full_name, password_hash, role, is_active,
		created_at, updated_at, last_login, failed_attempts, locked_until`

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, handle, full_name, password_hash, role, is_active,
			created_at, updated_at, failed_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, user.ID, user.Email, strings.ToLower(user.Handle), user.FullName, user.PasswordHash,
		user.Role, user.Active, user.CreatedAt, user.UpdatedAt, user.FailedAttempts)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "handle") {
				return autherror.ErrHandleAlreadyTaken
			}
			return autherror.ErrEmailAlreadyInUse
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 LIMIT 1`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 LIMIT 1`, email)
}

func (r *UserRepository) GetByHandle(ctx context.Context, handle string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE handle = lower($1) LIMIT 1`,
		handle)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	row := r.db.QueryRow(ctx, query, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	return r.Mutate(ctx, id, func(u *domain.User) { applyPatch(u, patch) })
}

// Mutate runs the read-modify-write inside a transaction with a row lock,
// matching the atomicity the in-memory store gets from its mutex.
func (r *UserRepository) Mutate(ctx context.Context, id string, fn func(*domain.User)) (*domain.User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, autherror.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to lock user row: %w", err)
	}

	fn(user)
	user.UpdatedAt = time.Now()

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET full_name = $2, password_hash = $3, role = $4, is_active = $5,
			updated_at = $6, last_login = $7, failed_attempts = $8, locked_until = $9
		WHERE id = $1
	`, user.ID, user.FullName, user.PasswordHash, user.Role, user.Active,
		user.UpdatedAt, user.LastLogin, user.FailedAttempts, user.LockedUntil)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit user update: %w", err)
	}

	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+` FROM users ORDER BY created_at OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) Counts(ctx context.Context, now time.Time) (total, active, locked int, err error) {
	row := r.db.QueryRow(ctx, `
		SELECT count(*),
			count(*) FILTER (WHERE is_active),
			count(*) FILTER (WHERE locked_until IS NOT NULL AND locked_until > $1)
		FROM users
	`, now)
	if err := row.Scan(&total, &active, &locked); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count users: %w", err)
	}
	return total, active, locked, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.Email, &user.Handle, &user.FullName, &user.PasswordHash,
		&user.Role, &user.Active, &user.CreatedAt, &user.UpdatedAt, &user.LastLogin,
		&user.FailedAttempts, &user.LockedUntil)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func applyPatch(u *domain.User, patch domain.UserPatch) {
	if patch.FullName != nil {
		u.FullName = *patch.FullName
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.Active != nil {
		u.Active = *patch.Active
	}
	if patch.LastLogin != nil {
		t := *patch.LastLogin
		u.LastLogin = &t
	}
	if patch.FailedAttempts != nil {
		u.FailedAttempts = *patch.FailedAttempts
	}
	if patch.LockedUntil != nil {
		t := *patch.LockedUntil
		u.LockedUntil = &t
	}
	if patch.ClearLock {
		u.LockedUntil = nil
		u.FailedAttempts = 0
	}
}
