package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
)

type ResetTokenStore struct {
	db DBPool
}

func NewResetTokenStore(db DBPool) *ResetTokenStore {
	return &ResetTokenStore{db: db}
}

func (s *ResetTokenStore) Create(ctx context.Context, rec *domain.PasswordResetToken) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO password_reset_tokens (token, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, rec.Token, rec.UserID, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	return nil
}

// Consume deletes and returns in one statement; the delete doubles as the
// single-use guarantee.
func (s *ResetTokenStore) Consume(ctx context.Context, token string) (string, error) {
	var userID string
	var expiresAt time.Time
	err := s.db.QueryRow(ctx, `
		DELETE FROM password_reset_tokens WHERE token = $1 RETURNING user_id, expires_at
	`, token).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", autherror.ErrResetInvalidOrExpired
		}
		return "", fmt.Errorf("failed to consume reset token: %w", err)
	}

	if time.Now().After(expiresAt) {
		return "", autherror.ErrResetInvalidOrExpired
	}

	return userID, nil
}

func (s *ResetTokenStore) DeleteForUser(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM password_reset_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete reset tokens: %w", err)
	}
	return nil
}

func (s *ResetTokenStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM password_reset_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep reset tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *ResetTokenStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM password_reset_tokens`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reset tokens: %w", err)
	}
	return count, nil
}
