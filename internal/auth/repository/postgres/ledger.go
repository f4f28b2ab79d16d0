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

type TokenLedger struct {
	db DBPool
}

func NewTokenLedger(db DBPool) *TokenLedger {
	return &TokenLedger{db: db}
}

func (l *TokenLedger) Record(ctx context.Context, rt *domain.RefreshToken) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rt.ID, rt.UserID, rt.Token, rt.ExpiresAt, rt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (l *TokenLedger) Validate(ctx context.Context, token string) (string, error) {
	var userID string
	var expiresAt time.Time
	err := l.db.QueryRow(ctx, `
		SELECT rt.user_id, rt.expires_at
		FROM refresh_tokens rt
		WHERE rt.token = $1
		  AND NOT EXISTS (SELECT 1 FROM token_blacklist b WHERE b.token = rt.token)
		LIMIT 1
	`, token).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", autherror.ErrInvalidToken
		}
		return "", fmt.Errorf("failed to validate refresh token: %w", err)
	}

	if time.Now().After(expiresAt) {
		_, _ = l.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token)
		return "", autherror.ErrInvalidToken
	}

	return userID, nil
}

// Rotate retires old and records next inside one transaction. The DELETE is
// the linearization point: only the caller whose delete affects a row wins.
func (l *TokenLedger) Rotate(ctx context.Context, old string, next *domain.RefreshToken) (string, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID string
	var expiresAt time.Time
	err = tx.QueryRow(ctx, `
		DELETE FROM refresh_tokens WHERE token = $1 RETURNING user_id, expires_at
	`, old).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", autherror.ErrInvalidToken
		}
		return "", fmt.Errorf("failed to retire refresh token: %w", err)
	}
	if time.Now().After(expiresAt) {
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("failed to commit eviction: %w", err)
		}
		return "", autherror.ErrInvalidToken
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO token_blacklist (token, expires_at, created_at)
		VALUES ($1, $2, now()) ON CONFLICT (token) DO NOTHING
	`, old, expiresAt)
	if err != nil {
		return "", fmt.Errorf("failed to blacklist refresh token: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, next.ID, next.UserID, next.Token, next.ExpiresAt, next.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to store rotated refresh token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit rotation: %w", err)
	}

	return userID, nil
}

func (l *TokenLedger) Blacklist(ctx context.Context, token string, expiresAt time.Time) error {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO token_blacklist (token, expires_at, created_at)
		VALUES ($1, $2, now()) ON CONFLICT (token) DO NOTHING
	`, token, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to evict blacklisted token: %w", err)
	}

	return tx.Commit(ctx)
}

func (l *TokenLedger) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := l.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE token = $1)`, token).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists, nil
}

func (l *TokenLedger) RevokeAll(ctx context.Context, userID string) error {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO token_blacklist (token, expires_at, created_at)
		SELECT token, expires_at, now() FROM refresh_tokens WHERE user_id = $1
		ON CONFLICT (token) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to blacklist user tokens: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to evict user tokens: %w", err)
	}

	return tx.Commit(ctx)
}

func (l *TokenLedger) CountActive(ctx context.Context, userID string) (int, error) {
	var count int
	err := l.db.QueryRow(ctx, `
		SELECT count(*) FROM refresh_tokens WHERE user_id = $1 AND expires_at > now()
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active tokens: %w", err)
	}
	return count, nil
}

func (l *TokenLedger) DeleteOldest(ctx context.Context, userID string) error {
	_, err := l.db.Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE token = (
			SELECT token FROM refresh_tokens WHERE user_id = $1
			ORDER BY created_at ASC LIMIT 1
		)
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete oldest token: %w", err)
	}
	return nil
}

func (l *TokenLedger) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed := 0

	tag, err := l.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep refresh tokens: %w", err)
	}
	removed += int(tag.RowsAffected())

	tag, err = l.db.Exec(ctx, `DELETE FROM token_blacklist WHERE expires_at <= $1`, now)
	if err != nil {
		return removed, fmt.Errorf("failed to sweep blacklist: %w", err)
	}
	removed += int(tag.RowsAffected())

	return removed, nil
}

func (l *TokenLedger) Counts(ctx context.Context) (active, blacklisted int, err error) {
	err = l.db.QueryRow(ctx, `
		SELECT (SELECT count(*) FROM refresh_tokens), (SELECT count(*) FROM token_blacklist)
	`).Scan(&active, &blacklisted)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return active, blacklisted, nil
}
