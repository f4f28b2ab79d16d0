// Package redis backs the token ledger with Redis, leaning on key TTLs so
// expired records and blacklist entries disappear on their own.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
)

const (
	refreshKeyPrefix   = "auth:refresh:"
	blacklistKeyPrefix = "auth:blacklist:"
	userTokensPrefix   = "auth:user_tokens:"
)

type TokenLedger struct {
	rdb *redis.Client
}

func NewTokenLedger(rdb *redis.Client) *TokenLedger {
	return &TokenLedger{rdb: rdb}
}

func refreshKey(token string) string     { return refreshKeyPrefix + token }
func blacklistKey(token string) string   { return blacklistKeyPrefix + token }
func userTokensKey(userID string) string { return userTokensPrefix + userID }

func (l *TokenLedger) Record(ctx context.Context, rt *domain.RefreshToken) error {
	pipe := l.rdb.TxPipeline()
	pipe.HSet(ctx, refreshKey(rt.Token), map[string]any{
		"user_id":    rt.UserID,
		"expires_at": rt.ExpiresAt.Unix(),
		"created_at": rt.CreatedAt.Unix(),
	})
	pipe.ExpireAt(ctx, refreshKey(rt.Token), rt.ExpiresAt)
	pipe.SAdd(ctx, userTokensKey(rt.UserID), rt.Token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record refresh token: %w", err)
	}
	return nil
}

func (l *TokenLedger) Validate(ctx context.Context, token string) (string, error) {
	blacklisted, err := l.IsBlacklisted(ctx, token)
	if err != nil {
		return "", err
	}
	if blacklisted {
		return "", autherror.ErrInvalidToken
	}

	vals, err := l.rdb.HGetAll(ctx, refreshKey(token)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if len(vals) == 0 {
		return "", autherror.ErrInvalidToken
	}

	expiresAt, _ := strconv.ParseInt(vals["expires_at"], 10, 64)
	if time.Now().Unix() >= expiresAt {
		_ = l.rdb.Del(ctx, refreshKey(token)).Err()
		_ = l.rdb.SRem(ctx, userTokensKey(vals["user_id"]), token).Err()
		return "", autherror.ErrInvalidToken
	}

	return vals["user_id"], nil
}

// Rotate watches the old token's key: if a concurrent rotation retires it
// first the transaction aborts and this caller loses, so at most one
// rotation of a given token ever succeeds.
func (l *TokenLedger) Rotate(ctx context.Context, old string, next *domain.RefreshToken) (string, error) {
	var userID string

	err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, refreshKey(old)).Result()
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			return autherror.ErrInvalidToken
		}

		userID = vals["user_id"]
		expiresAt, _ := strconv.ParseInt(vals["expires_at"], 10, 64)
		if time.Now().Unix() >= expiresAt {
			return autherror.ErrInvalidToken
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, refreshKey(old))
			pipe.SRem(ctx, userTokensKey(userID), old)
			pipe.Set(ctx, blacklistKey(old), "1", 0)
			pipe.ExpireAt(ctx, blacklistKey(old), time.Unix(expiresAt, 0))

			pipe.HSet(ctx, refreshKey(next.Token), map[string]any{
				"user_id":    next.UserID,
				"expires_at": next.ExpiresAt.Unix(),
				"created_at": next.CreatedAt.Unix(),
			})
			pipe.ExpireAt(ctx, refreshKey(next.Token), next.ExpiresAt)
			pipe.SAdd(ctx, userTokensKey(next.UserID), next.Token)
			return nil
		})
		return err
	}, refreshKey(old))

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) || errors.Is(err, autherror.ErrInvalidToken) {
			return "", autherror.ErrInvalidToken
		}
		return "", fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return userID, nil
}

func (l *TokenLedger) Blacklist(ctx context.Context, token string, expiresAt time.Time) error {
	userID, _ := l.rdb.HGet(ctx, refreshKey(token), "user_id").Result()

	pipe := l.rdb.TxPipeline()
	pipe.Set(ctx, blacklistKey(token), "1", 0)
	pipe.ExpireAt(ctx, blacklistKey(token), expiresAt)
	pipe.Del(ctx, refreshKey(token))
	if userID != "" {
		pipe.SRem(ctx, userTokensKey(userID), token)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

func (l *TokenLedger) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := l.rdb.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return n > 0, nil
}

func (l *TokenLedger) RevokeAll(ctx context.Context, userID string) error {
	tokens, err := l.rdb.SMembers(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list user tokens: %w", err)
	}

	pipe := l.rdb.TxPipeline()
	for _, token := range tokens {
		expiresAt, err := l.rdb.HGet(ctx, refreshKey(token), "expires_at").Result()
		if err == nil {
			if unix, perr := strconv.ParseInt(expiresAt, 10, 64); perr == nil {
				pipe.Set(ctx, blacklistKey(token), "1", 0)
				pipe.ExpireAt(ctx, blacklistKey(token), time.Unix(unix, 0))
			}
		}
		pipe.Del(ctx, refreshKey(token))
	}
	pipe.Del(ctx, userTokensKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return nil
}

func (l *TokenLedger) CountActive(ctx context.Context, userID string) (int, error) {
	n, err := l.rdb.SCard(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count user tokens: %w", err)
	}
	return int(n), nil
}

func (l *TokenLedger) DeleteOldest(ctx context.Context, userID string) error {
	tokens, err := l.rdb.SMembers(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list user tokens: %w", err)
	}

	var oldest string
	var oldestCreated int64
	for _, token := range tokens {
		created, err := l.rdb.HGet(ctx, refreshKey(token), "created_at").Result()
		if err != nil {
			continue
		}
		unix, err := strconv.ParseInt(created, 10, 64)
		if err != nil {
			continue
		}
		if oldest == "" || unix < oldestCreated {
			oldest = token
			oldestCreated = unix
		}
	}
	if oldest == "" {
		return nil
	}

	pipe := l.rdb.TxPipeline()
	pipe.Del(ctx, refreshKey(oldest))
	pipe.SRem(ctx, userTokensKey(userID), oldest)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete oldest token: %w", err)
	}
	return nil
}

// Sweep prunes user-set members whose backing keys have TTL-expired. The
// records and blacklist entries themselves expire via Redis TTLs.
func (l *TokenLedger) Sweep(ctx context.Context, _ time.Time) (int, error) {
	removed := 0
	iter := l.rdb.Scan(ctx, 0, userTokensPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		tokens, err := l.rdb.SMembers(ctx, setKey).Result()
		if err != nil {
			continue
		}
		for _, token := range tokens {
			n, err := l.rdb.Exists(ctx, refreshKey(token)).Result()
			if err == nil && n == 0 {
				if l.rdb.SRem(ctx, setKey, token).Val() > 0 {
					removed++
				}
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to sweep token sets: %w", err)
	}
	return removed, nil
}

func (l *TokenLedger) Counts(ctx context.Context) (active, blacklisted int, err error) {
	countKeys := func(pattern string) (int, error) {
		total := 0
		iter := l.rdb.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			total++
		}
		return total, iter.Err()
	}

	active, err = countKeys(refreshKeyPrefix + "*")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count refresh tokens: %w", err)
	}
	blacklisted, err = countKeys(blacklistKeyPrefix + "*")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count blacklist entries: %w", err)
	}
	return active, blacklisted, nil
}
