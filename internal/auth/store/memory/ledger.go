package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
)

// TokenLedger tracks outstanding refresh tokens plus the blacklist. One
// mutex covers both maps, so "blacklist old + record new" is a single
// critical section and a ledgered token is never simultaneously blacklisted.
type TokenLedger struct {
	mu        sync.RWMutex
	tokens    map[string]*domain.RefreshToken
	byUser    map[string]map[string]struct{}
	blacklist map[string]time.Time
}

func NewTokenLedger() *TokenLedger {
	return &TokenLedger{
		tokens:    make(map[string]*domain.RefreshToken),
		byUser:    make(map[string]map[string]struct{}),
		blacklist: make(map[string]time.Time),
	}
}

func (l *TokenLedger) Record(_ context.Context, rt *domain.RefreshToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordLocked(rt)
	return nil
}

// Validate returns the owning user id, evicting expired entries on lookup.
func (l *TokenLedger) Validate(_ context.Context, token string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, revoked := l.blacklist[token]; revoked {
		return "", autherror.ErrInvalidToken
	}

	rt, ok := l.tokens[token]
	if !ok {
		return "", autherror.ErrInvalidToken
	}
	if time.Now().After(rt.ExpiresAt) {
		l.deleteLocked(token)
		return "", autherror.ErrInvalidToken
	}

	return rt.UserID, nil
}

// Rotate retires old and records next atomically. A second caller racing
// with the same old token finds it blacklisted and fails; exactly one
// rotation wins.
func (l *TokenLedger) Rotate(_ context.Context, old string, next *domain.RefreshToken) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, revoked := l.blacklist[old]; revoked {
		return "", autherror.ErrInvalidToken
	}
	rt, ok := l.tokens[old]
	if !ok {
		return "", autherror.ErrInvalidToken
	}
	if time.Now().After(rt.ExpiresAt) {
		l.deleteLocked(old)
		return "", autherror.ErrInvalidToken
	}

	l.blacklist[old] = rt.ExpiresAt
	l.deleteLocked(old)
	l.recordLocked(next)

	return rt.UserID, nil
}

// Blacklist is idempotent and accepts access tokens as well as refresh
// tokens. expiresAt bounds how long the entry must be kept.
func (l *TokenLedger) Blacklist(_ context.Context, token string, expiresAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.blacklist[token] = expiresAt
	l.deleteLocked(token)

	return nil
}

func (l *TokenLedger) IsBlacklisted(_ context.Context, token string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, revoked := l.blacklist[token]
	return revoked, nil
}

// RevokeAll evicts and blacklists every refresh token owned by the user.
func (l *TokenLedger) RevokeAll(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for token := range l.byUser[userID] {
		if rt, ok := l.tokens[token]; ok {
			l.blacklist[token] = rt.ExpiresAt
		}
		delete(l.tokens, token)
	}
	delete(l.byUser, userID)

	return nil
}

func (l *TokenLedger) CountActive(_ context.Context, userID string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byUser[userID]), nil
}

func (l *TokenLedger) DeleteOldest(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var oldest *domain.RefreshToken
	for token := range l.byUser[userID] {
		rt := l.tokens[token]
		if rt == nil {
			continue
		}
		if oldest == nil || rt.CreatedAt.Before(oldest.CreatedAt) {
			oldest = rt
		}
	}
	if oldest != nil {
		l.deleteLocked(oldest.Token)
	}

	return nil
}

// Sweep evicts expired ledger entries and blacklist entries whose tokens
// could no longer verify anyway. Complements evict-on-lookup for tokens
// that are never presented again.
func (l *TokenLedger) Sweep(_ context.Context, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for token, rt := range l.tokens {
		if now.After(rt.ExpiresAt) {
			l.deleteLocked(token)
			removed++
		}
	}
	for token, expiresAt := range l.blacklist {
		if now.After(expiresAt) {
			delete(l.blacklist, token)
			removed++
		}
	}

	return removed, nil
}

func (l *TokenLedger) Counts(_ context.Context) (active, blacklisted int, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tokens), len(l.blacklist), nil
}

func (l *TokenLedger) recordLocked(rt *domain.RefreshToken) {
	stored := *rt
	l.tokens[rt.Token] = &stored
	set, ok := l.byUser[rt.UserID]
	if !ok {
		set = make(map[string]struct{})
		l.byUser[rt.UserID] = set
	}
	set[rt.Token] = struct{}{}
}

func (l *TokenLedger) deleteLocked(token string) {
	rt, ok := l.tokens[token]
	if !ok {
		return
	}
	delete(l.tokens, token)
	if set, ok := l.byUser[rt.UserID]; ok {
		delete(set, token)
		if len(set) == 0 {
			delete(l.byUser, rt.UserID)
		}
	}
}
