package service

import (
	"time"

	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
)

// LockoutPolicy is a set of pure transitions over a User's failure counter
// and lock-until timestamp. Persistence is the caller's job; transitions are
// applied inside UserStore.Mutate so concurrent failures cannot lose counts.
type LockoutPolicy struct {
	Threshold int
	Cooldown  time.Duration
}

func NewLockoutPolicy(threshold int, cooldown time.Duration) *LockoutPolicy {
	return &LockoutPolicy{Threshold: threshold, Cooldown: cooldown}
}

func (p *LockoutPolicy) RecordFailure(u *domain.User) {
	u.FailedAttempts++
	if u.FailedAttempts >= p.Threshold {
		until := time.Now().Add(p.Cooldown)
		u.LockedUntil = &until
	}
}

func (p *LockoutPolicy) RecordSuccess(u *domain.User) {
	u.FailedAttempts = 0
	u.LockedUntil = nil
}

// IsLocked reports whether the account is currently locked. An elapsed lock
// is cleared in place, so locks self-heal on the next check instead of
// needing a background sweep.
func (p *LockoutPolicy) IsLocked(u *domain.User) bool {
	if u.LockedUntil == nil {
		return false
	}
	if time.Now().Before(*u.LockedUntil) {
		return true
	}
	u.LockedUntil = nil
	u.FailedAttempts = 0
	return false
}

func (p *LockoutPolicy) RetryAfter(u *domain.User) time.Duration {
	if u.LockedUntil == nil {
		return 0
	}
	remaining := time.Until(*u.LockedUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}
