package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
)

func TestLockoutPolicy_ThresholdLocks(t *testing.T) {
	p := NewLockoutPolicy(5, 15*time.Minute)
	user := &domain.User{}

	for i := 0; i < 4; i++ {
		p.RecordFailure(user)
		assert.Nil(t, user.LockedUntil)
	}

	p.RecordFailure(user)
	assert.Equal(t, 5, user.FailedAttempts)
	assert.NotNil(t, user.LockedUntil)
	assert.True(t, p.IsLocked(user))
	assert.Greater(t, p.RetryAfter(user), time.Duration(0))
}

func TestLockoutPolicy_SuccessResets(t *testing.T) {
	p := NewLockoutPolicy(5, 15*time.Minute)
	user := &domain.User{FailedAttempts: 3}

	p.RecordSuccess(user)

	assert.Equal(t, 0, user.FailedAttempts)
	assert.Nil(t, user.LockedUntil)
	assert.False(t, p.IsLocked(user))
}

func TestLockoutPolicy_ReadTriggeredExpiry(t *testing.T) {
	p := NewLockoutPolicy(5, 15*time.Minute)
	past := time.Now().Add(-time.Minute)
	user := &domain.User{FailedAttempts: 5, LockedUntil: &past}

	// Checking an elapsed lock clears it and zeroes the counter.
	assert.False(t, p.IsLocked(user))
	assert.Nil(t, user.LockedUntil)
	assert.Equal(t, 0, user.FailedAttempts)
	assert.Equal(t, time.Duration(0), p.RetryAfter(user))
}
