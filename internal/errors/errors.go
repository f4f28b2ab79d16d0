package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrEmailAlreadyInUse     = errors.New("email already in use")
	ErrHandleAlreadyTaken    = errors.New("handle already taken")
	ErrWeakPassword          = errors.New("password does not meet complexity requirements")
	ErrAccountLocked         = errors.New("account temporarily locked")
	ErrInvalidToken          = errors.New("invalid token")
	ErrUserInactive          = errors.New("user is inactive")
	ErrResetInvalidOrExpired = errors.New("invalid or expired reset token")
)

// LockedError carries the remaining cooldown alongside ErrAccountLocked so
// handlers can surface a retry-after without a more specific error kind.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account temporarily locked, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
