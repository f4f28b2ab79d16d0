package domain

//go:generate mockgen -destination=../../mocks/mock_user_store.go -package=mocks github.com/BochengYin/AIMiniGames/internal/auth/domain UserStore,TokenLedger,ResetTokenStore

import (
	"context"
	"time"
)

// UserStore owns user records and the email/handle uniqueness indices.
// Lookups return (nil, nil) when no record exists.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByHandle(ctx context.Context, handle string) (*User, error)
	Update(ctx context.Context, id string, patch UserPatch) (*User, error)
	// Mutate applies fn to the record under the store's write lock so
	// read-modify-write transitions (lockout counters) are atomic.
	Mutate(ctx context.Context, id string, fn func(*User)) (*User, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, offset, limit int) ([]*User, error)
	Counts(ctx context.Context, now time.Time) (total, active, locked int, err error)
}

// TokenLedger tracks outstanding refresh tokens and the blacklist of
// invalidated tokens. Blacklisting a ledgered token and removing its entry
// happen in one critical section.
type TokenLedger interface {
	Record(ctx context.Context, rt *RefreshToken) error
	Validate(ctx context.Context, token string) (string, error)
	// Rotate atomically retires old and records next. Exactly one of any
	// number of concurrent rotations of the same old token succeeds; the
	// rest get ErrInvalidToken.
	Rotate(ctx context.Context, old string, next *RefreshToken) (string, error)
	Blacklist(ctx context.Context, token string, expiresAt time.Time) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	RevokeAll(ctx context.Context, userID string) error
	CountActive(ctx context.Context, userID string) (int, error)
	DeleteOldest(ctx context.Context, userID string) error
	Sweep(ctx context.Context, now time.Time) (int, error)
	Counts(ctx context.Context) (active, blacklisted int, err error)
}

// ResetTokenStore tracks single-use password reset tokens.
type ResetTokenStore interface {
	Create(ctx context.Context, rec *PasswordResetToken) error
	// Consume validates and deletes the token in one step so it can be
	// redeemed at most once.
	Consume(ctx context.Context, token string) (string, error)
	DeleteForUser(ctx context.Context, userID string) error
	Sweep(ctx context.Context, now time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}
