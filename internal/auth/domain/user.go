package domain

import "time"

type User struct {
	ID             string
	Email          string
	Handle         string
	FullName       string
	PasswordHash   string
	Role           string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLogin      *time.Time
	FailedAttempts int
	LockedUntil    *time.Time
}

// UserPatch enumerates the mutable fields of a User. Identity fields (ID,
// Email, Handle, CreatedAt) are deliberately absent.
type UserPatch struct {
	FullName       *string
	PasswordHash   *string
	Role           *string
	Active         *bool
	LastLogin      *time.Time
	FailedAttempts *int
	LockedUntil    *time.Time
	ClearLock      bool
}

type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type PasswordResetToken struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// StoreStats is the aggregate snapshot reported by /health and /admin/stats.
type StoreStats struct {
	TotalUsers          int `json:"total_users"`
	ActiveUsers         int `json:"active_users"`
	LockedUsers         int `json:"locked_users"`
	ActiveRefreshTokens int `json:"active_refresh_tokens"`
	BlacklistedTokens   int `json:"blacklisted_tokens"`
	PendingResetTokens  int `json:"pending_reset_tokens"`
}
