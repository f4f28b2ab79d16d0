package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BochengYin/AIMiniGames/config"
	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
	"github.com/BochengYin/AIMiniGames/internal/auth/dto"
	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
	"github.com/BochengYin/AIMiniGames/pkg/constant"
)

// UserService is the single entry point used by route handlers. It
// orchestrates the user store, token ledger, reset store, codec and lockout
// policy; handlers never touch those components directly.
type UserService struct {
	users   domain.UserStore
	ledger  domain.TokenLedger
	resets  domain.ResetTokenStore
	tokens  TokenGenerator
	hasher  *PasswordHasher
	lockout *LockoutPolicy
	cfg     *config.Config
}

func NewUserService(
	users domain.UserStore,
	ledger domain.TokenLedger,
	resets domain.ResetTokenStore,
	tokens TokenGenerator,
	cfg *config.Config,
) *UserService {
	return &UserService{
		users:   users,
		ledger:  ledger,
		resets:  resets,
		tokens:  tokens,
		hasher:  NewPasswordHasher(cfg.BcryptCost),
		lockout: NewLockoutPolicy(cfg.LockoutThreshold, cfg.LockoutCooldown),
		cfg:     cfg,
	}
}

func (s *UserService) Register(ctx context.Context, input dto.RegisterInput) (*domain.User, error) {
	if err := CheckPasswordPolicy(input.Password, s.cfg.PasswordMinLength); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Handle:       strings.ToLower(strings.TrimSpace(input.Handle)),
		FullName:     strings.TrimSpace(input.FullName),
		PasswordHash: hash,
		Role:         constant.DefaultUserRole,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Uniqueness is enforced inside Create so record and both indices
	// appear atomically; a pre-check here would only race.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("user registered", "user_id", user.ID, "email", user.Email)

	return user, nil
}

// EnsureAdmin seeds the administrator account so the admin surface is
// reachable on a fresh store. An existing account with the same email is
// left untouched.
func (s *UserService) EnsureAdmin(ctx context.Context, email, handle, fullName, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	admin := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Handle:       strings.ToLower(strings.TrimSpace(handle)),
		FullName:     fullName,
		PasswordHash: hash,
		Role:         constant.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return nil, err
	}

	slog.Info("admin user created", "email", admin.Email)

	return admin, nil
}

// Login resolves the identifier as email first, then handle. Unknown users
// fail with the same error as a wrong password so callers cannot probe for
// account existence.
func (s *UserService) Login(ctx context.Context, input dto.LoginInput) (*dto.TokenResponse, error) {
	user, err := s.resolveIdentifier(ctx, input.Identifier)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, autherror.ErrInvalidCredentials
	}

	var locked bool
	var retryAfter time.Duration
	user, err = s.users.Mutate(ctx, user.ID, func(u *domain.User) {
		locked = s.lockout.IsLocked(u)
		if locked {
			retryAfter = s.lockout.RetryAfter(u)
		}
	})
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, &autherror.LockedError{RetryAfter: retryAfter}
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		if _, err := s.users.Mutate(ctx, user.ID, func(u *domain.User) {
			s.lockout.RecordFailure(u)
		}); err != nil {
			return nil, err
		}
		slog.Warn("failed login attempt", "user_id", user.ID)
		return nil, autherror.ErrInvalidCredentials
	}

	now := time.Now()
	user, err = s.users.Mutate(ctx, user.ID, func(u *domain.User) {
		s.lockout.RecordSuccess(u)
		u.LastLogin = &now
	})
	if err != nil {
		return nil, err
	}

	pair, refreshRecord, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Record(ctx, refreshRecord); err != nil {
		return nil, err
	}
	s.enforceTokenCap(ctx, user.ID)

	slog.Info("user logged in", "user_id", user.ID)

	return pair, nil
}

// Refresh rotates the presented refresh token: the old token is blacklisted
// and the replacement recorded in one ledger critical section, so a replay
// of the old token fails even before its natural expiry.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	if _, err := s.tokens.Parse(refreshToken, KindRefresh); err != nil {
		return nil, autherror.ErrInvalidToken
	}

	userID, err := s.ledger.Validate(ctx, refreshToken)
	if err != nil {
		return nil, autherror.ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, autherror.ErrInvalidToken
	}
	if !user.Active {
		return nil, autherror.ErrUserInactive
	}

	pair, next, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.Rotate(ctx, refreshToken, next); err != nil {
		// Lost the race to a concurrent rotation of the same token.
		return nil, autherror.ErrInvalidToken
	}
	s.enforceTokenCap(ctx, user.ID)

	return pair, nil
}

// Logout blacklists the access token and revokes every refresh token for
// the user: logging out invalidates the whole session family.
func (s *UserService) Logout(ctx context.Context, accessToken string) error {
	user, claims, err := s.verifyAccessToken(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := s.ledger.Blacklist(ctx, accessToken, claims.ExpiresAt.Time); err != nil {
		return err
	}
	if err := s.ledger.RevokeAll(ctx, user.ID); err != nil {
		return err
	}

	slog.Info("user logged out", "user_id", user.ID)

	return nil
}

// VerifyAccess authenticates a bearer access token. The blacklist is
// consulted before the signature is trusted, so a stolen-but-revoked token
// is rejected regardless of its expiry.
func (s *UserService) VerifyAccess(ctx context.Context, accessToken string) (*domain.User, error) {
	user, _, err := s.verifyAccessToken(ctx, accessToken)
	return user, err
}

func (s *UserService) verifyAccessToken(ctx context.Context, accessToken string) (*domain.User, *SessionClaims, error) {
	blacklisted, err := s.ledger.IsBlacklisted(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}
	if blacklisted {
		return nil, nil, autherror.ErrInvalidToken
	}

	claims, err := s.tokens.Parse(accessToken, KindAccess)
	if err != nil {
		return nil, nil, autherror.ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		// A vanished subject is indistinguishable from any other token
		// failure; a 404 here would leak account deletion.
		return nil, nil, autherror.ErrInvalidToken
	}
	if !user.Active {
		return nil, nil, autherror.ErrUserInactive
	}

	return user, claims, nil
}

// UpdateProfile changes the mutable profile fields of the account.
func (s *UserService) UpdateProfile(ctx context.Context, userID, fullName string) (*domain.User, error) {
	fullName = strings.TrimSpace(fullName)
	user, err := s.users.Update(ctx, userID, domain.UserPatch{FullName: &fullName})
	if err != nil {
		return nil, err
	}

	slog.Info("profile updated", "user_id", userID)

	return user, nil
}

// ChangePassword verifies the current password, swaps the hash, and revokes
// every outstanding token so the user must log in again everywhere.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return autherror.ErrUserNotFound
	}

	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return autherror.ErrInvalidCredentials
	}

	if err := CheckPasswordPolicy(newPassword, s.cfg.PasswordMinLength); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if _, err := s.users.Update(ctx, userID, domain.UserPatch{PasswordHash: &hash}); err != nil {
		return err
	}
	if err := s.ledger.RevokeAll(ctx, userID); err != nil {
		return err
	}

	slog.Info("password changed", "user_id", userID)

	return nil
}

// RequestPasswordReset issues a single-use, time-boxed reset token. Unknown
// emails return ErrUserNotFound; the route layer hides that from clients so
// the response shape never reveals whether the email exists.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) (string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", time.Time{}, err
	}
	if user == nil {
		return "", time.Time{}, autherror.ErrUserNotFound
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, KindReset, s.tokens.ResetTokenTTL())
	if err != nil {
		return "", time.Time{}, err
	}

	rec := &domain.PasswordResetToken{
		Token:     token,
		UserID:    user.ID,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
	if err := s.resets.Create(ctx, rec); err != nil {
		return "", time.Time{}, err
	}

	slog.Info("password reset requested", "user_id", user.ID)

	return token, expiresAt, nil
}

// ResetPassword redeems a reset token. The token is consumed (validated and
// deleted in one store operation) before any effect is applied, so it can
// never be redeemed twice.
func (s *UserService) ResetPassword(ctx context.Context, resetToken, newPassword string) (string, error) {
	claims, err := s.tokens.Parse(resetToken, KindReset)
	if err != nil {
		return "", autherror.ErrResetInvalidOrExpired
	}

	// The policy check runs before Consume so a rejected new password does
	// not burn the single-use token.
	if err := CheckPasswordPolicy(newPassword, s.cfg.PasswordMinLength); err != nil {
		return "", err
	}

	userID, err := s.resets.Consume(ctx, resetToken)
	if err != nil {
		return "", autherror.ErrResetInvalidOrExpired
	}
	if userID != claims.UserID {
		return "", autherror.ErrResetInvalidOrExpired
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", err
	}

	if _, err := s.users.Mutate(ctx, userID, func(u *domain.User) {
		u.PasswordHash = hash
		s.lockout.RecordSuccess(u)
	}); err != nil {
		return "", err
	}
	if err := s.ledger.RevokeAll(ctx, userID); err != nil {
		return "", err
	}

	slog.Info("password reset completed", "user_id", userID)

	return userID, nil
}

func (s *UserService) Activate(ctx context.Context, userID string) error {
	active := true
	_, err := s.users.Update(ctx, userID, domain.UserPatch{Active: &active})
	return err
}

// Deactivate disables the account and revokes every outstanding token.
func (s *UserService) Deactivate(ctx context.Context, userID string) error {
	active := false
	if _, err := s.users.Update(ctx, userID, domain.UserPatch{Active: &active}); err != nil {
		return err
	}
	return s.ledger.RevokeAll(ctx, userID)
}

// DeleteAccount removes the user and cascades revocation: no token for the
// user survives deletion.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	deleted, err := s.users.Delete(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return autherror.ErrUserNotFound
	}

	if err := s.ledger.RevokeAll(ctx, userID); err != nil {
		return err
	}
	if err := s.resets.DeleteForUser(ctx, userID); err != nil {
		return err
	}

	slog.Info("account deleted", "user_id", userID)

	return nil
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, autherror.ErrUserNotFound
	}
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	return s.users.List(ctx, offset, limit)
}

func (s *UserService) Stats(ctx context.Context) (*domain.StoreStats, error) {
	total, active, locked, err := s.users.Counts(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	refresh, blacklisted, err := s.ledger.Counts(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.resets.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &domain.StoreStats{
		TotalUsers:          total,
		ActiveUsers:         active,
		LockedUsers:         locked,
		ActiveRefreshTokens: refresh,
		BlacklistedTokens:   blacklisted,
		PendingResetTokens:  pending,
	}, nil
}

func (s *UserService) resolveIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	identifier = strings.TrimSpace(identifier)
	user, err := s.users.GetByEmail(ctx, strings.ToLower(identifier))
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = s.users.GetByHandle(ctx, identifier)
		if err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (s *UserService) issuePair(user *domain.User) (*dto.TokenResponse, *domain.RefreshToken, error) {
	accessToken, _, err := s.tokens.Issue(user.ID, KindAccess, s.tokens.AccessTokenTTL())
	if err != nil {
		return nil, nil, err
	}

	refreshToken, refreshExpiry, err := s.tokens.Issue(user.ID, KindRefresh, s.tokens.RefreshTokenTTL())
	if err != nil {
		return nil, nil, err
	}

	record := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: refreshExpiry,
		CreatedAt: time.Now(),
	}

	pair := &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int(s.tokens.AccessTokenTTL().Seconds()),
		User:         dto.NewUserOutput(user),
	}

	return pair, record, nil
}

func (s *UserService) enforceTokenCap(ctx context.Context, userID string) {
	count, err := s.ledger.CountActive(ctx, userID)
	if err != nil {
		slog.Warn("failed to count active refresh tokens", "user_id", userID, "error", err)
		return
	}
	if count > s.cfg.MaxActiveTokens {
		if err := s.ledger.DeleteOldest(ctx, userID); err != nil {
			slog.Warn("failed to delete oldest refresh token", "user_id", userID, "error", err)
		}
	}
}
