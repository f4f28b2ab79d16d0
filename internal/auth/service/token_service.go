package service

//go:generate mockgen -destination=../../mocks/mock_token_generator.go -package=mocks github.com/BochengYin/AIMiniGames/internal/auth/service TokenGenerator

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
)

// TokenKind distinguishes what a token is good for. A structurally valid
// token of the wrong kind is rejected, so a refresh token can never be
// replayed as an access token.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
	KindReset   TokenKind = "reset"
)

type TokenGenerator interface {
	Issue(userID string, kind TokenKind, ttl time.Duration) (string, time.Time, error)
	Parse(token string, want TokenKind) (*SessionClaims, error)
	AccessTokenTTL() time.Duration
	RefreshTokenTTL() time.Duration
	ResetTokenTTL() time.Duration
}

type SessionClaims struct {
	jwt.RegisteredClaims
	UserID string    `json:"user_id"`
	Kind   TokenKind `json:"kind"`
}

type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	leeway     time.Duration
}

func NewTokenService(secret string, accessTTL, refreshTTL, resetTTL, leeway time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
		leeway:     leeway,
	}
}

func (ts *TokenService) Issue(userID string, kind TokenKind, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := SessionClaims{
		UserID: userID,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			// jti keeps two tokens minted in the same second distinct.
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

// Parse validates signature, expiry, and kind. All failure modes collapse
// into ErrInvalidToken so callers cannot tell which check failed.
func (ts *TokenService) Parse(tokenString string, want TokenKind) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, autherror.ErrInvalidToken
		}
		return ts.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(ts.leeway),
		jwt.WithIssuedAt(),
	)
	if err != nil || !token.Valid {
		return nil, autherror.ErrInvalidToken
	}

	if claims.Kind != want || claims.UserID == "" {
		return nil, autherror.ErrInvalidToken
	}

	return claims, nil
}

func (ts *TokenService) AccessTokenTTL() time.Duration {
	return ts.accessTTL
}

func (ts *TokenService) RefreshTokenTTL() time.Duration {
	return ts.refreshTTL
}

func (ts *TokenService) ResetTokenTTL() time.Duration {
	return ts.resetTTL
}
