package service

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"

	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
)

// PasswordHasher wraps bcrypt so hashing cost is configured in one place.
// bcrypt salts internally, so two hashes of the same password differ.
type PasswordHasher struct {
	cost int
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (h *PasswordHasher) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// CheckPasswordPolicy enforces minimum length plus at least one digit, one
// uppercase and one lowercase character.
func CheckPasswordPolicy(password string, minLength int) error {
	if len(password) < minLength {
		return autherror.ErrWeakPassword
	}

	var hasDigit, hasUpper, hasLower bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		}
	}

	if !hasDigit || !hasUpper || !hasLower {
		return autherror.ErrWeakPassword
	}

	return nil
}
