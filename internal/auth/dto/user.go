package dto

import (
	"time"

	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
)

// FullName is a pointer so an absent field leaves the profile unchanged.
type UpdateProfileInput struct {
	FullName *string `json:"full_name"`
}

type UserOutput struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Handle    string     `json:"handle"`
	FullName  string     `json:"full_name,omitempty"`
	Role      string     `json:"role"`
	Active    bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

type TokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int        `json:"expires_in"`
	User         UserOutput `json:"user"`
}

func NewUserOutput(u *domain.User) UserOutput {
	return UserOutput{
		ID:        u.ID,
		Email:     u.Email,
		Handle:    u.Handle,
		FullName:  u.FullName,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}
