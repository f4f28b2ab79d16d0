package dto

type RegisterInput struct {
	Email           string `json:"email"`
	Handle          string `json:"handle"`
	FullName        string `json:"full_name"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}
