package dto

// Identifier accepts either the email address or the handle.
type LoginInput struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}
