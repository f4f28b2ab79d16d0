package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/BochengYin/AIMiniGames/config"
	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
	"github.com/BochengYin/AIMiniGames/internal/auth/dto"
	"github.com/BochengYin/AIMiniGames/internal/auth/service"
	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
)

type AuthHandler struct {
	userService *service.UserService
	cfg         *config.Config
}

func NewAuthHandler(userService *service.UserService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{userService: userService, cfg: cfg}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input dto.RegisterInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if input.Email == "" || input.Handle == "" || input.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "email, handle and password are required"})
	}
	if input.ConfirmPassword != "" && input.ConfirmPassword != input.Password {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "passwords do not match"})
	}

	user, err := h.userService.Register(c.Context(), input)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.NewUserOutput(user))
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input dto.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	tokenPair, err := h.userService.Login(c.Context(), input)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tokenPair)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var input dto.RefreshInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	tokens, err := h.userService.Refresh(c.Context(), input.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tokens)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token, _ := c.Locals(localAccessToken).(string)
	if err := h.userService.Logout(c.Context(), token); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "successfully logged out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := currentUser(c)
	return c.Status(fiber.StatusOK).JSON(dto.NewUserOutput(user))
}

func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	var input dto.UpdateProfileInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	user := currentUser(c)
	if input.FullName == nil {
		return c.Status(fiber.StatusOK).JSON(dto.NewUserOutput(user))
	}

	updated, err := h.userService.UpdateProfile(c.Context(), user.ID, *input.FullName)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.NewUserOutput(updated))
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var input dto.ChangePasswordInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if input.ConfirmNewPassword != "" && input.ConfirmNewPassword != input.NewPassword {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "passwords do not match"})
	}

	user := currentUser(c)
	if err := h.userService.ChangePassword(c.Context(), user.ID, input.CurrentPassword, input.NewPassword); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "password updated, please login again"})
}

// RequestPasswordReset answers identically whether or not the email exists,
// so the endpoint cannot be used to enumerate accounts. Outside production
// the token is echoed back for testing, standing in for email delivery.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var input dto.PasswordResetRequestInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	const msg = "if the email exists, a reset link has been sent"

	token, _, err := h.userService.RequestPasswordReset(c.Context(), input.Email)
	if err != nil {
		if errors.Is(err, autherror.ErrUserNotFound) {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": msg})
		}
		return respondError(c, err)
	}

	if h.cfg.Env != "production" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": msg, "reset_token": token})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": msg})
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var input dto.PasswordResetConfirmInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if input.ConfirmPassword != "" && input.ConfirmPassword != input.NewPassword {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "passwords do not match"})
	}

	if _, err := h.userService.ResetPassword(c.Context(), input.ResetToken, input.NewPassword); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "password reset successfully"})
}

func (h *AuthHandler) DeleteAccount(c *fiber.Ctx) error {
	user := currentUser(c)
	token, _ := c.Locals(localAccessToken).(string)

	// Retires the whole session family before the record disappears.
	if err := h.userService.Logout(c.Context(), token); err != nil {
		return respondError(c, err)
	}
	if err := h.userService.DeleteAccount(c.Context(), user.ID); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "account deleted successfully"})
}

func (h *AuthHandler) Health(c *fiber.Ctx) error {
	stats, err := h.userService.Stats(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy", "stats": stats})
}

func respondError(c *fiber.Ctx, err error) error {
	var locked *autherror.LockedError
	if errors.As(err, &locked) {
		return c.Status(fiber.StatusLocked).JSON(fiber.Map{
			"error":       locked.Error(),
			"retry_after": int(locked.RetryAfter.Seconds()),
		})
	}

	switch {
	case errors.Is(err, autherror.ErrInvalidCredentials),
		errors.Is(err, autherror.ErrInvalidToken):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, autherror.ErrUserInactive):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, autherror.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, autherror.ErrEmailAlreadyInUse),
		errors.Is(err, autherror.ErrHandleAlreadyTaken),
		errors.Is(err, autherror.ErrWeakPassword),
		errors.Is(err, autherror.ErrResetInvalidOrExpired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}

func currentUser(c *fiber.Ctx) *domain.User {
	user, _ := c.Locals(localUser).(*domain.User)
	return user
}
