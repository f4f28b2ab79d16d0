package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/BochengYin/AIMiniGames/internal/auth/dto"
)

func (h *AuthHandler) GetAllUsers(c *fiber.Ctx) error {
	offset := c.QueryInt("skip", 0)
	limit := c.QueryInt("limit", 100)

	users, err := h.userService.ListUsers(c.Context(), offset, limit)
	if err != nil {
		return respondError(c, err)
	}

	out := make([]dto.UserOutput, 0, len(users))
	for _, u := range users {
		out = append(out, dto.NewUserOutput(u))
	}

	return c.Status(fiber.StatusOK).JSON(out)
}

func (h *AuthHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.userService.Stats(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"stats": stats})
}

func (h *AuthHandler) ActivateUser(c *fiber.Ctx) error {
	if err := h.userService.Activate(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "user activated successfully"})
}

func (h *AuthHandler) DeactivateUser(c *fiber.Ctx) error {
	admin := currentUser(c)
	if admin != nil && admin.ID == c.Params("id") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot deactivate your own account"})
	}

	if err := h.userService.Deactivate(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "user deactivated successfully"})
}
