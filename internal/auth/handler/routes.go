package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/BochengYin/AIMiniGames/pkg/constant"
)

func RegisterRoutes(app *fiber.App, h *AuthHandler) {
	app.Get("/health", h.Health)

	v1 := app.Group("/api/v1")
	v1.Post("/register", h.Register)
	v1.Post("/login", h.Login)
	v1.Post("/refresh", h.Refresh)
	v1.Post("/request-password-reset", h.RequestPasswordReset)
	v1.Post("/reset-password", h.ResetPassword)

	v1.Post("/logout", h.RequireAuth, h.Logout)
	v1.Get("/me", h.RequireAuth, h.Me)
	v1.Put("/me", h.RequireAuth, h.UpdateProfile)
	v1.Put("/change-password", h.RequireAuth, h.ChangePassword)
	v1.Delete("/account", h.RequireAuth, h.DeleteAccount)

	// Admin-only endpoints
	admin := v1.Group("/admin", h.RequireAuth, h.RequireRole(constant.RoleAdmin))
	admin.Get("/users", h.GetAllUsers)
	admin.Get("/stats", h.GetStats)
	admin.Put("/user/:id/activate", h.ActivateUser)
	admin.Put("/user/:id/deactivate", h.DeactivateUser)
}
