package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"datagate/internal/apperr"
	"datagate/internal/auth"
)

// Register mounts the routes. authMW guards everything except /health and
// /metrics.
func Register(app *fiber.App, h *Handler, authMW fiber.Handler) {
	app.Get("/health", h.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post("/compile/:collection", authMW, h.Compile)
	app.Post("/query/:collection", authMW, h.Query)
	app.Post("/sanitize/:collection", authMW, h.Sanitize)
	app.Get("/access/:collection/:item?", authMW, h.Access)

	if h.Reload != nil {
		app.Post("/admin/reload", authMW, requireAdmin, h.ReloadMetadata)
	}
}

func requireAdmin(c *fiber.Ctx) error {
	if !auth.GetAccountability(c).IsAdmin() {
		return apperr.ForbiddenError("Admin access required")
	}
	return c.Next()
}
