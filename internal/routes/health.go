package routes

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealthRoutes exposes liveness and readiness probes.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	app.Get("/readyz", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if d.DB != nil {
			if err := d.DB.Ping(ctx); err != nil {
				return fiber.NewError(http.StatusServiceUnavailable, "database unavailable")
			}
		}
		if d.Cache != nil {
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				return fiber.NewError(http.StatusServiceUnavailable, "cache unavailable")
			}
		}
		return c.JSON(fiber.Map{"status": "ready", "checked_at": time.Now().UTC()})
	})
}
