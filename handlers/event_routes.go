// handlers/event_routes.go
package handlers

import (
	"errors"

	"polystirolhub-backend/middleware"
	"polystirolhub-backend/services"

	"github.com/gofiber/fiber/v2"
)

// SetupEventRoutes registers the inbound activity-signal API used by the
// statistics ingestion and session-end handlers. Gateway auth is global;
// these routes carry no per-user context of their own.
func SetupEventRoutes(app *fiber.App, accounts *services.AccountService, progress *services.ProgressService) {
	events := app.Group("/events")

	// Counter delta: increments the counter and fans progress out to every
	// definition sharing the key.
	events.Post("/counter", func(c *fiber.Ctx) error {
		var req struct {
			UserID     string `json:"user_id"`
			CounterKey string `json:"counter_key"`
			Delta      int64  `json:"delta"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.UserID == "" || req.CounterKey == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and counter_key are required"})
		}

		if _, err := accounts.EnsureUser(req.UserID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to ensure account", "cause": err.Error()})
		}

		if err := progress.OnCounterDelta(req.UserID, req.CounterKey, req.Delta); err != nil {
			if errors.Is(err, services.ErrInvalidAmount) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "delta must be positive"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "counter update failed", "cause": err.Error()})
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "counter recorded"})
	})

	// Absolute progress report: a value pushed as-is at session end (e.g.
	// deaths_in_session); no counter involved.
	events.Post("/progress", func(c *fiber.Ctx) error {
		var req struct {
			UserID       string `json:"user_id"`
			ConditionKey string `json:"condition_key"`
			Value        int64  `json:"value"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.UserID == "" || req.ConditionKey == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and condition_key are required"})
		}
		if req.Value < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "value must be non-negative"})
		}

		if _, err := accounts.EnsureUser(req.UserID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to ensure account", "cause": err.Error()})
		}

		progress.OnAbsoluteProgress(req.UserID, req.ConditionKey, req.Value)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "progress recorded"})
	})

	// Identity link for external platforms, used before a game server can
	// report statistics for a player.
	events.Post("/link", middleware.UserContextMiddleware(), func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			Platform         string  `json:"platform"`
			ExternalID       string  `json:"external_id"`
			PlatformUsername *string `json:"platform_username"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.Platform == "" || req.ExternalID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "platform and external_id are required"})
		}

		if _, err := accounts.EnsureUser(userID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to ensure account", "cause": err.Error()})
		}
		link, err := accounts.LinkExternal(userID, req.Platform, req.ExternalID, req.PlatformUsername)
		if err != nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "link failed", "cause": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(link)
	})
}
