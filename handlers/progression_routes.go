// handlers/progression_routes.go
package handlers

import (
	"errors"
	"strconv"
	"time"

	"polystirolhub-backend/middleware"
	"polystirolhub-backend/services"

	"github.com/gofiber/fiber/v2"
)

// SetupProgressionRoutes registers the user-facing query API.
func SetupProgressionRoutes(app *fiber.App, accounts *services.AccountService, ledger *services.LedgerService, badges *services.BadgeService, progress *services.ProgressService, effects *services.SideEffectService) {
	securedGroup := app.Group("/user", middleware.UserContextMiddleware())

	securedGroup.Get("/progression", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		if _, err := accounts.EnsureUser(userID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to ensure account",
				"cause": err.Error(),
			})
		}

		prog, err := ledger.Progression(userID)
		if err != nil {
			if errors.Is(err, services.ErrAccountNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to compute progression",
				"cause": err.Error(),
			})
		}
		return c.JSON(prog)
	})

	securedGroup.Get("/badges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		grants, err := badges.ListActiveBadges(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list badges",
				"cause": err.Error(),
			})
		}

		response := make([]fiber.Map, 0, len(grants))
		for _, g := range grants {
			response = append(response, fiber.Map{
				"id":           g.ID,
				"badge_id":     g.Badge.ID,
				"code":         g.Badge.Code,
				"name":         g.Badge.Name,
				"description":  g.Badge.Description,
				"image_url":    g.Badge.ImageURL,
				"unicode_char": g.Badge.UnicodeChar,
				"badge_type":   g.Badge.BadgeType,
				"received_at":  g.ReceivedAt,
				"expires_at":   g.ExpiresAt,
			})
		}
		return c.JSON(response)
	})

	securedGroup.Get("/quests", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		if _, err := accounts.EnsureUser(userID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to ensure account",
				"cause": err.Error(),
			})
		}

		board, err := progress.ListQuestProgress(userID, time.Now())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list quests",
				"cause": err.Error(),
			})
		}
		return c.JSON(board)
	})

	securedGroup.Get("/notifications", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		notifications, err := effects.ListNotifications(userID, limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list notifications",
				"cause": err.Error(),
			})
		}
		return c.JSON(notifications)
	})

	securedGroup.Get("/notifications/stream", effects.StreamNotificationsSSE)

	// Public activity feed
	app.Get("/activity", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		feed, err := effects.ListActivity(limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list activity",
				"cause": err.Error(),
			})
		}
		return c.JSON(feed)
	})
}
