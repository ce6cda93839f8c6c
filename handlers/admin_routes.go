// handlers/admin_routes.go
package handlers

import (
	"errors"
	"time"

	"polystirolhub-backend/middleware"
	"polystirolhub-backend/services"

	"github.com/gofiber/fiber/v2"
)

// SetupAdminRoutes registers definition CRUD, manual ledger operations and
// the external scheduler triggers.
func SetupAdminRoutes(app *fiber.App, definitions *services.DefinitionService, ledger *services.LedgerService, badges *services.BadgeService, progress *services.ProgressService) {
	adminGroup := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	adminGroup.Get("/conditions", definitions.ListConditions)

	adminGroup.Get("/badges", definitions.ListBadges)
	adminGroup.Post("/badges", definitions.CreateBadge)
	adminGroup.Put("/badges/:id", definitions.UpdateBadge)
	adminGroup.Delete("/badges/:id", definitions.DeleteBadge)

	adminGroup.Get("/quests", definitions.ListQuests)
	adminGroup.Post("/quests", definitions.CreateQuest)
	adminGroup.Put("/quests/:id", definitions.UpdateQuest)
	adminGroup.Delete("/quests/:id", definitions.DeleteQuest)

	// Manual badge grant (refuses when already active)
	adminGroup.Post("/badges/:id/award", func(c *fiber.Ctx) error {
		badgeID := c.Params("id")
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.UserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
		}

		grant, err := badges.Award(req.UserID, badgeID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrAlreadyGranted):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "badge already granted"})
			case errors.Is(err, services.ErrBadgeNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "badge not found"})
			case errors.Is(err, services.ErrAccountNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "award failed", "cause": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(grant)
	})

	// Manual XP/currency grant
	adminGroup.Post("/ledger/credit", func(c *fiber.Ctx) error {
		var req struct {
			UserID  string `json:"user_id"`
			XP      int64  `json:"xp"`
			Balance int64  `json:"balance"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		res, err := ledger.Credit(req.UserID, req.XP, req.Balance)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrInvalidAmount):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amounts must be positive"})
			case errors.Is(err, services.ErrAccountNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "credit failed", "cause": err.Error()})
		}
		return c.JSON(res)
	})

	// Manual currency debit; insufficient funds surfaces as a declined
	// transaction, not a server fault.
	adminGroup.Post("/ledger/debit", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id"`
			Amount int64  `json:"amount"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		res, err := ledger.Debit(req.UserID, req.Amount)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrInvalidAmount):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be positive"})
			case errors.Is(err, services.ErrInsufficientFunds):
				return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "insufficient funds"})
			case errors.Is(err, services.ErrAccountNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "debit failed", "cause": err.Error()})
		}
		return c.JSON(res)
	})

	// External cron-style triggers into the periodic paths
	adminGroup.Post("/jobs/periodic-check", func(c *fiber.Ctx) error {
		go badges.CheckPeriodicBadges()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "periodic badge check started"})
	})

	adminGroup.Post("/jobs/daily-rollover", func(c *fiber.Ctx) error {
		go progress.InitializeDailyQuestsForAllUsers(time.Now())
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "daily quest rollover started"})
	})
}
