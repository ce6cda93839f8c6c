package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"polystirolhub-backend/handlers"
	"polystirolhub-backend/middleware"
	"polystirolhub-backend/models"
	"polystirolhub-backend/services"
	"polystirolhub-backend/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // 1MB, JSON only
	})

	// GLOBAL: only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.ExternalLink{},
		&models.UserCounter{},
		&models.Badge{},
		&models.UserBadge{},
		&models.UserBadgeProgress{},
		&models.Quest{},
		&models.UserQuest{},
		&models.Notification{},
		&models.Activity{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	accountService := services.NewAccountService(db)
	counterService := services.NewCounterService(db)
	registry := services.NewConditionRegistry(counterService)
	sideEffects := services.NewSideEffectService(db)
	ledgerService := services.NewLedgerService(db)
	ledgerService.SideEffects = sideEffects
	badgeService := services.NewBadgeService(db, ledgerService, registry, sideEffects)
	if windowStr := os.Getenv("BADGE_EXTEND_WINDOW"); windowStr != "" {
		if window, err := time.ParseDuration(windowStr); err == nil && window > 0 {
			badgeService.ExtendWindow = window
		} else {
			log.Printf("Ignoring invalid BADGE_EXTEND_WINDOW %q", windowStr)
		}
	}
	progressService := services.NewProgressService(db, counterService, registry, ledgerService, badgeService, sideEffects)
	definitionService := services.NewDefinitionService(db, registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background resync from the game-server statistics service
	if os.Getenv("STATS_SERVICE_URL") != "" {
		statsClient := workers.NewStatsSyncClient(accountService, counterService, progressService)
		go workers.PollStatistics(ctx, statsClient, 60*time.Second)
		log.Println("Statistics sync worker running (every 60s)")
	} else {
		log.Println("STATS_SERVICE_URL not set — statistics sync worker disabled")
	}

	sched, err := services.StartScheduler(badgeService, progressService)
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	handlers.SetupEventRoutes(app, accountService, progressService)
	handlers.SetupProgressionRoutes(app, accountService, ledgerService, badgeService, progressService, sideEffects)
	handlers.SetupAdminRoutes(app, definitionService, ledgerService, badgeService, progressService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("Server running on http://localhost:5300")
	log.Println("GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
