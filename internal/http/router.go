package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/config"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/http/handlers"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/middleware"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	dealHandler *handlers.DealHandler,
	groupHandler *handlers.GroupHandler,
	auditHandler *handlers.AuditHandler,
	userHandler *handlers.UserHandler,
	statsHandler *handlers.StatsHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/admin", authHandler.AdminLogin)

	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Everything past this point requires a token.
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Deals
	protected.Post("/deals", dealHandler.CreateDeal)
	protected.Get("/deals", dealHandler.ListDeals)
	protected.Get("/deals/:id", dealHandler.GetDeal)
	protected.Get("/deals/:id/escrow", dealHandler.GetEscrowInfo)
	protected.Post("/deals/:id/addresses", dealHandler.SetAddress)
	protected.Post("/deals/:id/escrow", dealHandler.GenerateEscrow)
	protected.Post("/deals/:id/complete", dealHandler.CompleteDeal)
	protected.Post("/deals/:id/cancel", dealHandler.CancelDeal)
	protected.Post("/deals/:id/dispute", dealHandler.DisputeDeal)

	// Moderation
	moderation := protected.Group("", middleware.ModeratorMiddleware(cfg))
	moderation.Post("/deals/:id/freeze", dealHandler.FreezeDeal)
	moderation.Get("/audit", auditHandler.Query)
	moderation.Get("/users", userHandler.ListUsers)
	moderation.Get("/users/:id", userHandler.GetUser)
	moderation.Post("/users/:id/ban", userHandler.SetBanned)

	// Groups and stats
	protected.Get("/groups", groupHandler.ListGroups)
	protected.Get("/stats", statsHandler.GetStats)

	// Admin-only overrides
	admin := protected.Group("", middleware.AdminMiddleware(cfg))
	admin.Post("/groups/:id/reset", groupHandler.ResetGroup)
	admin.Post("/groups/reclaim", groupHandler.Reclaim)
	admin.Post("/users/:id/moderator", userHandler.SetModerator)

	// WebSocket event stream
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
