package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/config"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/db"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/events"
	apphttp "github.com/Problemsolver0070/rahu-escrow-bot/internal/http"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/http/handlers"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/repositories"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/services"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	groupRepo := repositories.NewGroupRepo(pool)
	dealRepo := repositories.NewDealRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	groupPool := services.NewGroupPool(groupRepo, auditRepo, cfg.GroupPoolSize, cfg.GroupExpiry, cfg.GroupCooldown, log)
	if err := groupPool.Initialize(ctx); err != nil {
		log.Fatal("failed to initialize group pool", zap.Error(err))
	}
	engine := services.NewDealEngine(dealRepo, groupPool, userRepo, auditRepo, publisher, nil, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(cfg, userRepo, log)
	dealHandler := handlers.NewDealHandler(engine, dealRepo, log)
	groupHandler := handlers.NewGroupHandler(groupPool, log)
	auditHandler := handlers.NewAuditHandler(auditRepo, log)
	userHandler := handlers.NewUserHandler(userRepo, log)
	statsHandler := handlers.NewStatsHandler(groupPool, dealRepo, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)
	wsHub.Start(ctx)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, dealHandler, groupHandler, auditHandler, userHandler, statsHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
