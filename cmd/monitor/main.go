package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/chain"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/config"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/db"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/events"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
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

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	userRepo := repositories.NewUserRepo(pool)
	groupRepo := repositories.NewGroupRepo(pool)
	dealRepo := repositories.NewDealRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)

	groupPool := services.NewGroupPool(groupRepo, auditRepo, cfg.GroupPoolSize, cfg.GroupExpiry, cfg.GroupCooldown, log)
	engine := services.NewDealEngine(dealRepo, groupPool, userRepo, auditRepo, publisher, nil, log)

	reader := chain.NewExplorerClient(cfg.EtherscanAPIKey, cfg.BSCScanAPIKey, log)
	monitor := services.NewFundingMonitor(dealRepo, reader, engine, rdb, cfg.MonitorPollInterval, cfg.MonitorTxLookback, log)

	// Webhook listener: explorers push deposit notifications here to
	// trigger an immediate recheck instead of waiting for the next poll.
	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "watched": monitor.WatchedCount()})
	})
	app.Post("/webhook/:network/:address", func(c *fiber.Ctx) error {
		network := c.Params("network")
		if !models.IsValidNetwork(network) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown network"})
		}
		monitor.RecheckAddress(c.Context(), network, c.Params("address"))
		return c.JSON(fiber.Map{"ok": true})
	})

	go func() {
		addr := fmt.Sprintf(":%s", cfg.MonitorWebhookPort)
		log.Info("starting webhook listener", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			log.Error("webhook listener error", zap.Error(err))
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	monitor.Run(ctx)
}
