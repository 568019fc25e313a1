package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/config"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/db"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/repositories"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/services"
)

// The worker owns the group reclamation loop: expired occupations move
// to cooldown and finished cooldowns return to the pool.
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

	groupRepo := repositories.NewGroupRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	groupPool := services.NewGroupPool(groupRepo, auditRepo, cfg.GroupPoolSize, cfg.GroupExpiry, cfg.GroupCooldown, log)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	log.Info("reclamation worker started", zap.Duration("interval", cfg.GroupReclaimInterval))

	ticker := time.NewTicker(cfg.GroupReclaimInterval)
	defer ticker.Stop()

	runSweep(ctx, groupPool, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("reclamation worker stopped")
			return
		case <-ticker.C:
			runSweep(ctx, groupPool, log)
		}
	}
}

func runSweep(ctx context.Context, pool *services.GroupPool, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("reclaim sweep panic recovered", zap.Any("panic", r))
		}
	}()
	if _, err := pool.ReclaimExpired(ctx); err != nil {
		log.Error("reclaim sweep failed", zap.Error(err))
	}
}
