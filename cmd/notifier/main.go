package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/config"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/db"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/events"
)

// The notifier subscribes to deal lifecycle events and forwards them to
// the Telegram bot process, which owns the actual chat messaging.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.BotNotifyURL == "" {
		log.Fatal("BOT_NOTIFY_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)

	log.Info("notifier started", zap.String("sink", cfg.BotNotifyURL))

	_ = subscriber.Subscribe(ctx, events.StreamDeals, func(event events.Event) {
		forwardToBot(cfg.BotNotifyURL, event, log)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notifier")
	cancel()
}

func forwardToBot(baseURL string, event events.Event, log *zap.Logger) {
	body, err := json.Marshal(map[string]any{
		"type":        event.Type,
		"escrow_code": event.EscrowCode,
		"deal_id":     event.DealID,
		"group_id":    event.GroupID,
		"payload":     event.Payload,
	})
	if err != nil {
		return
	}

	url := fmt.Sprintf("%s/internal/notify", strings.TrimRight(baseURL, "/"))
	resp, err := http.Post(url, "application/json", strings.NewReader(string(body)))
	if err != nil {
		log.Warn("failed to forward notification", zap.String("type", event.Type), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("bot notification returned non-200",
			zap.String("type", event.Type),
			zap.Int("status", resp.StatusCode))
	}
}
