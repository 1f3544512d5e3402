package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"insurance-bot/internal/app"
	"insurance-bot/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	log := app.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build app", "err", err)
		os.Exit(1)
	}

	log.Info("poller.started", "workers", cfg.Session.PollWorkers)
	if err := a.Telegram.Poll(ctx, a.Service, cfg.Session.PollWorkers); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("poller.stopped", "err", err)
		os.Exit(1)
	}
	log.Info("poller.stopped")
}
