package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"insurance-bot/handler"
	"insurance-bot/internal/app"
	"insurance-bot/internal/config"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	log := app.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)

	// ---- Clients and service ----
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build app", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(a.Service,
		handler.WithSecret(cfg.Credentials.WebhookSecret),
		handler.WithLogger(log),
	)
	if err != nil {
		log.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
