package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"concierge-agent/handler"
	"concierge-agent/internal/bootstrap"
	"concierge-agent/internal/config"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel, true)
	slog.SetDefault(logger)

	// ---- Pipeline ----
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build assistant", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	// ---- Handler ----
	h, err := handler.NewHandler(app.Ask)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
