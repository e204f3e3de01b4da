package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"firewatch/internal/app"
	"firewatch/internal/config"
	"firewatch/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to start: %v", err)
		appLogger.Sync()
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		appLogger.Error("Shutdown finished with errors: %v", err)
		appLogger.Sync()
		os.Exit(1)
	}
}
