// Package main is the entry point for the chatbridge webhook server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tobyrush/chatbridge/internal/config"
)

func main() {
	// Load .env if present (for development).
	_ = godotenv.Load()

	configPath := flag.String("config", defaultConfigPath(), "path to the configuration file")
	flag.Parse()

	logLevel := slog.LevelInfo
	if os.Getenv("CHATBRIDGE_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting chatbridge", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		"port", cfg.Port,
		"services", len(cfg.Services),
		"stores", len(cfg.Stores),
		"plugins", len(cfg.Plugins),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner, err := cfg.Build(ctx, logger)
	if err != nil {
		logger.Error("failed to wire services", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := runner.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("chatbridge stopped")
}

func defaultConfigPath() string {
	if path := os.Getenv("CHATBRIDGE_CONFIG"); path != "" {
		return path
	}
	return "chatbridge.yaml"
}
