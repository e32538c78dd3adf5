package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/inrcare/backend/internal/app"
	"github.com/inrcare/backend/internal/config"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
)

func main() {
	flag.Parse()

	if err := config.LoadEnvFiles(); err != nil {
		os.Stderr.WriteString("env file error: " + err.Error() + "\n")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		// No logger yet; exit immediately.
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("app init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		logger.Fatal("app run failed", zap.Error(err))
	}
}
