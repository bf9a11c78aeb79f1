// CIRCLE API — принимает запросы на развёртывание и уничтожение VM
// и отдаёт состояние развёртываний и вызовов задач.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/circle/internal/api"
	"github.com/shaiso/circle/internal/app"
	"github.com/shaiso/circle/internal/config"
	"github.com/shaiso/circle/internal/repo"
	"github.com/shaiso/circle/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("circle-api")
	logger.Info("starting circle-api")

	cfg, err := config.Load(os.Getenv("CIRCLE_CONFIG"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	inf, err := app.Open(ctx, "circle-api", cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer inf.Close()

	handler := api.NewHandler(api.Config{
		Deployments: repo.NewDeploymentRepo(inf.Pool),
		Dispatcher:  inf.Dispatch,
		Results:     inf.Results,
		ManagerHost: cfg.Hostname,
		Logger:      logger,
	})

	// Health, metrics и API на одном порту
	mux := telemetry.OpsMux()
	handler.RegisterRoutes(mux)

	if err := app.Serve(ctx, cfg.Ports.API, mux, logger); err != nil {
		logger.Error("server error", "error", err)
	}

	logger.Info("circle-api stopped")
}
