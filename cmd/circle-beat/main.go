// CIRCLE Beat — ставит периодические задачи в очередь.
//
// Реплик может быть несколько: тикает только держатель
// advisory lock в PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/circle/internal/app"
	"github.com/shaiso/circle/internal/beat"
	"github.com/shaiso/circle/internal/config"
	"github.com/shaiso/circle/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("circle-beat")
	logger.Info("starting circle-beat")

	cfg, err := config.Load(os.Getenv("CIRCLE_CONFIG"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	inf, err := app.Open(ctx, "circle-beat", cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer inf.Close()

	b, err := beat.New(beat.Config{
		Sender:   inf.Dispatch,
		Catalog:  inf.Catalog,
		Entries:  cfg.Beat.Entries,
		Host:     cfg.Hostname,
		Interval: cfg.Beat.Interval,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("invalid beat schedule", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := app.ServeOps(ctx, cfg.Ports.Ops, logger); err != nil {
			logger.Error("ops server error", "error", err)
			cancel()
		}
	}()

	leader := beat.NewPGLeader(inf.Pool, cfg.Beat.LockKey)
	if err := b.Run(ctx, leader); err != nil {
		logger.Error("beat error", "error", err)
	}

	logger.Info("circle-beat stopped")
}
