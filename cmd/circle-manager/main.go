// CIRCLE Manager — выполняет задачи manager.* на управляющем хосте.
//
// Manager:
//   - Слушает очереди <hostname>.man (fast) и <hostname>.man.slow (slow)
//   - Продвигает развёртывания VM по стадиям, вызывая драйверы на узлах
//   - Уничтожает VM и чистит зависшие развёртывания (garbage collector)
//
// Несколько экземпляров могут слушать одни и те же очереди.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/circle/internal/app"
	"github.com/shaiso/circle/internal/config"
	"github.com/shaiso/circle/internal/manager"
	"github.com/shaiso/circle/internal/mq"
	"github.com/shaiso/circle/internal/repo"
	"github.com/shaiso/circle/internal/tasks"
	"github.com/shaiso/circle/internal/telemetry"
	"github.com/shaiso/circle/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger("circle-manager")
	logger.Info("starting circle-manager")

	cfg, err := config.Load(os.Getenv("CIRCLE_CONFIG"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	inf, err := app.Open(ctx, "circle-manager", cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer inf.Close()

	mgr := manager.New(manager.Config{
		Caller:           inf.Dispatch,
		Store:            repo.NewDeploymentRepo(inf.Pool),
		Results:          inf.Results,
		Nodes:            cfg.Nodes,
		ContextDatastore: cfg.Manager.ContextDatastore,
		StuckTimeout:     cfg.Manager.StuckTimeout,
		ResultRetention:  cfg.Manager.ResultRetention,
		GCBatch:          cfg.Manager.GCBatch,
		Logger:           logger,
	})

	registry := worker.NewRegistry(inf.Catalog)
	if err := mgr.Register(registry); err != nil {
		logger.Error("failed to register handlers", "error", err)
		os.Exit(1)
	}

	// Один worker на tier: у каждого брокера свои очереди
	conns := map[tasks.Tier]*mq.Connection{
		tasks.TierFast: inf.Fast,
		tasks.TierSlow: inf.Slow,
	}
	var workers []*worker.Worker
	for _, tier := range []tasks.Tier{tasks.TierFast, tasks.TierSlow} {
		w := worker.New(worker.Config{
			Conn:       conns[tier],
			Topology:   inf.Topology,
			Host:       cfg.Hostname,
			Tier:       tier,
			Subsystems: []tasks.Subsystem{tasks.SubsystemManager},
			Registry:   registry,
			Backend:    inf.Results,
			Retry:      cfg.RetryPolicy(),
			Timeout:    cfg.Worker.Timeout,
			Prefetch:   cfg.Worker.Prefetch,
			Logger:     logger,
		})
		if err := w.Start(ctx); err != nil {
			logger.Error("failed to start worker", "tier", tier, "error", err)
			os.Exit(1)
		}
		workers = append(workers, w)
	}

	go func() {
		if err := app.ServeOps(ctx, cfg.Ports.Ops, logger); err != nil {
			logger.Error("ops server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	for _, w := range workers {
		w.Stop()
	}
	logger.Info("circle-manager stopped")
}
