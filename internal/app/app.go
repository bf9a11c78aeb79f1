// Package app собирает зависимости бинарников CIRCLE: БД, оба брокера,
// топологию, result backend и клиент dispatch.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/circle/internal/config"
	"github.com/shaiso/circle/internal/dispatch"
	"github.com/shaiso/circle/internal/mq"
	"github.com/shaiso/circle/internal/repo"
	"github.com/shaiso/circle/internal/result"
	"github.com/shaiso/circle/internal/tasks"
	"github.com/shaiso/circle/internal/telemetry"
)

// Infra — общие зависимости процесса.
type Infra struct {
	Config   *config.Config
	Catalog  *tasks.Catalog
	Topology *mq.Topology
	Pool     *pgxpool.Pool
	Fast     *mq.Connection
	Slow     *mq.Connection
	Results  result.Backend
	Dispatch *dispatch.Client

	logger *slog.Logger
}

// Open подключается к БД и брокерам, объявляет топологию и создаёт
// клиент dispatch. При ошибке всё уже открытое закрывается.
// service выбирает подкаталог кэша результатов.
func Open(ctx context.Context, service string, cfg *config.Config, logger *slog.Logger) (inf *Infra, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	inf = &Infra{
		Config:  cfg,
		Catalog: tasks.Default(),
		logger:  logger,
	}
	defer func() {
		if err != nil {
			inf.Close()
			inf = nil
		}
	}()

	inf.Topology, err = mq.NewTopology(inf.Catalog, cfg.TopologyConfig())
	if err != nil {
		return nil, fmt.Errorf("build topology: %w", err)
	}

	inf.Pool, err = repo.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := repo.EnsureSchema(ctx, inf.Pool); err != nil {
		return nil, err
	}
	logger.Info("database connected")

	inf.Fast, err = mq.NewConnection("fast", cfg.Broker.FastURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect fast broker: %w", err)
	}
	inf.Slow, err = mq.NewConnection("slow", cfg.Broker.SlowURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect slow broker: %w", err)
	}

	if err := inf.Topology.Declare(ctx, tasks.TierFast, inf.Fast); err != nil {
		return nil, err
	}
	if err := inf.Topology.Declare(ctx, tasks.TierSlow, inf.Slow); err != nil {
		return nil, err
	}
	logger.Info("brokers connected", "topology", inf.Topology.Describe())

	inf.Results, err = result.Open(cfg.ResultConfig(service), inf.Pool, logger)
	if err != nil {
		return nil, fmt.Errorf("open result backend: %w", err)
	}

	inf.Dispatch, err = dispatch.New(dispatch.Config{
		Catalog:   inf.Catalog,
		Topology:  inf.Topology,
		Fast:      mq.NewPublisher(inf.Fast, logger),
		Slow:      mq.NewPublisher(inf.Slow, logger),
		Backend:   inf.Results,
		RateLimit: cfg.Dispatch.RateLimit,
		Burst:     cfg.Dispatch.Burst,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return inf, nil
}

// Close закрывает всё, что было открыто.
func (i *Infra) Close() {
	if i.Results != nil {
		if err := i.Results.Close(); err != nil {
			i.logger.Warn("failed to close result backend", "error", err)
		}
	}
	for _, conn := range []*mq.Connection{i.Slow, i.Fast} {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil {
			i.logger.Warn("failed to close broker connection", "broker", conn.Name(), "error", err)
		}
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
}

// Serve обслуживает handler на port до отмены ctx.
func Serve(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ServeOps обслуживает /healthz и /metrics.
func ServeOps(ctx context.Context, port int, logger *slog.Logger) error {
	return Serve(ctx, port, telemetry.OpsMux(), logger)
}
