package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/circle/internal/mq"
	"github.com/shaiso/circle/internal/result"
	"github.com/shaiso/circle/internal/tasks"
)

const defaultPrefetch = 1

// Worker потребляет вызовы задач из очередей одного хоста и tier.
//
// Worker:
//   - Подписывается на очереди (host, tier, subsystems) из топологии
//   - Пропускает вызовы, для которых в result backend уже SUCCESS
//   - Выполняет обработчик с повторами и backoff
//   - Пишет STARTED / PROGRESS / RETRY / SUCCESS / FAILURE в result backend
//
// Несколько экземпляров могут потреблять одни и те же очереди.
type Worker struct {
	conn       *mq.Connection
	topology   *mq.Topology
	host       string
	tier       tasks.Tier
	subsystems []tasks.Subsystem

	registry *Registry
	backend  result.Backend
	retry    *RetryPolicy
	timeout  time.Duration
	prefetch int

	consumers []*mq.Consumer

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Conn — соединение с брокером своего tier.
	Conn *mq.Connection

	// Topology — топология брокеров.
	Topology *mq.Topology

	// Host — имя хоста в именах очередей.
	Host string

	// Tier — fast или slow.
	Tier tasks.Tier

	// Subsystems — подсистемы, очереди которых слушать.
	// Пусто — все подсистемы, для которых есть обработчики.
	Subsystems []tasks.Subsystem

	// Registry — обработчики задач.
	Registry *Registry

	// Backend — result backend (nil — result.None).
	Backend result.Backend

	// Retry — задержки между повторами (nil — DefaultRetryPolicy).
	Retry *RetryPolicy

	// Timeout — таймаут одной попытки. 0 — без таймаута.
	Timeout time.Duration

	// Prefetch — неподтверждённых сообщений на очередь (default: 1).
	Prefetch int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == nil {
		backend = result.None{}
	}

	retry := cfg.Retry
	if retry == nil {
		retry = DefaultRetryPolicy()
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(tasks.Default())
	}

	subsystems := cfg.Subsystems
	if len(subsystems) == 0 {
		subsystems = registry.Subsystems()
	}

	return &Worker{
		conn:       cfg.Conn,
		topology:   cfg.Topology,
		host:       cfg.Host,
		tier:       cfg.Tier,
		subsystems: subsystems,
		registry:   registry,
		backend:    backend,
		retry:      retry,
		timeout:    cfg.Timeout,
		prefetch:   prefetch,
		logger:     logger.With("component", "worker", "tier", string(cfg.Tier)),
	}
}

// Start подписывается на очереди и возвращается сразу.
func (w *Worker) Start(ctx context.Context) error {
	if w.IsStopped() {
		return ErrWorkerStopped
	}
	if w.conn == nil || w.topology == nil {
		return errors.New("worker: connection and topology are required")
	}

	queues := w.topology.QueuesFor(w.host, w.tier, w.subsystems...)
	if len(queues) == 0 {
		return fmt.Errorf("worker: no %s queues for host %s", w.tier, w.host)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	for _, q := range queues {
		consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    q.Name,
			Handler:  w.handleDelivery,
			Prefetch: w.prefetch,
		})
		w.consumers = append(w.consumers, consumer)

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("consumer error", "queue", q.Name, "error", err)
			}
		}()
	}

	w.logger.Info("worker started",
		"host", w.host,
		"queues", len(queues),
		"handlers", len(w.registry.Names()),
	)
	return nil
}

// Stop останавливает потребление и ждёт завершения текущих вызовов.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	for _, c := range w.consumers {
		c.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}
