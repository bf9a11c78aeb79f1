package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/mq"
	"github.com/shaiso/circle/internal/result"
	"github.com/shaiso/circle/internal/tasks"
	"github.com/shaiso/circle/internal/telemetry"
)

// Publisher публикует вызов по готовому маршруту. Реализуется mq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, route mq.Route, sig *tasks.Signature) error
}

// Config — зависимости клиента.
type Config struct {
	// Catalog — каталог задач.
	Catalog *tasks.Catalog

	// Topology — статическая топология брокеров.
	Topology *mq.Topology

	// Fast — publisher fast брокера.
	Fast Publisher

	// Slow — publisher slow брокера. Nil — slow задачи ставить нельзя.
	Slow Publisher

	// Backend — result backend. Nil — result.None.
	Backend result.Backend

	// RateLimit — публикаций в секунду. 0 — без ограничения.
	RateLimit float64

	// Burst — размер всплеска для RateLimit (default: 10).
	Burst int

	// PollInterval — период опроса backend в Call (default: 500ms).
	PollInterval time.Duration

	// Logger — логгер.
	Logger *slog.Logger
}

// Call — вызов задачи с дополнительными параметрами.
type Call struct {
	// ID — заранее выбранный ID вызова (пусто — новый UUID).
	ID string

	// Task — имя задачи.
	Task string

	// Host — хост, очередь которого получит вызов.
	Host string

	// Args — позиционные аргументы.
	Args []any

	// Kwargs — именованные аргументы.
	Kwargs map[string]any

	// ETA — не выполнять раньше.
	ETA *time.Time

	// Expires — не выполнять позже.
	Expires *time.Time
}

// Client — клиент постановки задач.
type Client struct {
	catalog  *tasks.Catalog
	topology *mq.Topology
	fast     Publisher
	slow     Publisher
	backend  result.Backend
	limiter  *rate.Limiter
	poll     time.Duration
	logger   *slog.Logger
}

// New создаёт клиент.
func New(cfg Config) (*Client, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("dispatch: catalog is required")
	}
	if cfg.Topology == nil {
		return nil, errors.New("dispatch: topology is required")
	}
	if cfg.Fast == nil {
		return nil, errors.New("dispatch: fast publisher is required")
	}

	backend := cfg.Backend
	if backend == nil {
		backend = result.None{}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		catalog:  cfg.Catalog,
		topology: cfg.Topology,
		fast:     cfg.Fast,
		slow:     cfg.Slow,
		backend:  backend,
		limiter:  rate.NewLimiter(limit, burst),
		poll:     poll,
		logger:   logger.With("component", "dispatch"),
	}, nil
}

// Catalog возвращает каталог задач клиента.
func (c *Client) Catalog() *tasks.Catalog {
	return c.catalog
}

// Topology возвращает топологию клиента.
func (c *Client) Topology() *mq.Topology {
	return c.topology
}

// Send ставит задачу name в очередь хоста host.
func (c *Client) Send(ctx context.Context, name, host string, args ...any) (*AsyncResult, error) {
	return c.SendWith(ctx, Call{Task: name, Host: host, Args: args})
}

// SendWith ставит задачу с kwargs, ETA и expires.
func (c *Client) SendWith(ctx context.Context, call Call) (*AsyncResult, error) {
	def, err := c.catalog.Lookup(call.Task)
	if err != nil {
		return nil, err
	}
	if err := def.Check(call.Args); err != nil {
		return nil, err
	}

	route, err := c.topology.Route(def, call.Host)
	if err != nil {
		return nil, fmt.Errorf("route %s to %s: %w", call.Task, call.Host, err)
	}

	pub := c.publisher(def.Tier)
	if pub == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBroker, def.Tier)
	}

	sig := tasks.NewSignature(call.Task, call.Args...)
	if call.ID != "" {
		sig.ID = call.ID
	}
	if call.Kwargs != nil {
		sig.Kwargs = call.Kwargs
	}
	sig.ETA = call.ETA
	sig.Expires = call.Expires

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	// PENDING пишется до публикации: worker может успеть записать STARTED раньше,
	// чем вернётся Publish
	pending := &domain.TaskResult{
		ID:        sig.ID,
		Task:      sig.Task,
		State:     domain.TaskStatePending,
		UpdatedAt: time.Now(),
	}
	if err := c.backend.Store(ctx, pending); err != nil {
		return nil, fmt.Errorf("store pending %s: %w", sig.ID, err)
	}

	if err := pub.Publish(ctx, route, sig); err != nil {
		return nil, err
	}

	telemetry.TasksPublished.WithLabelValues(sig.Task, string(def.Tier)).Inc()

	c.logger.Info("task sent",
		"task_id", sig.ID,
		"task", sig.Task,
		"queue", route.Queue,
		"tier", string(def.Tier),
	)

	return c.AsyncResult(sig.ID, sig.Task), nil
}

// Call ставит задачу и ждёт результата.
// Без result backend'а дождаться нечего: задача не публикуется.
func (c *Client) Call(ctx context.Context, name, host string, args ...any) (any, error) {
	if _, ok := c.backend.(result.None); ok {
		return nil, result.ErrNoBackend
	}

	ar, err := c.Send(ctx, name, host, args...)
	if err != nil {
		return nil, err
	}

	res, err := ar.Wait(ctx, c.poll)
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}

// AsyncResult возвращает handle для уже поставленного вызова.
func (c *Client) AsyncResult(id, task string) *AsyncResult {
	return &AsyncResult{ID: id, Task: task, backend: c.backend}
}

func (c *Client) publisher(tier tasks.Tier) Publisher {
	if tier == tasks.TierSlow {
		return c.slow
	}
	return c.fast
}
