package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/repo"
	"github.com/shaiso/circle/internal/tasks"
	"github.com/shaiso/circle/internal/telemetry"
	"github.com/shaiso/circle/internal/worker"
)

// Default configuration values.
const (
	defaultContextDatastore = "/datastore"
	defaultStuckTimeout     = 30 * time.Minute
	defaultResultRetention  = 7 * 24 * time.Hour
	defaultGCBatch          = 100
)

// Caller вызывает задачу на узле и ждёт результата. Реализуется dispatch.Client.
type Caller interface {
	Call(ctx context.Context, name, host string, args ...any) (any, error)
}

// DeploymentStore — хранилище развёртываний. Реализуется repo.DeploymentRepo.
type DeploymentStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Deployment, error)
	Update(ctx context.Context, d *domain.Deployment) error
	ListStuck(ctx context.Context, before time.Time, limit int) ([]domain.Deployment, error)
	AllocatedByNode(ctx context.Context) (map[string]domain.Usage, error)
}

// ResultPurger удаляет старые результаты задач. Реализуется result.Backend.
type ResultPurger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Manager — обработчики задач manager.*.
//
// Manager продвигает развёртывание по стадиям
// NOSTATE → PENDING → PREPARE → DEPLOY VM → DEPLOY NET → BOOT → RUNNING,
// вызывая драйверы на выбранном узле. Стадия сохраняется до удалённых
// вызовов, выполненные подшаги — сразу после, поэтому повторная доставка
// manager.deploy продолжает с места остановки.
type Manager struct {
	caller  Caller
	store   DeploymentStore
	results ResultPurger
	placer  Placer
	nodes   []domain.Node

	contextDatastore string
	stuckTimeout     time.Duration
	resultRetention  time.Duration
	gcBatch          int

	// active — instance, которые сейчас обрабатываются в этом процессе.
	active   map[uuid.UUID]bool
	activeMu sync.Mutex

	logger *slog.Logger
}

// Config — конфигурация Manager.
type Config struct {
	// Caller — клиент вызова драйверов.
	Caller Caller

	// Store — хранилище развёртываний.
	Store DeploymentStore

	// Results — result backend для GC (nil — результаты не чистятся).
	Results ResultPurger

	// Placer — политика размещения (default: LeastLoaded).
	Placer Placer

	// Nodes — пул гипервизоров.
	Nodes []domain.Node

	// ContextDatastore — datastore для контекстного диска (default: /datastore).
	ContextDatastore string

	// StuckTimeout — сколько развёртывание может стоять в одной стадии (default: 30m).
	StuckTimeout time.Duration

	// ResultRetention — сколько хранить результаты задач (default: 7d).
	ResultRetention time.Duration

	// GCBatch — сколько зависших развёртываний обрабатывать за проход (default: 100).
	GCBatch int

	// Logger
	Logger *slog.Logger
}

// New создаёт Manager.
func New(cfg Config) *Manager {
	placer := cfg.Placer
	if placer == nil {
		placer = LeastLoaded{}
	}

	datastore := cfg.ContextDatastore
	if datastore == "" {
		datastore = defaultContextDatastore
	}

	stuckTimeout := cfg.StuckTimeout
	if stuckTimeout <= 0 {
		stuckTimeout = defaultStuckTimeout
	}

	retention := cfg.ResultRetention
	if retention <= 0 {
		retention = defaultResultRetention
	}

	batch := cfg.GCBatch
	if batch <= 0 {
		batch = defaultGCBatch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		caller:           cfg.Caller,
		store:            cfg.Store,
		results:          cfg.Results,
		placer:           placer,
		nodes:            cfg.Nodes,
		contextDatastore: datastore,
		stuckTimeout:     stuckTimeout,
		resultRetention:  retention,
		gcBatch:          batch,
		active:           make(map[uuid.UUID]bool),
		logger:           logger.With("component", "manager"),
	}
}

// Register добавляет обработчики manager.* в реестр воркера.
func (m *Manager) Register(r *worker.Registry) error {
	handlers := map[string]worker.Handler{
		tasks.ManagerDeploy:           m.Deploy,
		tasks.ManagerDestroy:          m.Destroy,
		tasks.ManagerGarbageCollector: m.GarbageCollector,
	}
	for name, h := range handlers {
		if err := r.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

// load разбирает instance_id и загружает развёртывание.
func (m *Manager) load(ctx context.Context, args []any) (*domain.Deployment, error) {
	raw, err := worker.ArgString(args, 0)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, worker.Permanent(fmt.Errorf("%w: %q", ErrInvalidInstanceID, raw))
	}

	d, err := m.store.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, worker.Permanent(fmt.Errorf("%w: %s", ErrDeploymentNotFound, id))
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment %s: %w", id, err)
	}
	return d, nil
}

// acquire отмечает instance как обрабатываемый.
// Возвращает false, если он уже в работе.
func (m *Manager) acquire(id uuid.UUID) bool {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()

	if m.active[id] {
		return false
	}
	m.active[id] = true
	return true
}

func (m *Manager) release(id uuid.UUID) {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	delete(m.active, id)
}

// advance переводит развёртывание в стадию и сохраняет его.
func (m *Manager) advance(ctx context.Context, d *domain.Deployment, state domain.DeployState) error {
	d.Advance(state)
	if err := m.save(ctx, d); err != nil {
		return err
	}
	telemetry.DeployTransitions.WithLabelValues(string(state)).Inc()
	return nil
}

func (m *Manager) save(ctx context.Context, d *domain.Deployment) error {
	d.UpdatedAt = time.Now()
	if err := m.store.Update(ctx, d); err != nil {
		return fmt.Errorf("save deployment %s: %w", d.InstanceID, err)
	}
	return nil
}

func (m *Manager) node(name string) (domain.Node, bool) {
	for _, n := range m.nodes {
		if n.Name == name {
			return n, true
		}
	}
	return domain.Node{}, false
}
