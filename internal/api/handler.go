package api

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shaiso/circle/internal/dispatch"
	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/mq"
	"github.com/shaiso/circle/internal/tasks"
)

// DeploymentStore — хранилище развёртываний. Реализуется repo.DeploymentRepo.
type DeploymentStore interface {
	Create(ctx context.Context, d *domain.Deployment) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Deployment, error)
	Update(ctx context.Context, d *domain.Deployment) error
	SetTaskID(ctx context.Context, id uuid.UUID, taskID string) error
}

// Dispatcher ставит задачи в очередь. Реализуется dispatch.Client.
type Dispatcher interface {
	SendWith(ctx context.Context, call dispatch.Call) (*dispatch.AsyncResult, error)
	Catalog() *tasks.Catalog
	Topology() *mq.Topology
}

// ResultReader читает состояния вызовов. Реализуется result.Backend.
type ResultReader interface {
	Get(ctx context.Context, id string) (*domain.TaskResult, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	deployments DeploymentStore
	dispatcher  Dispatcher
	results     ResultReader
	managerHost string
	validate    *validator.Validate
	logger      *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Deployments DeploymentStore
	Dispatcher  Dispatcher
	Results     ResultReader

	// ManagerHost — хост, очередь manager которого принимает deploy/destroy.
	ManagerHost string

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	host := cfg.ManagerHost
	if host == "" {
		host = "localhost"
	}
	return &Handler{
		deployments: cfg.Deployments,
		dispatcher:  cfg.Dispatcher,
		results:     cfg.Results,
		managerHost: host,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("component", "api"),
	}
}
