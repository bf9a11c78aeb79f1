package result

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/repo"
)

// Backend — хранилище состояний вызовов задач.
type Backend interface {
	// Store записывает состояние вызова (последняя запись побеждает).
	Store(ctx context.Context, res *domain.TaskResult) error

	// Get возвращает состояние вызова или ErrNotFound.
	Get(ctx context.Context, id string) (*domain.TaskResult, error)

	// Purge удаляет записи, не обновлявшиеся с before.
	Purge(ctx context.Context, before time.Time) (int64, error)

	// Close освобождает ресурсы backend'а.
	Close() error
}

// Kind — тип backend'а.
type Kind string

const (
	KindNone     Kind = "none"
	KindCache    Kind = "cache"
	KindDatabase Kind = "database"
)

// Config — настройки result backend.
type Config struct {
	// Kind — none, cache или database.
	// cache — database с локальным кэшем окончательных результатов.
	Kind Kind

	// CachePath — каталог BadgerDB (для cache). Один каталог — один процесс.
	CachePath string

	// InMemory — BadgerDB без записи на диск (для тестов).
	InMemory bool

	// TTL — время жизни записи в cache. По умолчанию 24h.
	TTL time.Duration

	// GCInterval — период сборки value log BadgerDB. 0 — отключена.
	GCInterval time.Duration
}

// Open создаёт backend по конфигурации.
// pool нужен для database и cache.
func Open(cfg Config, pool *pgxpool.Pool, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "result", "backend", string(cfg.Kind))

	switch cfg.Kind {
	case KindNone, "":
		return None{}, nil
	case KindCache:
		if pool == nil {
			return nil, fmt.Errorf("cache result backend requires a db pool")
		}
		local, err := OpenCache(cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewTiered(local, NewDatabase(repo.NewResultRepo(pool)), logger), nil
	case KindDatabase:
		if pool == nil {
			return nil, fmt.Errorf("database result backend requires a db pool")
		}
		return NewDatabase(repo.NewResultRepo(pool)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Kind)
	}
}

// None — backend, который ничего не хранит.
type None struct{}

func (None) Store(context.Context, *domain.TaskResult) error { return nil }

func (None) Get(context.Context, string) (*domain.TaskResult, error) { return nil, ErrNoBackend }

func (None) Purge(context.Context, time.Time) (int64, error) { return 0, nil }

func (None) Close() error { return nil }
