package result

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/circle/internal/domain"
)

// Tiered — общий backend с локальным кэшем окончательных результатов.
//
// Все записи идут в shared, который видят все процессы. В local
// попадают только SUCCESS и FAILURE: они для вызова больше не меняются.
// Каталог local у каждого процесса свой.
type Tiered struct {
	local  *Cache
	shared Backend
	logger *slog.Logger
}

// NewTiered создаёт backend поверх shared с кэшем local.
func NewTiered(local *Cache, shared Backend, logger *slog.Logger) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered{local: local, shared: shared, logger: logger}
}

func (t *Tiered) Store(ctx context.Context, res *domain.TaskResult) error {
	if err := t.shared.Store(ctx, res); err != nil {
		return err
	}
	if res.State.Ready() {
		t.remember(ctx, res)
	}
	return nil
}

func (t *Tiered) Get(ctx context.Context, id string) (*domain.TaskResult, error) {
	res, err := t.local.Get(ctx, id)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, ErrNotFound) {
		t.logger.Warn("result cache read failed", "task_id", id, "error", err)
	}

	res, err = t.shared.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.State.Ready() {
		t.remember(ctx, res)
	}
	return res, nil
}

// Purge чистит оба уровня и возвращает число удалённых из shared.
func (t *Tiered) Purge(ctx context.Context, before time.Time) (int64, error) {
	n, err := t.shared.Purge(ctx, before)
	if err != nil {
		return 0, err
	}
	if _, err := t.local.Purge(ctx, before); err != nil {
		t.logger.Warn("result cache purge failed", "error", err)
	}
	return n, nil
}

func (t *Tiered) Close() error {
	return errors.Join(t.local.Close(), t.shared.Close())
}

func (t *Tiered) remember(ctx context.Context, res *domain.TaskResult) {
	if err := t.local.Store(ctx, res); err != nil {
		t.logger.Warn("result cache write failed", "task_id", res.ID, "error", err)
	}
}
