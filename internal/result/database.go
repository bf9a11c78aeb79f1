package result

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/repo"
)

// ResultStore — часть repo.ResultRepo, нужная backend'у.
type ResultStore interface {
	Upsert(ctx context.Context, res *domain.TaskResult) error
	Get(ctx context.Context, id string) (*domain.TaskResult, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Database — result backend в PostgreSQL.
type Database struct {
	store ResultStore
}

// NewDatabase создаёт backend поверх store.
func NewDatabase(store ResultStore) *Database {
	return &Database{store: store}
}

func (d *Database) Store(ctx context.Context, res *domain.TaskResult) error {
	return d.store.Upsert(ctx, res)
}

func (d *Database) Get(ctx context.Context, id string) (*domain.TaskResult, error) {
	res, err := d.store.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	return res, err
}

func (d *Database) Purge(ctx context.Context, before time.Time) (int64, error) {
	return d.store.DeleteOlderThan(ctx, before)
}

// Close ничего не делает: пулом владеет вызывающий.
func (d *Database) Close() error { return nil }
