package result

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/repo"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()

	c, err := OpenCache(Config{Kind: KindCache, InMemory: true, TTL: time.Hour}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_StoreAndGet(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	res := &domain.TaskResult{
		ID:        "task-1",
		Task:      "manager.deploy",
		State:     domain.TaskStateProgress,
		Meta:      map[string]any{"state": "DEPLOY VM"},
		UpdatedAt: time.Now(),
	}
	require.NoError(t, c.Store(ctx, res))

	got, err := c.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateProgress, got.State)
	assert.Equal(t, "DEPLOY VM", got.Progress())

	// Последняя запись побеждает
	res.State = domain.TaskStateSuccess
	res.Result = "cloud-42"
	require.NoError(t, c.Store(ctx, res))

	got, err = c.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.True(t, got.State.Ready())
	assert.Equal(t, "cloud-42", got.Result)
}

func TestCache_GetMissing(t *testing.T) {
	c := openTestCache(t)

	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache_Purge(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, c.Store(ctx, &domain.TaskResult{ID: "old", State: domain.TaskStateSuccess, UpdatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, c.Store(ctx, &domain.TaskResult{ID: "fresh", State: domain.TaskStateSuccess, UpdatedAt: now}))

	n, err := c.Purge(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = c.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestOpen_Kinds(t *testing.T) {
	b, err := Open(Config{Kind: KindNone}, nil, nil)
	require.NoError(t, err)
	_, err = b.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoBackend)

	_, err = Open(Config{Kind: "amqp"}, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = Open(Config{Kind: KindDatabase}, nil, nil)
	assert.Error(t, err)

	_, err = Open(Config{Kind: KindCache, InMemory: true}, nil, nil)
	assert.Error(t, err)
}

type fakeStore struct {
	results map[string]*domain.TaskResult
}

func (f *fakeStore) Upsert(_ context.Context, res *domain.TaskResult) error {
	f.results[res.ID] = res
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*domain.TaskResult, error) {
	res, ok := f.results[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return res, nil
}

func (f *fakeStore) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for id, res := range f.results {
		if res.UpdatedAt.Before(before) {
			delete(f.results, id)
			n++
		}
	}
	return n, nil
}

func TestDatabase_MapsNotFound(t *testing.T) {
	db := NewDatabase(&fakeStore{results: map[string]*domain.TaskResult{}})
	ctx := context.Background()

	_, err := db.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Store(ctx, &domain.TaskResult{ID: "t", State: domain.TaskStatePending}))
	got, err := db.Get(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatePending, got.State)
}

func TestTiered_SharedIsSourceOfTruth(t *testing.T) {
	shared := NewDatabase(&fakeStore{results: map[string]*domain.TaskResult{}})
	tiered := NewTiered(openTestCache(t), shared, nil)
	ctx := context.Background()

	// Запись другого процесса видна через shared
	require.NoError(t, shared.Store(ctx, &domain.TaskResult{ID: "t", State: domain.TaskStateStarted}))
	got, err := tiered.Get(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateStarted, got.State)

	// Незавершённое состояние не кэшируется
	require.NoError(t, shared.Store(ctx, &domain.TaskResult{ID: "t", State: domain.TaskStateSuccess, Result: "ok"}))
	got, err = tiered.Get(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateSuccess, got.State)

	_, err = tiered.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTiered_CachesReadyResults(t *testing.T) {
	store := &fakeStore{results: map[string]*domain.TaskResult{}}
	local := openTestCache(t)
	tiered := NewTiered(local, NewDatabase(store), nil)
	ctx := context.Background()

	require.NoError(t, tiered.Store(ctx, &domain.TaskResult{ID: "p", State: domain.TaskStatePending}))
	_, err := local.Get(ctx, "p")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, tiered.Store(ctx, &domain.TaskResult{ID: "s", State: domain.TaskStateFailure, Error: "boom", UpdatedAt: time.Now()}))
	cached, err := local.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "boom", cached.Error)

	// Окончательный результат читается из кэша без shared
	delete(store.results, "s")
	got, err := tiered.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateFailure, got.State)
}
