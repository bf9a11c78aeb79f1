package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/circle/internal/domain"
)

// ResultRepo — таблица результатов задач (database result backend).
type ResultRepo struct {
	pool *pgxpool.Pool
}

// NewResultRepo создаёт новый ResultRepo.
func NewResultRepo(pool *pgxpool.Pool) *ResultRepo {
	return &ResultRepo{pool: pool}
}

// Upsert записывает состояние вызова задачи.
func (r *ResultRepo) Upsert(ctx context.Context, res *domain.TaskResult) error {
	resultJSON, err := marshalNullable(res.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	metaJSON, err := marshalNullable(res.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	query := `
		INSERT INTO task_results (id, task, state, result, error, meta, retries, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET task = EXCLUDED.task, state = EXCLUDED.state, result = EXCLUDED.result,
		    error = EXCLUDED.error, meta = EXCLUDED.meta, retries = EXCLUDED.retries,
		    updated_at = EXCLUDED.updated_at
	`
	_, err = r.pool.Exec(ctx, query,
		res.ID,
		res.Task,
		res.State,
		resultJSON,
		nullString(res.Error),
		metaJSON,
		res.Retries,
		res.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert task result: %w", err)
	}
	return nil
}

// Get возвращает результат по ID вызова.
func (r *ResultRepo) Get(ctx context.Context, id string) (*domain.TaskResult, error) {
	query := `
		SELECT id, task, state, result, error, meta, retries, updated_at
		FROM task_results
		WHERE id = $1
	`
	var res domain.TaskResult
	var resultJSON, metaJSON []byte
	var resError *string

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&res.ID,
		&res.Task,
		&res.State,
		&resultJSON,
		&resError,
		&metaJSON,
		&res.Retries,
		&res.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task result: %w", err)
	}

	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &res.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if metaJSON != nil {
		if err := json.Unmarshal(metaJSON, &res.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal meta: %w", err)
		}
	}
	res.Error = derefString(resError)

	return &res, nil
}

// DeleteOlderThan удаляет результаты, не обновлявшиеся с before.
func (r *ResultRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM task_results WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete task results: %w", err)
	}
	return result.RowsAffected(), nil
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
