package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/result"
	"github.com/shaiso/circle/internal/tasks"
)

// TaskContext — окружение одного вызова задачи.
type TaskContext struct {
	ctx     context.Context
	sig     *tasks.Signature
	attempt int
	backend result.Backend
	logger  *slog.Logger
}

// Context возвращает context вызова (отменяется при остановке воркера).
func (tc *TaskContext) Context() context.Context {
	return tc.ctx
}

// ID возвращает ID вызова.
func (tc *TaskContext) ID() string {
	return tc.sig.ID
}

// Task возвращает имя задачи.
func (tc *TaskContext) Task() string {
	return tc.sig.Task
}

// Attempt возвращает номер попытки (0 — первая).
func (tc *TaskContext) Attempt() int {
	return tc.attempt
}

// Logger возвращает логгер с task_id и task.
func (tc *TaskContext) Logger() *slog.Logger {
	return tc.logger
}

// UpdateState записывает промежуточное состояние PROGRESS с meta {"state": state}.
// Дополнительные поля meta копируются как есть.
func (tc *TaskContext) UpdateState(state string, meta map[string]any) error {
	m := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		m[k] = v
	}
	m["state"] = state

	err := tc.backend.Store(tc.ctx, &domain.TaskResult{
		ID:        tc.sig.ID,
		Task:      tc.sig.Task,
		State:     domain.TaskStateProgress,
		Meta:      m,
		Retries:   tc.attempt,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("update state %s: %w", state, err)
	}

	tc.logger.Debug("task state updated", "state", state)
	return nil
}

// NewTaskContext создаёт контекст вызова вне воркера (для тестов обработчиков
// и синхронного вызова из других компонентов).
func NewTaskContext(ctx context.Context, sig *tasks.Signature, backend result.Backend, logger *slog.Logger) *TaskContext {
	if backend == nil {
		backend = result.None{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskContext{
		ctx:     ctx,
		sig:     sig,
		attempt: sig.Retries,
		backend: backend,
		logger:  logger.With("task_id", sig.ID, "task", sig.Task),
	}
}
