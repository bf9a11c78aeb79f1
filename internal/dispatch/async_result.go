package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/result"
)

// AsyncResult — handle поставленного вызова.
type AsyncResult struct {
	ID   string
	Task string

	backend result.Backend
}

// Get возвращает текущую запись backend'а.
// Неизвестный ID считается PENDING: запись могла истечь или ещё не появиться.
func (r *AsyncResult) Get(ctx context.Context) (*domain.TaskResult, error) {
	res, err := r.backend.Get(ctx, r.ID)
	if errors.Is(err, result.ErrNotFound) {
		return &domain.TaskResult{ID: r.ID, Task: r.Task, State: domain.TaskStatePending}, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// State возвращает текущее состояние вызова.
func (r *AsyncResult) State(ctx context.Context) (domain.TaskState, error) {
	res, err := r.Get(ctx)
	if err != nil {
		return "", err
	}
	return res.State, nil
}

// Wait опрашивает backend каждые poll, пока результат не станет окончательным.
// Для FAILURE возвращает запись вместе с *TaskError.
func (r *AsyncResult) Wait(ctx context.Context, poll time.Duration) (*domain.TaskResult, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		res, err := r.Get(ctx)
		if err != nil {
			return nil, err
		}
		if res.State.Ready() {
			if res.State == domain.TaskStateFailure {
				return res, &TaskError{ID: r.ID, Task: r.Task, Message: res.Error}
			}
			return res, nil
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-ticker.C:
		}
	}
}
