package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/mq"
	"github.com/shaiso/circle/internal/result"
	"github.com/shaiso/circle/internal/tasks"
	"github.com/shaiso/circle/internal/telemetry"
)

// handleDelivery обрабатывает сообщение из очереди.
// Ошибка возвращается только если результат не удалось записать:
// consumer вернёт сообщение в очередь, а при повторной неудаче отправит в DLQ.
func (w *Worker) handleDelivery(ctx context.Context, d *mq.Delivery) error {
	return w.process(ctx, d.Signature)
}

// process выполняет один вызов задачи.
func (w *Worker) process(ctx context.Context, sig *tasks.Signature) error {
	logger := telemetry.WithTask(w.logger, sig.ID, sig.Task)

	handler, def, err := w.registry.Get(sig.Task)
	if err != nil {
		logger.Error("no handler for task", "error", err)
		if storeErr := w.store(ctx, sig, domain.TaskStateFailure, nil, err, sig.Retries); storeErr != nil {
			return storeErr
		}
		return err
	}

	if sig.Expired(time.Now()) {
		logger.Warn("task expired, skipping", "expires", sig.Expires)
		return w.store(ctx, sig, domain.TaskStateFailure, nil, ErrExpired, sig.Retries)
	}

	if err := waitETA(ctx, sig); err != nil {
		return err
	}

	// Повторная доставка уже выполненного вызова
	prev, err := w.backend.Get(ctx, sig.ID)
	switch {
	case err == nil && prev.State == domain.TaskStateSuccess:
		logger.Info("task already succeeded, skipping")
		return nil
	case err != nil && !errors.Is(err, result.ErrNotFound) && !errors.Is(err, result.ErrNoBackend):
		return fmt.Errorf("get result %s: %w", sig.ID, err)
	}

	if err := w.store(ctx, sig, domain.TaskStateStarted, nil, nil, sig.Retries); err != nil {
		return err
	}

	logger.Info("task started", "retries", sig.Retries)

	start := time.Now()
	value, attempt, execErr := w.executeWithRetry(ctx, handler, def, sig, logger)
	telemetry.TaskDuration.WithLabelValues(sig.Task).Observe(time.Since(start).Seconds())

	// Воркер останавливается: результат не записываем, сообщение вернётся в очередь
	if execErr != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	if execErr != nil {
		if err := w.store(ctx, sig, domain.TaskStateFailure, nil, execErr, attempt); err != nil {
			return err
		}
		telemetry.TasksProcessed.WithLabelValues(sig.Task, string(domain.TaskStateFailure)).Inc()
		logger.Warn("task failed", "attempt", attempt, "error", execErr)
		return nil
	}

	if err := w.store(ctx, sig, domain.TaskStateSuccess, value, nil, attempt); err != nil {
		return err
	}
	telemetry.TasksProcessed.WithLabelValues(sig.Task, string(domain.TaskStateSuccess)).Inc()
	logger.Info("task succeeded", "attempt", attempt, "duration", time.Since(start))
	return nil
}

// executeWithRetry выполняет обработчик до def.MaxRetries повторов.
// Возвращает значение, номер последней попытки и ошибку.
func (w *Worker) executeWithRetry(ctx context.Context, h Handler, def tasks.Def, sig *tasks.Signature, logger *slog.Logger) (any, int, error) {
	for retry := 0; ; retry++ {
		attempt := sig.Retries + retry

		value, err := w.execute(ctx, h, sig, attempt, logger)
		if err == nil {
			return value, attempt, nil
		}

		if IsPermanent(err) || retry >= def.MaxRetries || ctx.Err() != nil {
			return nil, attempt, err
		}

		delay := calculateBackoff(retry+1, w.retry)

		logger.Debug("retrying task",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		if storeErr := w.store(ctx, sig, domain.TaskStateRetry, nil, err, attempt); storeErr != nil {
			logger.Warn("failed to store retry state", "error", storeErr)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		}
	}
}

// execute выполняет одну попытку с таймаутом и перехватом паники.
func (w *Worker) execute(ctx context.Context, h Handler, sig *tasks.Signature, attempt int, logger *slog.Logger) (value any, err error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	tc := &TaskContext{
		ctx:     ctx,
		sig:     sig,
		attempt: attempt,
		backend: w.backend,
		logger:  logger,
	}

	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()

	value, err = h(tc, sig.Args, sig.Kwargs)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", ErrExecutionTimeout, w.timeout, err)
	}
	return value, err
}

// store записывает состояние вызова в result backend.
func (w *Worker) store(ctx context.Context, sig *tasks.Signature, state domain.TaskState, value any, taskErr error, attempt int) error {
	res := &domain.TaskResult{
		ID:        sig.ID,
		Task:      sig.Task,
		State:     state,
		Result:    value,
		Retries:   attempt,
		UpdatedAt: time.Now(),
	}
	if taskErr != nil {
		res.Error = taskErr.Error()
	}

	if err := w.backend.Store(ctx, res); err != nil {
		return fmt.Errorf("store %s result %s: %w", state, sig.ID, err)
	}
	return nil
}

// waitETA ждёт наступления ETA вызова.
func waitETA(ctx context.Context, sig *tasks.Signature) error {
	if sig.ETA == nil {
		return nil
	}
	delay := time.Until(*sig.ETA)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
