package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBroker — для tier задачи не настроен publisher.
	ErrNoBroker = errors.New("no broker for tier")

	// ErrTaskFailed — задача завершилась состоянием FAILURE.
	ErrTaskFailed = errors.New("task failed")
)

// TaskError — ошибка, которую вернул worker.
type TaskError struct {
	ID      string
	Task    string
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %s", e.Task, e.ID, e.Message)
}

// Is позволяет проверять errors.Is(err, ErrTaskFailed).
func (e *TaskError) Is(target error) bool {
	return target == ErrTaskFailed
}
