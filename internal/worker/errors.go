package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownHandler — для задачи не зарегистрирован обработчик.
	ErrUnknownHandler = errors.New("no handler for task")

	// ErrNotInCatalog — обработчик регистрируется для задачи вне каталога.
	ErrNotInCatalog = errors.New("task not in catalog")

	// ErrExpired — вызов пришёл после Expires.
	ErrExpired = errors.New("task expired")

	// ErrExecutionTimeout — выполнение превысило таймаут.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrBadArgument — аргумент вызова имеет неверный тип.
	ErrBadArgument = errors.New("bad task argument")
)

// PermanentError — ошибка, которую бессмысленно повторять.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent помечает ошибку как неповторяемую.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent проверяет, помечена ли ошибка как неповторяемая.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
