package result

import "errors"

var (
	// ErrNotFound — результата с таким ID нет (или истёк TTL).
	ErrNotFound = errors.New("result not found")

	// ErrNoBackend — окружение запущено без result backend.
	ErrNoBackend = errors.New("result backend disabled")

	// ErrUnknownBackend — неизвестный тип backend в конфигурации.
	ErrUnknownBackend = errors.New("unknown result backend")
)
