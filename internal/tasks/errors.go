package tasks

import "errors"

// Ошибки каталога задач.
var (
	// ErrUnknownTask — задача с таким именем не зарегистрирована.
	ErrUnknownTask = errors.New("unknown task")

	// ErrDuplicateTask — имя уже занято в своём пространстве имён.
	ErrDuplicateTask = errors.New("duplicate task name")

	// ErrInvalidDef — определение задачи некорректно.
	ErrInvalidDef = errors.New("invalid task definition")

	// ErrBadArgs — неверное количество аргументов.
	ErrBadArgs = errors.New("bad task arguments")
)
