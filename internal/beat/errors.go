package beat

import "errors"

var (
	// ErrInvalidSchedule — расписание не разбирается.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrDuplicateEntry — две записи с одним именем.
	ErrDuplicateEntry = errors.New("duplicate beat entry")

	// ErrUnknownTask — задачи нет в каталоге.
	ErrUnknownTask = errors.New("unknown task")
)
