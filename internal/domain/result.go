package domain

import "time"

// TaskState — состояние вызова задачи в result backend.
type TaskState string

const (
	// TaskStatePending — задача опубликована, но ещё не взята worker'ом.
	TaskStatePending TaskState = "PENDING"

	// TaskStateStarted — worker начал выполнение.
	TaskStateStarted TaskState = "STARTED"

	// TaskStateProgress — промежуточное состояние (update_state).
	TaskStateProgress TaskState = "PROGRESS"

	// TaskStateRetry — попытка не удалась, будет повтор.
	TaskStateRetry TaskState = "RETRY"

	// TaskStateSuccess — задача выполнена.
	TaskStateSuccess TaskState = "SUCCESS"

	// TaskStateFailure — задача завершилась ошибкой.
	TaskStateFailure TaskState = "FAILURE"
)

// Ready возвращает true, если результат окончательный.
func (s TaskState) Ready() bool {
	return s == TaskStateSuccess || s == TaskStateFailure
}

// TaskResult — запись result backend для одного вызова задачи.
type TaskResult struct {
	// ID — ID вызова (совпадает с Signature.ID).
	ID string `json:"id"`

	// Task — имя задачи.
	Task string `json:"task"`

	// State — текущее состояние.
	State TaskState `json:"state"`

	// Result — возвращённое значение (для SUCCESS).
	Result any `json:"result,omitempty"`

	// Error — текст ошибки (для FAILURE и RETRY).
	Error string `json:"error,omitempty"`

	// Meta — данные update_state, например {"state": "DEPLOY VM"}.
	Meta map[string]any `json:"meta,omitempty"`

	// Retries — номер попытки.
	Retries int `json:"retries"`

	// UpdatedAt — время последней записи.
	UpdatedAt time.Time `json:"updated_at"`
}

// Progress возвращает строку стадии из Meta, если она есть.
func (r *TaskResult) Progress() string {
	if r.Meta == nil {
		return ""
	}
	s, _ := r.Meta["state"].(string)
	return s
}
