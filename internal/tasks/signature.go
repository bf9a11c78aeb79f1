package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Signature — тело сообщения вызова задачи.
//
// Поля совпадают с Celery message protocol v1 (JSON), чтобы воркеры
// на узлах, написанные на другом рантайме, понимали сообщение без адаптеров.
type Signature struct {
	// ID — идентификатор вызова (он же ключ в result backend).
	ID string `json:"id"`

	// Task — полное имя задачи.
	Task string `json:"task"`

	// Args — позиционные аргументы.
	Args []any `json:"args"`

	// Kwargs — именованные аргументы.
	Kwargs map[string]any `json:"kwargs"`

	// Retries — сколько раз вызов уже повторялся.
	Retries int `json:"retries"`

	// ETA — не выполнять раньше этого момента.
	ETA *time.Time `json:"eta"`

	// Expires — не выполнять позже этого момента.
	Expires *time.Time `json:"expires"`
}

// NewSignature создаёт вызов задачи с новым ID.
func NewSignature(name string, args ...any) *Signature {
	if args == nil {
		args = []any{}
	}
	return &Signature{
		ID:     uuid.New().String(),
		Task:   name,
		Args:   args,
		Kwargs: map[string]any{},
	}
}

// Expired проверяет, истёк ли срок выполнения.
func (s *Signature) Expired(now time.Time) bool {
	return s.Expires != nil && now.After(*s.Expires)
}

// Encode сериализует вызов в JSON.
func (s *Signature) Encode() ([]byte, error) {
	if s.Args == nil {
		s.Args = []any{}
	}
	if s.Kwargs == nil {
		s.Kwargs = map[string]any{}
	}
	return json.Marshal(s)
}

// DecodeSignature разбирает тело сообщения.
func DecodeSignature(body []byte) (*Signature, error) {
	var sig Signature
	if err := json.Unmarshal(body, &sig); err != nil {
		return nil, fmt.Errorf("unmarshal signature: %w", err)
	}
	if sig.ID == "" || sig.Task == "" {
		return nil, fmt.Errorf("signature without id or task")
	}
	return &sig, nil
}
