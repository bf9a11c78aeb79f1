package worker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/circle/internal/tasks"
)

// Handler выполняет один вызов задачи.
//
// Возвращаемое значение записывается в result backend как результат SUCCESS.
// Ошибка приводит к повтору (до Def.MaxRetries), если она не Permanent.
type Handler func(tc *TaskContext, args []any, kwargs map[string]any) (any, error)

// Registry — обработчики задач по имени.
type Registry struct {
	catalog *tasks.Catalog

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry создаёт пустой реестр поверх каталога.
func NewRegistry(catalog *tasks.Catalog) *Registry {
	return &Registry{
		catalog:  catalog,
		handlers: make(map[string]Handler),
	}
}

// Register добавляет обработчик задачи. Задача должна быть в каталоге.
func (r *Registry) Register(name string, h Handler) error {
	if !r.catalog.Has(name) {
		return fmt.Errorf("%w: %s", ErrNotInCatalog, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
	return nil
}

// MustRegister — Register, паникующий при ошибке.
func (r *Registry) MustRegister(name string, h Handler) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

// Get возвращает обработчик и определение задачи.
func (r *Registry) Get(name string) (Handler, tasks.Def, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, tasks.Def{}, fmt.Errorf("%w: %s", ErrUnknownHandler, name)
	}

	def, err := r.catalog.Lookup(name)
	if err != nil {
		return nil, tasks.Def{}, err
	}
	return h, def, nil
}

// Names возвращает зарегистрированные задачи по алфавиту.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subsystems возвращает подсистемы, для которых есть обработчики.
func (r *Registry) Subsystems() []tasks.Subsystem {
	seen := make(map[tasks.Subsystem]bool)
	var subs []tasks.Subsystem
	for _, name := range r.Names() {
		def, err := r.catalog.Lookup(name)
		if err != nil || seen[def.Subsystem] {
			continue
		}
		seen[def.Subsystem] = true
		subs = append(subs, def.Subsystem)
	}
	return subs
}
