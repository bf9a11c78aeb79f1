package tasks

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog — реестр определений задач.
//
// Имя задачи однозначно выбирает один обработчик на стороне воркера,
// поэтому повторная регистрация имени — ошибка.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]Def
}

// NewCatalog создаёт пустой каталог.
func NewCatalog() *Catalog {
	return &Catalog{defs: make(map[string]Def)}
}

// Register добавляет определение задачи.
func (c *Catalog) Register(def Def) error {
	if err := def.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.defs[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, def.Name)
	}
	c.defs[def.Name] = def
	return nil
}

// MustRegister регистрирует задачи и паникует при ошибке.
// Используется для статических таблиц.
func (c *Catalog) MustRegister(defs ...Def) {
	for _, def := range defs {
		if err := c.Register(def); err != nil {
			panic(err)
		}
	}
}

// Lookup возвращает определение задачи по имени.
func (c *Catalog) Lookup(name string) (Def, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[name]
	if !ok {
		return Def{}, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return def, nil
}

// MustLookup возвращает определение задачи или паникует.
// Для имён-констант из builtin.go.
func (c *Catalog) MustLookup(name string) Def {
	def, err := c.Lookup(name)
	if err != nil {
		panic(err)
	}
	return def
}

// Has проверяет наличие задачи.
func (c *Catalog) Has(name string) bool {
	_, err := c.Lookup(name)
	return err == nil
}

// Defs возвращает все определения, отсортированные по имени.
func (c *Catalog) Defs() []Def {
	c.mu.RLock()
	defer c.mu.RUnlock()

	defs := make([]Def, 0, len(c.defs))
	for _, def := range c.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// BySubsystem возвращает задачи одной подсистемы.
func (c *Catalog) BySubsystem(sub Subsystem) []Def {
	var result []Def
	for _, def := range c.Defs() {
		if def.Subsystem == sub {
			result = append(result, def)
		}
	}
	return result
}

// Subsystems возвращает подсистемы, у которых есть задачи в данном tier.
func (c *Catalog) Subsystems(tier Tier) []Subsystem {
	seen := make(map[Subsystem]bool)
	var result []Subsystem
	for _, def := range c.Defs() {
		if def.Tier != tier || seen[def.Subsystem] {
			continue
		}
		seen[def.Subsystem] = true
		result = append(result, def.Subsystem)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Len возвращает количество задач.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}
