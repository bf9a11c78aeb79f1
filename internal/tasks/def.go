package tasks

import (
	"fmt"
	"strings"
)

// Tier — класс приоритета очереди.
//
// Быстрые операции управления (deploy, destroy) и медленное обслуживание
// (сборка мусора, периодические сканирования) живут на разных брокерах,
// чтобы медленные задачи не задерживали интерактивные.
type Tier string

const (
	// TierFast — интерактивные операции.
	TierFast Tier = "fast"

	// TierSlow — фоновое обслуживание.
	TierSlow Tier = "slow"
)

// Valid проверяет, что tier известен.
func (t Tier) Valid() bool {
	return t == TierFast || t == TierSlow
}

// Subsystem — пространство имён задач.
type Subsystem string

// Подсистемы CIRCLE.
const (
	SubsystemStorage  Subsystem = "storagedriver"
	SubsystemVM       Subsystem = "vmdriver"
	SubsystemNet      Subsystem = "netdriver"
	SubsystemAgent    Subsystem = "agent"
	SubsystemFirewall Subsystem = "firewall"
	SubsystemOne      Subsystem = "one.tasks"
	SubsystemManager  Subsystem = "manager"
)

// queueSuffixes — суффиксы очередей по подсистемам.
// Очередь: "<host>.<suffix>" или "<host>.<suffix>.slow".
var queueSuffixes = map[Subsystem]string{
	SubsystemStorage:  "storage",
	SubsystemVM:       "vm",
	SubsystemNet:      "net",
	SubsystemAgent:    "agent",
	SubsystemFirewall: "firewall",
	SubsystemOne:      "one",
	SubsystemManager:  "man",
}

// QueueSuffix возвращает суффикс очереди подсистемы.
// Для неизвестных подсистем — последний сегмент имени.
func (s Subsystem) QueueSuffix() string {
	if suffix, ok := queueSuffixes[s]; ok {
		return suffix
	}
	name := string(s)
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Def — определение задачи.
type Def struct {
	// Name — полное имя задачи, например "storagedriver.create".
	Name string `json:"name"`

	// Subsystem — пространство имён; Name обязано начинаться с "<Subsystem>.".
	Subsystem Subsystem `json:"subsystem"`

	// Tier — в какой брокер уходит задача.
	Tier Tier `json:"tier"`

	// Args — имена позиционных аргументов (документация wire-контракта).
	Args []string `json:"args,omitempty"`

	// MinArgs — минимальное количество позиционных аргументов.
	// Аргументы сверх MinArgs считаются необязательными.
	MinArgs int `json:"min_args"`

	// MaxRetries — количество повторов на стороне воркера (0 — без повторов).
	MaxRetries int `json:"max_retries"`
}

// Check проверяет количество позиционных аргументов.
func (d Def) Check(args []any) error {
	if len(args) < d.MinArgs {
		return fmt.Errorf("%w: %s expects at least %d args, got %d", ErrBadArgs, d.Name, d.MinArgs, len(args))
	}
	if len(args) > len(d.Args) {
		return fmt.Errorf("%w: %s expects at most %d args, got %d", ErrBadArgs, d.Name, len(d.Args), len(args))
	}
	return nil
}

// Short возвращает имя без префикса подсистемы.
func (d Def) Short() string {
	return strings.TrimPrefix(d.Name, string(d.Subsystem)+".")
}

func (d Def) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDef)
	}
	if d.Subsystem == "" {
		return fmt.Errorf("%w: %s has no subsystem", ErrInvalidDef, d.Name)
	}
	prefix := string(d.Subsystem) + "."
	if !strings.HasPrefix(d.Name, prefix) || len(d.Name) == len(prefix) {
		return fmt.Errorf("%w: %s is not in namespace %s", ErrInvalidDef, d.Name, d.Subsystem)
	}
	if !d.Tier.Valid() {
		return fmt.Errorf("%w: %s has unknown tier %q", ErrInvalidDef, d.Name, d.Tier)
	}
	if d.MinArgs < 0 || d.MinArgs > len(d.Args) {
		return fmt.Errorf("%w: %s min_args out of range", ErrInvalidDef, d.Name)
	}
	return nil
}
