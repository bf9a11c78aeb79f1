package beat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/circle/internal/dispatch"
	"github.com/shaiso/circle/internal/tasks"
)

// Default configuration values.
const (
	DefaultGCSchedule = "@every 10m"
	defaultInterval   = time.Second
)

// Sender ставит задачу в очередь. Реализуется dispatch.Client.
type Sender interface {
	Send(ctx context.Context, name, host string, args ...any) (*dispatch.AsyncResult, error)
}

// Entry — периодическая задача.
type Entry struct {
	// Name — уникальное имя записи.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Task — имя задачи из каталога.
	Task string `yaml:"task" json:"task" validate:"required"`

	// Host — хост, очередь которого получит вызов (пусто — хост beat).
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Args — позиционные аргументы вызова.
	Args []any `yaml:"args,omitempty" json:"args,omitempty"`

	// Schedule — cron-выражение или дескриптор (@every 10m).
	Schedule string `yaml:"schedule" json:"schedule" validate:"required"`
}

// DefaultEntries — записи, которые есть в каждой инсталляции.
func DefaultEntries() []Entry {
	return []Entry{
		{
			Name:     "garbage-collector",
			Task:     tasks.ManagerGarbageCollector,
			Schedule: DefaultGCSchedule,
		},
	}
}

// Leader — выбор единственной активной реплики.
type Leader interface {
	// Acquire пытается стать лидером или подтверждает лидерство.
	Acquire(ctx context.Context) (bool, error)

	// Release отдаёт лидерство.
	Release(ctx context.Context) error
}

// Status — состояние записи для логов и API.
type Status struct {
	Entry
	Next       time.Time `json:"next"`
	LastRun    time.Time `json:"last_run,omitzero"`
	LastTaskID string    `json:"last_task_id,omitempty"`
}

type entryState struct {
	Entry
	schedule   cron.Schedule
	next       time.Time
	lastRun    time.Time
	lastTaskID string
}

// Beat — планировщик периодических задач.
type Beat struct {
	sender   Sender
	host     string
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	entries []*entryState
}

// Config — конфигурация Beat.
type Config struct {
	// Sender — клиент постановки задач.
	Sender Sender

	// Catalog — каталог для проверки имён задач (nil — без проверки).
	Catalog *tasks.Catalog

	// Entries — записи расписания.
	Entries []Entry

	// Host — хост по умолчанию для записей без Host.
	Host string

	// Interval — период тика (default: 1s).
	Interval time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт Beat и проверяет записи.
func New(cfg Config) (*Beat, error) {
	if cfg.Sender == nil {
		return nil, errors.New("beat: sender is required")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]bool, len(cfg.Entries))
	entries := make([]*entryState, 0, len(cfg.Entries))
	for _, e := range cfg.Entries {
		if seen[e.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Name)
		}
		seen[e.Name] = true

		if cfg.Catalog != nil && !cfg.Catalog.Has(e.Task) {
			return nil, fmt.Errorf("%w: %s (entry %s)", ErrUnknownTask, e.Task, e.Name)
		}

		schedule, err := ParseSchedule(e.Schedule)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.Name, err)
		}

		if e.Host == "" {
			e.Host = cfg.Host
		}
		entries = append(entries, &entryState{Entry: e, schedule: schedule})
	}

	return &Beat{
		sender:   cfg.Sender,
		host:     cfg.Host,
		interval: interval,
		logger:   logger.With("component", "beat"),
		entries:  entries,
	}, nil
}

// Tick ставит в очередь записи, время которых наступило к now.
//
// При первом тике записи только получают время следующего запуска.
// Запись, которую не удалось отправить, остаётся due и уйдёт на
// следующем тике. Ошибки одной записи не блокируют остальные.
func (b *Beat) Tick(ctx context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		sent int
		errs []error
	)
	for _, e := range b.entries {
		if e.next.IsZero() {
			e.next = e.schedule.Next(now)
			continue
		}
		if now.Before(e.next) {
			continue
		}

		res, err := b.sender.Send(ctx, e.Task, e.Host, e.Args...)
		if err != nil {
			b.logger.Error("failed to send periodic task", "entry", e.Name, "task", e.Task, "error", err)
			errs = append(errs, fmt.Errorf("entry %s: %w", e.Name, err))
			continue
		}

		e.lastRun = now
		e.lastTaskID = res.ID
		e.next = e.schedule.Next(now)
		sent++

		b.logger.Info("periodic task sent",
			"entry", e.Name,
			"task", e.Task,
			"task_id", res.ID,
			"next", e.next.UTC().Format(time.RFC3339),
		)
	}

	return sent, errors.Join(errs...)
}

// Next возвращает ближайшее время запуска (нулевое, если записей нет
// или тиков ещё не было).
func (b *Beat) Next() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	var next time.Time
	for _, e := range b.entries {
		if e.next.IsZero() {
			continue
		}
		if next.IsZero() || e.next.Before(next) {
			next = e.next
		}
	}
	return next
}

// Entries возвращает состояние записей.
func (b *Beat) Entries() []Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Status, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, Status{
			Entry:      e.Entry,
			Next:       e.next,
			LastRun:    e.lastRun,
			LastTaskID: e.lastTaskID,
		})
	}
	return out
}

// Run тикает до отмены ctx. Если leader задан, тикает только лидер.
func (b *Beat) Run(ctx context.Context, leader Leader) error {
	tk := time.NewTicker(b.interval)
	defer tk.Stop()

	var isLeader bool
	defer func() {
		if isLeader {
			if err := leader.Release(context.Background()); err != nil {
				b.logger.Warn("failed to release leadership", "error", err)
			}
		}
	}()

	b.logger.Info("beat started", "entries", len(b.entries), "interval", b.interval)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("beat stopped")
			return nil

		case now := <-tk.C:
			if leader != nil {
				ok, err := leader.Acquire(ctx)
				if err != nil {
					b.logger.Warn("leader election failed", "error", err)
					isLeader = false
					continue
				}
				if ok != isLeader {
					b.logger.Info("leadership changed", "leader", ok)
				}
				isLeader = ok
				if !isLeader {
					continue
				}
			}

			if _, err := b.Tick(ctx, now); err != nil {
				b.logger.Warn("tick finished with errors", "error", err)
			}
		}
	}
}
