package mq

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/circle/internal/tasks"
)

// Ошибки топологии.
var (
	// ErrUnknownHost — хост не описан в инвентаре.
	ErrUnknownHost = errors.New("unknown host")

	// ErrNotServed — хост не обслуживает подсистему задачи.
	ErrNotServed = errors.New("host does not serve subsystem")

	// ErrSharedQueue — fast и slow брокеры объявляют одно и то же имя очереди.
	ErrSharedQueue = errors.New("queue shared between tiers")
)

// Exchanges по умолчанию.
const (
	DefaultFastExchange = "circle"
	DefaultSlowExchange = "circle.slow"

	dlqRoutingKey = "tasks"
	slowSuffix    = ".slow"
)

// Host — узел инвентаря и подсистемы, задачи которых он принимает.
type Host struct {
	Name       string
	Subsystems []tasks.Subsystem
}

// TopologyConfig — статическая конфигурация топологии.
type TopologyConfig struct {
	FastExchange string
	SlowExchange string
	Hosts        []Host
}

// Route — куда публиковать конкретный вызов.
type Route struct {
	Tier       tasks.Tier `json:"tier"`
	Exchange   string     `json:"exchange"`
	Queue      string     `json:"queue"`
	RoutingKey string     `json:"routing_key"`
}

// QueueDecl — объявление очереди.
type QueueDecl struct {
	Name      string          `json:"name"`
	Tier      tasks.Tier      `json:"tier"`
	Host      string          `json:"host"`
	Subsystem tasks.Subsystem `json:"subsystem"`
}

// Topology — exchanges, очереди и привязки обоих брокеров.
//
// Для каждого tier один direct exchange; очередь на пару (host, subsystem)
// с routing key, равным имени очереди. Плюс dead-letter exchange и очередь
// на каждый tier.
type Topology struct {
	exchanges map[tasks.Tier]string
	queues    map[tasks.Tier][]QueueDecl
	hosts     map[string]map[tasks.Subsystem]bool
}

// QueueName возвращает имя очереди для хоста, подсистемы и tier.
//
//	QueueName("node01", "vmdriver", fast)  = "node01.vm"
//	QueueName("localhost", "manager", slow) = "localhost.man.slow"
func QueueName(host string, sub tasks.Subsystem, tier tasks.Tier) string {
	name := host + "." + sub.QueueSuffix()
	if tier == tasks.TierSlow {
		name += slowSuffix
	}
	return name
}

// DLXName возвращает имя dead-letter exchange для exchange.
func DLXName(exchange string) string {
	return exchange + ".dlq"
}

// DLQName возвращает имя dead-letter очереди для tier.
func DLQName(tier tasks.Tier) string {
	if tier == tasks.TierSlow {
		return "dlq.tasks" + slowSuffix
	}
	return "dlq.tasks"
}

// NewTopology строит топологию из каталога и инвентаря хостов.
// Очереди создаются только для подсистем, у которых есть задачи в tier.
func NewTopology(catalog *tasks.Catalog, cfg TopologyConfig) (*Topology, error) {
	fast := cfg.FastExchange
	if fast == "" {
		fast = DefaultFastExchange
	}
	slow := cfg.SlowExchange
	if slow == "" {
		slow = DefaultSlowExchange
	}

	t := &Topology{
		exchanges: map[tasks.Tier]string{tasks.TierFast: fast, tasks.TierSlow: slow},
		queues:    make(map[tasks.Tier][]QueueDecl),
		hosts:     make(map[string]map[tasks.Subsystem]bool),
	}

	for _, h := range cfg.Hosts {
		if h.Name == "" {
			return nil, fmt.Errorf("%w: empty host name", ErrUnknownHost)
		}
		subs, ok := t.hosts[h.Name]
		if !ok {
			subs = make(map[tasks.Subsystem]bool)
			t.hosts[h.Name] = subs
		}
		for _, s := range h.Subsystems {
			subs[s] = true
		}
	}

	for _, tier := range []tasks.Tier{tasks.TierFast, tasks.TierSlow} {
		tierSubs := catalog.Subsystems(tier)
		for _, host := range t.HostNames() {
			for _, sub := range tierSubs {
				if !t.hosts[host][sub] {
					continue
				}
				t.queues[tier] = append(t.queues[tier], QueueDecl{
					Name:      QueueName(host, sub, tier),
					Tier:      tier,
					Host:      host,
					Subsystem: sub,
				})
			}
		}
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate проверяет, что брокеры fast и slow не делят ни exchange, ни очередь.
func (t *Topology) Validate() error {
	if t.exchanges[tasks.TierFast] == t.exchanges[tasks.TierSlow] {
		return fmt.Errorf("%w: exchange %s", ErrSharedQueue, t.exchanges[tasks.TierFast])
	}

	owner := make(map[string]tasks.Tier)
	check := func(name string, tier tasks.Tier) error {
		if prev, ok := owner[name]; ok {
			if prev != tier {
				return fmt.Errorf("%w: %s", ErrSharedQueue, name)
			}
			return fmt.Errorf("duplicate queue %s", name)
		}
		owner[name] = tier
		return nil
	}

	for _, tier := range []tasks.Tier{tasks.TierFast, tasks.TierSlow} {
		if err := check(DLQName(tier), tier); err != nil {
			return err
		}
		for _, q := range t.queues[tier] {
			if err := check(q.Name, tier); err != nil {
				return err
			}
		}
	}
	return nil
}

// Route возвращает маршрут вызова задачи def на хосте host.
func (t *Topology) Route(def tasks.Def, host string) (Route, error) {
	subs, ok := t.hosts[host]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownHost, host)
	}
	if !subs[def.Subsystem] {
		return Route{}, fmt.Errorf("%w: %s/%s", ErrNotServed, host, def.Subsystem)
	}

	queue := QueueName(host, def.Subsystem, def.Tier)
	return Route{
		Tier:       def.Tier,
		Exchange:   t.exchanges[def.Tier],
		Queue:      queue,
		RoutingKey: queue,
	}, nil
}

// Exchange возвращает имя exchange для tier.
func (t *Topology) Exchange(tier tasks.Tier) string {
	return t.exchanges[tier]
}

// Queues возвращает очереди tier.
func (t *Topology) Queues(tier tasks.Tier) []QueueDecl {
	return append([]QueueDecl(nil), t.queues[tier]...)
}

// QueuesFor возвращает очереди хоста в tier для заданных подсистем
// (все подсистемы хоста, если список пуст).
func (t *Topology) QueuesFor(host string, tier tasks.Tier, subs ...tasks.Subsystem) []QueueDecl {
	want := make(map[tasks.Subsystem]bool)
	for _, s := range subs {
		want[s] = true
	}

	var result []QueueDecl
	for _, q := range t.queues[tier] {
		if q.Host != host {
			continue
		}
		if len(want) > 0 && !want[q.Subsystem] {
			continue
		}
		result = append(result, q)
	}
	return result
}

// HostNames возвращает отсортированные имена хостов.
func (t *Topology) HostNames() []string {
	names := make([]string, 0, len(t.hosts))
	for name := range t.hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Serves проверяет, принимает ли хост задачи подсистемы.
func (t *Topology) Serves(host string, sub tasks.Subsystem) bool {
	return t.hosts[host][sub]
}

// Declare объявляет exchanges, очереди и привязки tier на брокере conn.
func (t *Topology) Declare(ctx context.Context, tier tasks.Tier, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return t.declare(ch, tier)
	})
}

func (t *Topology) declare(ch *amqp.Channel, tier tasks.Tier) error {
	exchange := t.exchanges[tier]
	dlx := DLXName(exchange)

	// 1. Exchanges
	for _, name := range []string{exchange, dlx} {
		err := ch.ExchangeDeclare(
			name,     // name
			"direct", // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}

	// 2. Dead-letter очередь
	dlq := DLQName(tier)
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, dlqRoutingKey, dlx, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", dlq, dlx, err)
	}

	// 3. Рабочие очереди
	args := amqp.Table{
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}

	for _, q := range t.queues[tier] {
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}
		if err := ch.QueueBind(q.Name, q.Name, exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", q.Name, exchange, err)
		}
	}

	return nil
}

// Describe возвращает текстовое описание топологии для логов и CLI.
func (t *Topology) Describe() string {
	var b strings.Builder
	for _, tier := range []tasks.Tier{tasks.TierFast, tasks.TierSlow} {
		exchange := t.exchanges[tier]
		fmt.Fprintf(&b, "%s (direct, %s)\n", exchange, tier)
		for _, q := range t.queues[tier] {
			fmt.Fprintf(&b, "  %s [routing: %s] -> %s\n", q.Name, q.Name, q.Subsystem)
		}
		fmt.Fprintf(&b, "%s (direct)\n", DLXName(exchange))
		fmt.Fprintf(&b, "  %s [routing: %s]\n", DLQName(tier), dlqRoutingKey)
	}
	return b.String()
}
