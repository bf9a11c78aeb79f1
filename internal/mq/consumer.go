package mq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/circle/internal/tasks"
)

// Handler обрабатывает один вызов задачи.
// Ошибка означает, что сообщение не обработано и должно быть доставлено снова.
type Handler func(ctx context.Context, d *Delivery) error

// Delivery — доставленный вызов задачи.
type Delivery struct {
	// Signature — разобранное тело сообщения.
	Signature *tasks.Signature

	// Queue — очередь, из которой пришло сообщение.
	Queue string

	// Redelivered — сообщение уже доставлялось ранее.
	Redelivered bool
}

// Disposition — что сделать с сообщением после обработки.
type Disposition int

const (
	// Ack — подтвердить.
	Ack Disposition = iota

	// Requeue — вернуть в очередь.
	Requeue

	// DeadLetter — отправить в DLQ.
	DeadLetter
)

// String возвращает имя disposition для логов.
func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	default:
		return "dead-letter"
	}
}

// decide определяет disposition по результату обработки.
// Первая неудача возвращает сообщение в очередь, повторная — в DLQ,
// чтобы одно сообщение не крутилось бесконечно. Обработка, прерванная
// остановкой consumer'а, всегда возвращается в очередь.
func decide(handlerErr error, redelivered, stopping bool) Disposition {
	if handlerErr == nil {
		return Ack
	}
	if stopping {
		return Requeue
	}
	if redelivered {
		return DeadLetter
	}
	return Requeue
}

// Consumer потребляет вызовы задач из одной очереди.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — сколько неподтверждённых сообщений держать (default: 1).
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", cfg.Queue),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start потребляет сообщения до отмены ctx. Переживает переподключения.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "error", err)
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
			continue
		}

		c.logger.Info("consumer started")

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, waiting for reconnect")
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) waitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.ReconnectNotify():
		return nil
	}
}

func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue, // queue
		"",      // consumer tag (auto-generated)
		false,   // auto-ack (ack вручную после обработки)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.settle(raw, c.handleDelivery(ctx, raw))
		}
	}
}

// handleDelivery разбирает и обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) Disposition {
	sig, err := tasks.DecodeSignature(raw.Body)
	if err != nil {
		c.logger.Error("failed to decode task message",
			"error", err,
			"body", string(raw.Body),
		)
		// Некорректное сообщение повторно не обработать
		return DeadLetter
	}

	delivery := &Delivery{
		Signature:   sig,
		Queue:       c.queue,
		Redelivered: raw.Redelivered,
	}

	c.logger.Debug("received task",
		"task_id", sig.ID,
		"task", sig.Task,
		"redelivered", raw.Redelivered,
	)

	err = c.handler(ctx, delivery)
	disposition := decide(err, raw.Redelivered, ctx.Err() != nil)
	if err != nil {
		c.logger.Error("handler failed",
			"task_id", sig.ID,
			"task", sig.Task,
			"disposition", disposition.String(),
			"error", err,
		)
	}
	return disposition
}

func (c *Consumer) settle(raw amqp.Delivery, d Disposition) {
	var err error
	switch d {
	case Ack:
		err = raw.Ack(false)
	case Requeue:
		err = raw.Nack(false, true)
	case DeadLetter:
		err = raw.Nack(false, false)
	}
	if err != nil {
		c.logger.Warn("failed to settle delivery", "disposition", d.String(), "error", err)
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}
