package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/circle/internal/tasks"
)

// Publisher публикует вызовы задач в один брокер.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish отправляет вызов задачи по маршруту.
func (p *Publisher) Publish(ctx context.Context, route Route, sig *tasks.Signature) error {
	msg, err := buildPublishing(sig, time.Now())
	if err != nil {
		return err
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			route.Exchange,   // exchange
			route.RoutingKey, // routing key
			false,            // mandatory
			false,            // immediate
			msg,
		)
		if err != nil {
			return fmt.Errorf("publish %s to %s/%s: %w", sig.Task, route.Exchange, route.RoutingKey, err)
		}

		p.logger.Debug("published task",
			"exchange", route.Exchange,
			"routing_key", route.RoutingKey,
			"task_id", sig.ID,
			"task", sig.Task,
		)

		return nil
	})
}

// buildPublishing собирает AMQP сообщение для вызова.
func buildPublishing(sig *tasks.Signature, now time.Time) (amqp.Publishing, error) {
	body, err := sig.Encode()
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode signature: %w", err)
	}

	return amqp.Publishing{
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		DeliveryMode:    amqp.Persistent, // сообщение переживёт рестарт брокера
		MessageId:       sig.ID,
		CorrelationId:   sig.ID,
		Timestamp:       now,
		Headers: amqp.Table{
			"task": sig.Task,
			"id":   sig.ID,
		},
		Body: body,
	}, nil
}
