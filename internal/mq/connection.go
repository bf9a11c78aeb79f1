package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNoChannel — канал недоступен (соединение разорвано или закрыто).
var ErrNoChannel = errors.New("no channel available")

const (
	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = 30 * time.Second
	defaultHeartbeat      = 10 * time.Second
)

// Connection — соединение с одним брокером с автоматическим reconnect.
//
// В CIRCLE два брокера (fast и slow), у каждого своё Connection.
// Connection создаётся явно при старте процесса и закрывается при остановке.
type Connection struct {
	name   string
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed   bool
	closedCh chan struct{}

	reconnectCh chan struct{}
}

// NewConnection подключается к брокеру.
// name используется только в логах ("fast", "slow").
func NewConnection(name, url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		name:        name,
		url:         url,
		logger:      logger.With("broker", name),
		closedCh:    make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.watchConnection()

	return c, nil
}

// Name возвращает имя брокера.
func (c *Connection) Name() string {
	return c.name
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat:  defaultHeartbeat,
		Locale:     "en_US",
		Properties: amqp.Table{"connection_name": "circle-" + c.name},
	})
	if err != nil {
		return fmt.Errorf("dial amqp %s: %w", c.name, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel %s: %w", c.name, err)
	}

	c.conn = conn
	c.channel = ch

	c.logger.Info("connected to broker")

	return nil
}

// watchConnection ждёт разрыва и запускает переподключение.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			time.Sleep(time.Second)
			continue
		}

		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-notifyClose:
			if err != nil {
				c.logger.Warn("broker connection lost", "error", err)
			}
			c.reconnect()
		}
	}
}

func (c *Connection) reconnect() {
	delay := reconnectInitialDelay

	for {
		if c.isClosed() {
			return
		}

		c.logger.Info("attempting to reconnect", "delay", delay)

		select {
		case <-c.closedCh:
			return
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnect failed", "error", err)
			delay = min(delay*2, reconnectMaxDelay)
			continue
		}

		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}

		return
	}
}

func (c *Connection) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Channel возвращает текущий AMQP канал (nil при разрыве).
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify сигнализирует об успешном переподключении.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// WithChannel выполняет fn с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := c.Channel()
	if ch == nil || ch.IsClosed() {
		return fmt.Errorf("%w: %s", ErrNoChannel, c.name)
	}

	return fn(ch)
}

// IsConnected проверяет состояние соединения.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return false
	}
	return !c.conn.IsClosed()
}

// Close закрывает канал и соединение. Повторный вызов — no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.logger.Info("broker connection closed")

	return errors.Join(errs...)
}
