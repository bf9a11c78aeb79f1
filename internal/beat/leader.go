package beat

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultLockKey — ключ advisory lock реплик beat.
const DefaultLockKey int64 = 424242

// PGLeader — лидерство через pg_try_advisory_lock.
//
// Advisory lock принадлежит сессии, поэтому лидер держит отдельное
// соединение из пула до Release. Потеря соединения означает потерю
// лидерства.
type PGLeader struct {
	pool *pgxpool.Pool
	key  int64

	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewPGLeader создаёт PGLeader. key 0 — DefaultLockKey.
func NewPGLeader(pool *pgxpool.Pool, key int64) *PGLeader {
	if key == 0 {
		key = DefaultLockKey
	}
	return &PGLeader{pool: pool, key: key}
}

// Acquire реализует Leader.
func (l *PGLeader) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		// соединение умерло вместе с блокировкой
		_ = l.conn.Conn().Close(context.Background())
		l.conn.Release()
		l.conn = nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire conn: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Release реализует Leader.
func (l *PGLeader) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Release()
		l.conn = nil
	}()

	if _, err := l.conn.Exec(ctx, "select pg_advisory_unlock($1)", l.key); err != nil {
		// закрытое соединение снимает блокировку на стороне сервера
		_ = l.conn.Conn().Close(context.Background())
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
