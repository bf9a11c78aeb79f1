package result

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/shaiso/circle/internal/domain"
)

const (
	defaultTTL     = 24 * time.Hour
	keyPrefix      = "task-result:"
	gcDiscardRatio = 0.5
)

// Cache — result backend на встроенной BadgerDB.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OpenCache открывает BadgerDB по пути из cfg (или в памяти).
func OpenCache(cfg Config, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.InMemory && cfg.CachePath == "" {
		return nil, errors.New("cache path is required for persistent result cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.CachePath, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.CachePath, err)
		}
		opts = badger.DefaultOptions(cfg.CachePath)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	c := &Cache{db: db, ttl: ttl, logger: logger}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.wg.Add(1)
		go c.gcLoop(ctx, cfg.GCInterval)
	}

	return c, nil
}

// Store записывает результат с TTL.
func (c *Cache) Store(ctx context.Context, res *domain.TaskResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(resultKey(res.ID), data).WithTTL(c.ttl))
	})
	if err != nil {
		return fmt.Errorf("store result %s: %w", res.ID, err)
	}
	return nil
}

// Get читает результат.
func (c *Cache) Get(ctx context.Context, id string) (*domain.TaskResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var res domain.TaskResult
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(resultKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &res)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", id, err)
	}
	return &res, nil
}

// Purge удаляет записи старше before. Истёкшие по TTL badger удаляет сам.
func (c *Cache) Purge(ctx context.Context, before time.Time) (int64, error) {
	var stale [][]byte

	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			var res domain.TaskResult
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &res)
			}); err != nil {
				return err
			}
			if res.UpdatedAt.Before(before) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan results: %w", err)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete result: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush deletes: %w", err)
	}

	return int64(len(stale)), nil
}

// Close останавливает GC и закрывает БД.
func (c *Cache) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.db.Close()
}

func (c *Cache) gcLoop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Один вызов переписывает не больше одного файла value log
			for c.db.RunValueLogGC(gcDiscardRatio) == nil {
			}
		}
	}
}

func resultKey(id string) []byte {
	return []byte(keyPrefix + id)
}

// badgerLogger — адаптер slog.Logger для badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
