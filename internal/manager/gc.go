package manager

import (
	"fmt"
	"time"

	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/telemetry"
	"github.com/shaiso/circle/internal/worker"
)

// GarbageCollector — обработчик manager.garbage_collector() (slow tier).
//
// Переводит в FAILED развёртывания, застрявшие в нетерминальной стадии
// дольше StuckTimeout, и удаляет результаты задач старше ResultRetention.
func (m *Manager) GarbageCollector(tc *worker.TaskContext, _ []any, _ map[string]any) (any, error) {
	ctx := tc.Context()
	now := time.Now()

	stuck, err := m.store.ListStuck(ctx, now.Add(-m.stuckTimeout), m.gcBatch)
	if err != nil {
		return nil, fmt.Errorf("list stuck deployments: %w", err)
	}

	failed := 0
	for i := range stuck {
		d := &stuck[i]

		// Развёртывание, которое сейчас идёт в этом процессе, не трогаем
		if !m.acquire(d.InstanceID) {
			continue
		}

		d.MarkFailed(fmt.Sprintf("stuck in %s since %s", d.State, d.UpdatedAt.Format(time.RFC3339)))
		err := m.save(ctx, d)
		m.release(d.InstanceID)
		if err != nil {
			return nil, err
		}

		telemetry.DeployTransitions.WithLabelValues(string(domain.DeployStateFailed)).Inc()
		telemetry.WithInstanceID(tc.Logger(), d.InstanceID.String()).Warn("stuck deployment marked failed")
		failed++
	}

	var purged int64
	if m.results != nil {
		purged, err = m.results.Purge(ctx, now.Add(-m.resultRetention))
		if err != nil {
			return nil, fmt.Errorf("purge results: %w", err)
		}
	}

	tc.Logger().Info("garbage collection finished", "failed", failed, "purged", purged)

	return map[string]any{
		"failed": failed,
		"purged": purged,
	}, nil
}
