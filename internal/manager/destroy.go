package manager

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/circle/internal/dispatch"
	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/tasks"
	"github.com/shaiso/circle/internal/telemetry"
	"github.com/shaiso/circle/internal/worker"
)

// Destroy — обработчик manager.destroy(instance_id).
//
// Удаляет на узле то, что записано в прогрессе развёртывания:
// домен, затем интерфейсы, затем диски. Каждый удалённый ресурс сразу
// убирается из прогресса, так что повтор продолжает с оставшихся.
// FAILURE драйвера (ресурса уже нет) не прерывает уничтожение.
func (m *Manager) Destroy(tc *worker.TaskContext, args []any, _ map[string]any) (any, error) {
	ctx := tc.Context()

	d, err := m.load(ctx, args)
	if err != nil {
		return nil, err
	}

	logger := telemetry.WithInstanceID(tc.Logger(), d.InstanceID.String())

	if d.State == domain.DeployStateDestroyed {
		logger.Info("instance already destroyed")
		return deployResult(d), nil
	}

	if !m.acquire(d.InstanceID) {
		return nil, ErrInstanceBusy
	}
	defer m.release(d.InstanceID)

	d.TaskID = tc.ID()

	if d.Progress.VM {
		if err := m.remove(tc, logger, tasks.VMDestroy, d.Node, d.Spec.Name); err != nil {
			return nil, err
		}
		d.Progress.VM = false
		if err := m.save(ctx, d); err != nil {
			return nil, err
		}
	}

	for _, iface := range d.Spec.Interfaces {
		if !d.Progress.HasInterface(iface.MAC) {
			continue
		}
		if err := m.remove(tc, logger, tasks.NetDestroy, d.Node, iface.NetDesc()); err != nil {
			return nil, err
		}
		d.Progress.RemoveInterface(iface.MAC)
		if err := m.save(ctx, d); err != nil {
			return nil, err
		}
	}

	for _, disk := range d.Spec.Disks {
		if !d.Progress.HasDisk(disk.ID) {
			continue
		}
		host := disk.Host
		if host == "" {
			host = d.Node
		}
		if err := m.remove(tc, logger, tasks.StorageDelete, host, disk.DiskDesc()); err != nil {
			return nil, err
		}
		d.Progress.RemoveDisk(disk.ID)
		if err := m.save(ctx, d); err != nil {
			return nil, err
		}
	}

	if d.Progress.HasDisk(domain.ContextDiskID) {
		if err := m.remove(tc, logger, tasks.StorageDelete, d.Node, d.Spec.ContextDiskDesc(m.contextDatastore)); err != nil {
			return nil, err
		}
		d.Progress.RemoveDisk(domain.ContextDiskID)
	}

	if err := m.advance(ctx, d, domain.DeployStateDestroyed); err != nil {
		return nil, err
	}
	report(tc, domain.DeployStateDestroyed, map[string]any{
		"instance_id": d.InstanceID.String(),
	})

	logger.Info("instance destroyed", "node", d.Node)
	return deployResult(d), nil
}

// remove вызывает задачу удаления ресурса.
// FAILURE драйвера логируется и считается удалением.
func (m *Manager) remove(tc *worker.TaskContext, logger *slog.Logger, task, host string, arg any) error {
	_, err := m.caller.Call(tc.Context(), task, host, arg)
	if err == nil {
		return nil
	}
	if errors.Is(err, dispatch.ErrTaskFailed) {
		logger.Warn("driver failed to remove resource, continuing", "task", task, "error", err)
		return nil
	}
	return fmt.Errorf("%s on %s: %w", task, host, err)
}
