package manager

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/circle/internal/dispatch"
	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/tasks"
	"github.com/shaiso/circle/internal/telemetry"
	"github.com/shaiso/circle/internal/worker"
)

// stage — стадия развёртывания и её удалённые вызовы.
type stage struct {
	state domain.DeployState
	run   func(tc *worker.TaskContext, d *domain.Deployment) error
}

func (m *Manager) stages() []stage {
	return []stage{
		{domain.DeployStatePending, m.place},
		{domain.DeployStatePrepare, m.prepare},
		{domain.DeployStateDeployVM, m.deployVM},
		{domain.DeployStateDeployNet, m.deployNet},
		{domain.DeployStateBoot, m.boot},
	}
}

// Deploy — обработчик manager.deploy(instance_id).
//
// Ошибка драйвера (FAILURE задачи на узле) переводит развёртывание в FAILED
// без отката созданных ресурсов. Ошибки доставки и БД повторяются воркером;
// повтор продолжает с сохранённой стадии.
func (m *Manager) Deploy(tc *worker.TaskContext, args []any, _ map[string]any) (any, error) {
	ctx := tc.Context()

	d, err := m.load(ctx, args)
	if err != nil {
		return nil, err
	}

	logger := telemetry.WithInstanceID(tc.Logger(), d.InstanceID.String())

	switch d.State {
	case domain.DeployStateRunning:
		logger.Info("instance already running")
		return deployResult(d), nil
	case domain.DeployStateFailed:
		return nil, worker.Permanent(fmt.Errorf("%w: %s", ErrDeploymentFailed, d.Error))
	case domain.DeployStateDestroyed:
		return nil, worker.Permanent(ErrDeploymentDestroyed)
	}

	if !m.acquire(d.InstanceID) {
		return nil, ErrInstanceBusy
	}
	defer m.release(d.InstanceID)

	d.TaskID = tc.ID()

	if err := m.runStages(tc, d); err != nil {
		if !isFatal(err) {
			return nil, err
		}

		logger.Error("deployment failed", "state", d.State, "node", d.Node, "error", err)

		d.MarkFailed(fmt.Sprintf("%s: %v", d.State, err))
		if saveErr := m.save(ctx, d); saveErr != nil {
			return nil, saveErr
		}
		telemetry.DeployTransitions.WithLabelValues(string(domain.DeployStateFailed)).Inc()
		report(tc, domain.DeployStateFailed, map[string]any{"error": d.Error})

		return nil, worker.Permanent(err)
	}

	logger.Info("instance running", "node", d.Node, "duration", d.Duration())
	return deployResult(d), nil
}

// runStages выполняет стадии, начиная с текущей.
func (m *Manager) runStages(tc *worker.TaskContext, d *domain.Deployment) error {
	ctx := tc.Context()
	stages := m.stages()

	from := 0
	for i, st := range stages {
		if st.state == d.State {
			from = i
		}
	}

	for _, st := range stages[from:] {
		if d.State != st.state {
			if err := m.advance(ctx, d, st.state); err != nil {
				return err
			}
		}
		report(tc, st.state, map[string]any{
			"instance_id": d.InstanceID.String(),
			"node":        d.Node,
		})

		if err := st.run(tc, d); err != nil {
			return err
		}
	}

	if err := m.advance(ctx, d, domain.DeployStateRunning); err != nil {
		return err
	}
	report(tc, domain.DeployStateRunning, map[string]any{
		"instance_id": d.InstanceID.String(),
		"node":        d.Node,
	})
	return nil
}

// place выбирает узел (PENDING).
func (m *Manager) place(tc *worker.TaskContext, d *domain.Deployment) error {
	ctx := tc.Context()

	if d.Node != "" {
		if _, ok := m.node(d.Node); !ok {
			return worker.Permanent(fmt.Errorf("%w: %s", ErrUnknownNode, d.Node))
		}
		return nil
	}

	usage, err := m.store.AllocatedByNode(ctx)
	if err != nil {
		return fmt.Errorf("load node usage: %w", err)
	}

	node, err := m.placer.Place(d.Spec, m.nodes, usage)
	if err != nil {
		return worker.Permanent(err)
	}

	d.Node = node
	tc.Logger().Info("node selected", "node", node)
	return m.save(ctx, d)
}

// prepare создаёт диски параллельно и контекстный диск (PREPARE).
func (m *Manager) prepare(tc *worker.TaskContext, d *domain.Deployment) error {
	ctx := tc.Context()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, disk := range d.Spec.Disks {
		if d.Progress.HasDisk(disk.ID) {
			continue
		}
		host := disk.Host
		if host == "" {
			host = d.Node
		}

		g.Go(func() error {
			if _, err := m.caller.Call(gctx, tasks.StorageCreate, host, disk.DiskDesc()); err != nil {
				return fmt.Errorf("create disk %s: %w", disk.ID, err)
			}
			mu.Lock()
			d.Progress.AddDisk(disk.ID)
			mu.Unlock()
			return nil
		})
	}

	createErr := g.Wait()

	// Созданные диски сохраняются даже при ошибке соседнего
	if err := m.save(ctx, d); err != nil {
		return err
	}
	if createErr != nil {
		return createErr
	}

	if d.Spec.Context != nil && !d.Progress.HasDisk(domain.ContextDiskID) {
		if _, err := m.caller.Call(ctx, tasks.StorageCreate, d.Node, d.Spec.ContextDiskDesc(m.contextDatastore)); err != nil {
			return fmt.Errorf("create context disk: %w", err)
		}
		d.Progress.AddDisk(domain.ContextDiskID)
		if err := m.save(ctx, d); err != nil {
			return err
		}
	}

	return nil
}

// deployVM создаёт домен на гипервизоре (DEPLOY VM).
func (m *Manager) deployVM(tc *worker.TaskContext, d *domain.Deployment) error {
	if d.Progress.VM {
		return nil
	}
	ctx := tc.Context()

	if _, err := m.caller.Call(ctx, tasks.VMDeploy, d.Node, d.Spec.VMDesc()); err != nil {
		return fmt.Errorf("deploy vm %s: %w", d.Spec.Name, err)
	}
	d.Progress.VM = true
	return m.save(ctx, d)
}

// deployNet подключает интерфейсы по одному (DEPLOY NET).
func (m *Manager) deployNet(tc *worker.TaskContext, d *domain.Deployment) error {
	ctx := tc.Context()

	for _, iface := range d.Spec.Interfaces {
		if d.Progress.HasInterface(iface.MAC) {
			continue
		}
		if _, err := m.caller.Call(ctx, tasks.NetCreate, d.Node, iface.NetDesc()); err != nil {
			return fmt.Errorf("create interface %s: %w", iface.MAC, err)
		}
		d.Progress.AddInterface(iface.MAC)
		if err := m.save(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// boot запускает домен (BOOT).
func (m *Manager) boot(tc *worker.TaskContext, d *domain.Deployment) error {
	if _, err := m.caller.Call(tc.Context(), tasks.VMResume, d.Node, d.Spec.Name); err != nil {
		return fmt.Errorf("resume vm %s: %w", d.Spec.Name, err)
	}
	return nil
}

// report публикует стадию в result backend. Ошибка записи не прерывает работу.
func report(tc *worker.TaskContext, state domain.DeployState, meta map[string]any) {
	if err := tc.UpdateState(string(state), meta); err != nil {
		tc.Logger().Warn("failed to report state", "state", state, "error", err)
	}
}

// isFatal — ошибка, после которой развёртывание переводится в FAILED.
func isFatal(err error) bool {
	return errors.Is(err, dispatch.ErrTaskFailed) || worker.IsPermanent(err)
}

func deployResult(d *domain.Deployment) map[string]any {
	return map[string]any{
		"instance_id": d.InstanceID.String(),
		"node":        d.Node,
		"state":       string(d.State),
	}
}
