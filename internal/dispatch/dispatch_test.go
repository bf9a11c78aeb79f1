package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/mq"
	"github.com/shaiso/circle/internal/result"
	"github.com/shaiso/circle/internal/tasks"
)

// --- Fakes ---

type published struct {
	route mq.Route
	sig   *tasks.Signature
	state domain.TaskState // состояние в backend на момент публикации
}

type fakePublisher struct {
	mu      sync.Mutex
	backend *memBackend
	msgs    []published
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, route mq.Route, sig *tasks.Signature) error {
	if p.err != nil {
		return p.err
	}
	var state domain.TaskState
	if res, err := p.backend.Get(ctx, sig.ID); err == nil {
		state = res.State
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{route: route, sig: sig, state: state})
	return nil
}

type memBackend struct {
	mu      sync.Mutex
	results map[string]domain.TaskResult
}

func newMemBackend() *memBackend {
	return &memBackend{results: make(map[string]domain.TaskResult)}
}

func (b *memBackend) Store(_ context.Context, res *domain.TaskResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[res.ID] = *res
	return nil
}

func (b *memBackend) Get(_ context.Context, id string) (*domain.TaskResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, ok := b.results[id]
	if !ok {
		return nil, result.ErrNotFound
	}
	return &res, nil
}

func (b *memBackend) Purge(context.Context, time.Time) (int64, error) { return 0, nil }

func (b *memBackend) Close() error { return nil }

func newTestClient(t *testing.T) (*Client, *fakePublisher, *fakePublisher, *memBackend) {
	t.Helper()

	catalog := tasks.Default()
	topo, err := mq.NewTopology(catalog, mq.TopologyConfig{
		Hosts: []mq.Host{
			{Name: "localhost", Subsystems: []tasks.Subsystem{tasks.SubsystemManager}},
			{Name: "node01", Subsystems: []tasks.Subsystem{tasks.SubsystemVM, tasks.SubsystemStorage, tasks.SubsystemNet}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	backend := newMemBackend()
	fast := &fakePublisher{backend: backend}
	slow := &fakePublisher{backend: backend}

	client, err := New(Config{
		Catalog:      catalog,
		Topology:     topo,
		Fast:         fast,
		Slow:         slow,
		Backend:      backend,
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client, fast, slow, backend
}

// --- Send Tests ---

func TestSend_RoutesByTier(t *testing.T) {
	client, fast, slow, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Send(ctx, tasks.ManagerDeploy, "localhost", "42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Send(ctx, tasks.ManagerGarbageCollector, "localhost"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fast.msgs) != 1 || fast.msgs[0].route.Queue != "localhost.man" {
		t.Errorf("expected manager.deploy on localhost.man, got %+v", fast.msgs)
	}
	if len(slow.msgs) != 1 || slow.msgs[0].route.Queue != "localhost.man.slow" {
		t.Errorf("expected garbage_collector on localhost.man.slow, got %+v", slow.msgs)
	}
	if slow.msgs[0].route.Exchange != mq.DefaultSlowExchange {
		t.Errorf("expected slow exchange, got %s", slow.msgs[0].route.Exchange)
	}
}

func TestSend_StoresPendingBeforePublish(t *testing.T) {
	client, fast, _, backend := newTestClient(t)

	ar, err := client.Send(context.Background(), tasks.VMResume, "node01", "cloud-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fast.msgs[0].state != domain.TaskStatePending {
		t.Errorf("expected PENDING stored before publish, got %q", fast.msgs[0].state)
	}
	if fast.msgs[0].sig.ID != ar.ID {
		t.Error("async result id should match signature id")
	}
	if _, ok := backend.results[ar.ID]; !ok {
		t.Error("pending result not stored")
	}
}

func TestSendWith_Kwargs(t *testing.T) {
	client, fast, _, _ := newTestClient(t)
	expires := time.Now().Add(time.Minute)

	_, err := client.SendWith(context.Background(), Call{
		Task:    tasks.StorageCreate,
		Host:    "node01",
		Args:    []any{map[string]any{"name": "root.qcow2"}},
		Kwargs:  map[string]any{"timeout": 600},
		Expires: &expires,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sig := fast.msgs[0].sig
	if sig.Kwargs["timeout"] != 600 {
		t.Errorf("kwargs not passed: %v", sig.Kwargs)
	}
	if sig.Expires == nil || !sig.Expires.Equal(expires) {
		t.Error("expires not passed")
	}
}

func TestSend_Errors(t *testing.T) {
	client, fast, _, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Send(ctx, "vmdriver.nope", "node01"); !errors.Is(err, tasks.ErrUnknownTask) {
		t.Errorf("expected ErrUnknownTask, got %v", err)
	}
	if _, err := client.Send(ctx, tasks.VMDeploy, "node01"); !errors.Is(err, tasks.ErrBadArgs) {
		t.Errorf("expected ErrBadArgs, got %v", err)
	}
	if _, err := client.Send(ctx, tasks.VMDeploy, "localhost", "desc"); !errors.Is(err, mq.ErrNotServed) {
		t.Errorf("expected ErrNotServed, got %v", err)
	}

	fast.err = errors.New("broker down")
	if _, err := client.Send(ctx, tasks.VMResume, "node01", "cloud-42"); err == nil {
		t.Error("expected publish error")
	}
}

func TestSend_NoSlowBroker(t *testing.T) {
	client, _, _, _ := newTestClient(t)
	client.slow = nil

	_, err := client.Send(context.Background(), tasks.ManagerGarbageCollector, "localhost")
	if !errors.Is(err, ErrNoBroker) {
		t.Errorf("expected ErrNoBroker, got %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without catalog")
	}
	if _, err := New(Config{Catalog: tasks.Default()}); err == nil {
		t.Error("expected error without topology")
	}
}

// --- AsyncResult Tests ---

func TestAsyncResult_UnknownIsPending(t *testing.T) {
	client, _, _, _ := newTestClient(t)

	state, err := client.AsyncResult("missing", tasks.VMResume).State(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != domain.TaskStatePending {
		t.Errorf("expected PENDING, got %s", state)
	}
}

func TestCall_WaitsForSuccess(t *testing.T) {
	client, fast, _, backend := newTestClient(t)

	// Имитация worker'а: дождаться публикации и записать SUCCESS
	go func() {
		for {
			fast.mu.Lock()
			n := len(fast.msgs)
			fast.mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		fast.mu.Lock()
		id := fast.msgs[0].sig.ID
		fast.mu.Unlock()
		_ = backend.Store(context.Background(), &domain.TaskResult{
			ID:     id,
			State:  domain.TaskStateSuccess,
			Result: "running",
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := client.Call(ctx, tasks.VMResume, "node01", "cloud-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "running" {
		t.Errorf("expected result running, got %v", got)
	}
}

func TestAsyncResult_WaitFailure(t *testing.T) {
	client, _, _, backend := newTestClient(t)
	_ = backend.Store(context.Background(), &domain.TaskResult{
		ID:    "t-1",
		State: domain.TaskStateFailure,
		Error: "libvirt: domain exists",
	})

	_, err := client.AsyncResult("t-1", tasks.VMDeploy).Wait(context.Background(), time.Millisecond)
	if !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("expected ErrTaskFailed, got %v", err)
	}
	var taskErr *TaskError
	if !errors.As(err, &taskErr) || taskErr.Message != "libvirt: domain exists" {
		t.Errorf("unexpected task error: %v", err)
	}
}

func TestAsyncResult_WaitWithoutBackend(t *testing.T) {
	client, _, _, _ := newTestClient(t)
	client.backend = result.None{}

	_, err := client.AsyncResult("t-1", tasks.VMDeploy).Wait(context.Background(), time.Millisecond)
	if !errors.Is(err, result.ErrNoBackend) {
		t.Errorf("expected ErrNoBackend, got %v", err)
	}
}

func TestCall_WithoutBackendDoesNotPublish(t *testing.T) {
	client, fast, _, _ := newTestClient(t)
	client.backend = result.None{}

	_, err := client.Call(context.Background(), tasks.StorageCreate, "node01", map[string]any{"name": "root.qcow2"})
	if !errors.Is(err, result.ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
	if len(fast.msgs) != 0 {
		t.Errorf("expected nothing published, got %d", len(fast.msgs))
	}
}

func TestSendWith_PresetID(t *testing.T) {
	client, fast, _, backend := newTestClient(t)

	ar, err := client.SendWith(context.Background(), Call{ID: "deploy-1", Task: tasks.ManagerDeploy, Host: "localhost", Args: []any{"42"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ar.ID != "deploy-1" || fast.msgs[0].sig.ID != "deploy-1" {
		t.Errorf("preset id not used: %s", ar.ID)
	}
	if _, ok := backend.results["deploy-1"]; !ok {
		t.Error("pending result not stored under preset id")
	}
}
