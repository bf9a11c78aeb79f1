package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/circle/internal/dispatch"
	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/mq"
	"github.com/shaiso/circle/internal/repo"
	"github.com/shaiso/circle/internal/result"
	"github.com/shaiso/circle/internal/tasks"
)

// --- Fakes ---

type memStore struct {
	mu          sync.Mutex
	deployments map[uuid.UUID]domain.Deployment
}

func newMemStore() *memStore {
	return &memStore{deployments: make(map[uuid.UUID]domain.Deployment)}
}

func (s *memStore) Create(_ context.Context, d *domain.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deployments[d.InstanceID]; ok {
		return repo.ErrAlreadyExists
	}
	s.deployments[d.InstanceID] = *d
	return nil
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (*domain.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &d, nil
}

func (s *memStore) Update(_ context.Context, d *domain.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deployments[d.InstanceID]; !ok {
		return repo.ErrNotFound
	}
	s.deployments[d.InstanceID] = *d
	return nil
}

func (s *memStore) SetTaskID(_ context.Context, id uuid.UUID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[id]
	if !ok {
		return repo.ErrNotFound
	}
	d.TaskID = taskID
	s.deployments[id] = d
	return nil
}

type sentTask struct {
	id   string
	task string
	host string
	args []any
}

type fakeDispatcher struct {
	catalog  *tasks.Catalog
	topology *mq.Topology
	results  *fakeResults
	sent     []sentTask
	err      error

	// onSend вызывается после публикации, как будто manager уже взял задачу
	onSend func()
}

func newFakeDispatcher(t *testing.T, results *fakeResults) *fakeDispatcher {
	t.Helper()
	catalog := tasks.Default()
	topo, err := mq.NewTopology(catalog, mq.TopologyConfig{Hosts: []mq.Host{
		{Name: "manager01", Subsystems: []tasks.Subsystem{tasks.SubsystemManager}},
		{Name: "node01", Subsystems: []tasks.Subsystem{tasks.SubsystemVM, tasks.SubsystemNet, tasks.SubsystemStorage}},
	}})
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	return &fakeDispatcher{catalog: catalog, topology: topo, results: results}
}

func (d *fakeDispatcher) SendWith(_ context.Context, call dispatch.Call) (*dispatch.AsyncResult, error) {
	if call.ID == "" {
		call.ID = fmt.Sprintf("task-%d", len(d.sent)+1)
	}
	d.results.results[call.ID] = &domain.TaskResult{ID: call.ID, Task: call.Task, State: domain.TaskStatePending}
	if d.err != nil {
		return nil, d.err
	}
	d.sent = append(d.sent, sentTask{id: call.ID, task: call.Task, host: call.Host, args: call.Args})
	if d.onSend != nil {
		d.onSend()
	}
	return &dispatch.AsyncResult{ID: call.ID, Task: call.Task}, nil
}

func (d *fakeDispatcher) Catalog() *tasks.Catalog { return d.catalog }

func (d *fakeDispatcher) Topology() *mq.Topology { return d.topology }

type fakeResults struct {
	results map[string]*domain.TaskResult
	err     error
}

func (r *fakeResults) Get(_ context.Context, id string) (*domain.TaskResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	res, ok := r.results[id]
	if !ok {
		return nil, result.ErrNotFound
	}
	return res, nil
}

// --- Helpers ---

type testServer struct {
	mux        *http.ServeMux
	store      *memStore
	dispatcher *fakeDispatcher
	results    *fakeResults
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	results := &fakeResults{results: map[string]*domain.TaskResult{}}
	ts := &testServer{
		mux:        http.NewServeMux(),
		store:      newMemStore(),
		dispatcher: newFakeDispatcher(t, results),
		results:    results,
	}
	h := NewHandler(Config{
		Deployments: ts.store,
		Dispatcher:  ts.dispatcher,
		Results:     ts.results,
		ManagerHost: "manager01",
	})
	h.RegisterRoutes(ts.mux)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) ErrorCode {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return resp.Error.Code
}

func deployBody() DeployRequest {
	return DeployRequest{
		Name:   "cloud-7",
		Memory: 1024,
		VCPUs:  1,
		Disks: []domain.DiskSpec{
			{ID: "d1", Name: "root.qcow2", Type: "qcow2-snap", BaseName: "debian.qcow2", Datastore: "/datastore"},
		},
		Interfaces: []domain.InterfaceSpec{
			{MAC: "02:00:0a:00:00:07", VLAN: 100},
		},
	}
}

// --- Instance Tests ---

func TestDeploy_New(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()

	rec := ts.do(t, http.MethodPost, "/api/v1/instances/"+id.String()+"/deploy", deployBody())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}

	acc := decodeData[TaskAccepted](t, rec)
	if acc.TaskID == "" || acc.Task != tasks.ManagerDeploy || acc.State != domain.DeployStateNoState {
		t.Errorf("unexpected response: %+v", acc)
	}

	if len(ts.dispatcher.sent) != 1 {
		t.Fatalf("expected 1 task sent, got %d", len(ts.dispatcher.sent))
	}
	sent := ts.dispatcher.sent[0]
	if sent.id != acc.TaskID || sent.host != "manager01" || sent.args[0] != id.String() {
		t.Errorf("unexpected task: %+v", sent)
	}

	d, err := ts.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("deployment not stored: %v", err)
	}
	if d.TaskID != acc.TaskID || d.Spec.Name != "cloud-7" || d.Spec.ID != id {
		t.Errorf("unexpected deployment: %+v", d)
	}
}

func TestDeploy_Validation(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/instances/" + uuid.New().String() + "/deploy"

	tests := []struct {
		name   string
		mutate func(*DeployRequest)
	}{
		{"no name", func(r *DeployRequest) { r.Name = "" }},
		{"zero memory", func(r *DeployRequest) { r.Memory = 0 }},
		{"bad disk type", func(r *DeployRequest) { r.Disks[0].Type = "vmdk" }},
		{"bad mac", func(r *DeployRequest) { r.Interfaces[0].MAC = "not-a-mac" }},
		{"bad vlan", func(r *DeployRequest) { r.Interfaces[0].VLAN = 5000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := deployBody()
			tt.mutate(&body)

			rec := ts.do(t, http.MethodPost, path, body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
			}
		})
	}

	if len(ts.dispatcher.sent) != 0 {
		t.Error("invalid requests should not enqueue tasks")
	}

	if rec := ts.do(t, http.MethodPost, "/api/v1/instances/nope/deploy", deployBody()); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestDeploy_Conflicts(t *testing.T) {
	ts := newTestServer(t)

	running := domain.NewDeployment(deployBody().Spec(uuid.New()))
	running.Advance(domain.DeployStateRunning)
	_ = ts.store.Create(context.Background(), running)

	inProgress := domain.NewDeployment(deployBody().Spec(uuid.New()))
	inProgress.Advance(domain.DeployStateDeployVM)
	_ = ts.store.Create(context.Background(), inProgress)

	for _, d := range []*domain.Deployment{running, inProgress} {
		rec := ts.do(t, http.MethodPost, "/api/v1/instances/"+d.InstanceID.String()+"/deploy", deployBody())
		if rec.Code != http.StatusConflict {
			t.Errorf("%s: expected 409, got %d", d.State, rec.Code)
		}
	}
}

func TestDeploy_ResetsFailed(t *testing.T) {
	ts := newTestServer(t)

	failed := domain.NewDeployment(deployBody().Spec(uuid.New()))
	failed.MarkFailed("no capacity")
	_ = ts.store.Create(context.Background(), failed)

	rec := ts.do(t, http.MethodPost, "/api/v1/instances/"+failed.InstanceID.String()+"/deploy", deployBody())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}

	d, _ := ts.store.Get(context.Background(), failed.InstanceID)
	if d.State != domain.DeployStateNoState || d.Error != "" {
		t.Errorf("failed deployment not reset: %+v", d)
	}
}

func TestDeploy_FailedWithResources(t *testing.T) {
	ts := newTestServer(t)

	failed := domain.NewDeployment(deployBody().Spec(uuid.New()))
	failed.Progress.AddDisk("d1")
	failed.MarkFailed("vmdriver.deploy failed")
	_ = ts.store.Create(context.Background(), failed)

	rec := ts.do(t, http.MethodPost, "/api/v1/instances/"+failed.InstanceID.String()+"/deploy", deployBody())
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeInvalidState {
		t.Errorf("expected %s, got %s", ErrCodeInvalidState, code)
	}
}

func TestDeploy_BrokerDown(t *testing.T) {
	ts := newTestServer(t)
	ts.dispatcher.err = errors.New("connection refused")
	id := uuid.New()
	path := "/api/v1/instances/" + id.String() + "/deploy"

	rec := ts.do(t, http.MethodPost, path, deployBody())
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}

	d, _ := ts.store.Get(context.Background(), id)
	if d.TaskID != "" {
		t.Errorf("unpublished task id should be cleared, got %s", d.TaskID)
	}

	// Брокер вернулся: запрос можно повторить
	ts.dispatcher.err = nil
	if rec := ts.do(t, http.MethodPost, path, deployBody()); rec.Code != http.StatusAccepted {
		t.Errorf("expected 202 after broker recovery, got %d", rec.Code)
	}
}

func TestDeploy_AlreadyQueued(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/instances/" + uuid.New().String() + "/deploy"

	rec := ts.do(t, http.MethodPost, path, deployBody())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	first := decodeData[TaskAccepted](t, rec)

	if rec := ts.do(t, http.MethodPost, path, deployBody()); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while queued, got %d", rec.Code)
	}
	if len(ts.dispatcher.sent) != 1 {
		t.Fatalf("expected 1 task sent, got %d", len(ts.dispatcher.sent))
	}

	// manager.deploy завершился, не сдвинув стадию
	ts.results.results[first.TaskID].State = domain.TaskStateFailure
	if rec := ts.do(t, http.MethodPost, path, deployBody()); rec.Code != http.StatusAccepted {
		t.Errorf("expected 202 after finished task, got %d", rec.Code)
	}
	if len(ts.dispatcher.sent) != 2 {
		t.Errorf("expected 2 tasks sent, got %d", len(ts.dispatcher.sent))
	}
}

func TestDeploy_KeepsManagerProgress(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()

	// manager успевает взять задачу до ответа API
	ts.dispatcher.onSend = func() {
		d, _ := ts.store.Get(context.Background(), id)
		d.Node = "node01"
		d.Advance(domain.DeployStatePrepare)
		d.Progress.AddDisk("d1")
		_ = ts.store.Update(context.Background(), d)
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/instances/"+id.String()+"/deploy", deployBody())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}

	d, _ := ts.store.Get(context.Background(), id)
	if d.State != domain.DeployStatePrepare || d.Node != "node01" || !d.Progress.HasDisk("d1") {
		t.Errorf("manager progress overwritten: %+v", d)
	}
}

func TestDestroy(t *testing.T) {
	ts := newTestServer(t)

	d := domain.NewDeployment(deployBody().Spec(uuid.New()))
	d.Advance(domain.DeployStateRunning)
	_ = ts.store.Create(context.Background(), d)

	rec := ts.do(t, http.MethodPost, "/api/v1/instances/"+d.InstanceID.String()+"/destroy", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	if ts.dispatcher.sent[0].task != tasks.ManagerDestroy {
		t.Errorf("expected manager.destroy, got %s", ts.dispatcher.sent[0].task)
	}

	if rec := ts.do(t, http.MethodPost, "/api/v1/instances/"+uuid.New().String()+"/destroy", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	d.Advance(domain.DeployStateDestroyed)
	_ = ts.store.Update(context.Background(), d)
	if rec := ts.do(t, http.MethodPost, "/api/v1/instances/"+d.InstanceID.String()+"/destroy", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestDestroy_KeepsManagerState(t *testing.T) {
	ts := newTestServer(t)

	d := domain.NewDeployment(deployBody().Spec(uuid.New()))
	d.Node = "node01"
	d.Progress.VM = true
	d.Progress.AddDisk("d1")
	d.Advance(domain.DeployStateRunning)
	_ = ts.store.Create(context.Background(), d)

	// manager уничтожает VM до ответа API
	ts.dispatcher.onSend = func() {
		cur, _ := ts.store.Get(context.Background(), d.InstanceID)
		cur.Progress = domain.Progress{}
		cur.Advance(domain.DeployStateDestroyed)
		_ = ts.store.Update(context.Background(), cur)
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/instances/"+d.InstanceID.String()+"/destroy", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	acc := decodeData[TaskAccepted](t, rec)

	got, _ := ts.store.Get(context.Background(), d.InstanceID)
	if got.State != domain.DeployStateDestroyed || !got.Progress.Empty() {
		t.Errorf("manager state overwritten: %+v", got)
	}
	if got.TaskID != acc.TaskID {
		t.Errorf("expected task id %s, got %s", acc.TaskID, got.TaskID)
	}
}

func TestGetInstance(t *testing.T) {
	ts := newTestServer(t)

	d := domain.NewDeployment(deployBody().Spec(uuid.New()))
	d.Node = "node01"
	d.Advance(domain.DeployStateBoot)
	_ = ts.store.Create(context.Background(), d)

	rec := ts.do(t, http.MethodGet, "/api/v1/instances/"+d.InstanceID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	inst := decodeData[InstanceResponse](t, rec)
	if inst.State != domain.DeployStateBoot || inst.Node != "node01" || inst.Name != "cloud-7" {
		t.Errorf("unexpected instance: %+v", inst)
	}

	if rec := ts.do(t, http.MethodGet, "/api/v1/instances/"+uuid.New().String(), nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

// --- Task Tests ---

func TestGetTask(t *testing.T) {
	ts := newTestServer(t)
	ts.results.results["abc"] = &domain.TaskResult{
		ID:    "abc",
		Task:  tasks.ManagerDeploy,
		State: domain.TaskStateProgress,
		Meta:  map[string]any{"state": "DEPLOY VM"},
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/tasks/abc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	task := decodeData[TaskResponse](t, rec)
	if task.State != domain.TaskStateProgress || task.Progress != "DEPLOY VM" || task.Ready {
		t.Errorf("unexpected task: %+v", task)
	}

	// неизвестный ID — PENDING
	rec = ts.do(t, http.MethodGet, "/api/v1/tasks/unknown", nil)
	if task := decodeData[TaskResponse](t, rec); task.State != domain.TaskStatePending {
		t.Errorf("expected PENDING, got %s", task.State)
	}

	ts.results.err = result.ErrNoBackend
	if rec := ts.do(t, http.MethodGet, "/api/v1/tasks/abc", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestListTasks(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/tasks?subsystem=vmdriver", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	defs := decodeData[[]TaskDefResponse](t, rec)
	if len(defs) == 0 {
		t.Fatal("expected vmdriver tasks")
	}
	for _, d := range defs {
		if d.Subsystem != tasks.SubsystemVM || d.QueueSuffix != "vm" {
			t.Errorf("unexpected def: %+v", d)
		}
	}
}

func TestGetTopology(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/topology", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	topo := decodeData[TopologyResponse](t, rec)
	if len(topo.Tiers) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(topo.Tiers))
	}
	if topo.Tiers[0].Exchange != "circle" || topo.Tiers[1].Exchange != "circle.slow" {
		t.Errorf("unexpected exchanges: %+v", topo.Tiers)
	}

	found := false
	for _, q := range topo.Tiers[0].Queues {
		if q.Name == "node01.vm" {
			found = true
		}
	}
	if !found {
		t.Errorf("node01.vm not in fast queues: %+v", topo.Tiers[0].Queues)
	}
}

// --- Middleware Tests ---

func TestRecovery(t *testing.T) {
	h := Chain(Recovery(NewHandler(Config{}).logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
