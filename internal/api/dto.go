package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/mq"
	"github.com/shaiso/circle/internal/tasks"
)

// Instance DTOs

// DeployRequest — запрос на развёртывание VM.
type DeployRequest struct {
	Name       string                 `json:"name" validate:"required,max=64"`
	Memory     int                    `json:"memory" validate:"required,gt=0"`
	VCPUs      int                    `json:"vcpus" validate:"required,gt=0"`
	Node       string                 `json:"node,omitempty" validate:"omitempty,hostname_rfc1123"`
	Disks      []domain.DiskSpec      `json:"disks" validate:"dive"`
	Interfaces []domain.InterfaceSpec `json:"interfaces" validate:"dive"`
	Context    map[string]any         `json:"context,omitempty"`
}

// Spec собирает domain.InstanceSpec для instance id.
func (r DeployRequest) Spec(id uuid.UUID) domain.InstanceSpec {
	return domain.InstanceSpec{
		ID:         id,
		Name:       r.Name,
		Memory:     r.Memory,
		VCPUs:      r.VCPUs,
		Node:       r.Node,
		Disks:      r.Disks,
		Interfaces: r.Interfaces,
		Context:    r.Context,
	}
}

// TaskAccepted — ответ на постановку deploy/destroy.
type TaskAccepted struct {
	InstanceID uuid.UUID          `json:"instance_id"`
	TaskID     string             `json:"task_id"`
	Task       string             `json:"task"`
	State      domain.DeployState `json:"state"`
}

// InstanceResponse — состояние развёртывания.
type InstanceResponse struct {
	InstanceID uuid.UUID          `json:"instance_id"`
	Name       string             `json:"name"`
	State      domain.DeployState `json:"state"`
	Node       string             `json:"node,omitempty"`
	Memory     int                `json:"memory"`
	VCPUs      int                `json:"vcpus"`
	Progress   domain.Progress    `json:"progress"`
	TaskID     string             `json:"task_id,omitempty"`
	Error      string             `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// InstanceFromDomain конвертирует domain.Deployment в InstanceResponse.
func InstanceFromDomain(d domain.Deployment) InstanceResponse {
	return InstanceResponse{
		InstanceID: d.InstanceID,
		Name:       d.Spec.Name,
		State:      d.State,
		Node:       d.Node,
		Memory:     d.Spec.Memory,
		VCPUs:      d.Spec.VCPUs,
		Progress:   d.Progress,
		TaskID:     d.TaskID,
		Error:      d.Error,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
		FinishedAt: d.FinishedAt,
	}
}

// Task DTOs

// TaskResponse — состояние вызова задачи.
type TaskResponse struct {
	ID        string           `json:"id"`
	Task      string           `json:"task,omitempty"`
	State     domain.TaskState `json:"state"`
	Progress  string           `json:"progress,omitempty"`
	Result    any              `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	Retries   int              `json:"retries"`
	Ready     bool             `json:"ready"`
	UpdatedAt *time.Time       `json:"updated_at,omitempty"`
}

// TaskFromDomain конвертирует domain.TaskResult в TaskResponse.
func TaskFromDomain(r domain.TaskResult) TaskResponse {
	resp := TaskResponse{
		ID:       r.ID,
		Task:     r.Task,
		State:    r.State,
		Progress: r.Progress(),
		Result:   r.Result,
		Error:    r.Error,
		Retries:  r.Retries,
		Ready:    r.State.Ready(),
	}
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		resp.UpdatedAt = &t
	}
	return resp
}

// TaskDefResponse — задача каталога и её очередь.
type TaskDefResponse struct {
	tasks.Def
	QueueSuffix string `json:"queue_suffix"`
}

// Topology DTOs

// TopologyResponse — exchanges и очереди обоих брокеров.
type TopologyResponse struct {
	Tiers []TierResponse `json:"tiers"`
}

// TierResponse — один брокер.
type TierResponse struct {
	Tier        tasks.Tier     `json:"tier"`
	Exchange    string         `json:"exchange"`
	DeadLetters string         `json:"dead_letters"`
	Queues      []mq.QueueDecl `json:"queues"`
}

// TopologyFromDomain описывает топологию для ответа.
func TopologyFromDomain(t *mq.Topology) TopologyResponse {
	var resp TopologyResponse
	for _, tier := range []tasks.Tier{tasks.TierFast, tasks.TierSlow} {
		resp.Tiers = append(resp.Tiers, TierResponse{
			Tier:        tier,
			Exchange:    t.Exchange(tier),
			DeadLetters: mq.DLQName(tier),
			Queues:      t.Queues(tier),
		})
	}
	return resp
}
