package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Deployment — персистентное состояние развёртывания одного instance.
//
// Deployment создаётся API при запросе deploy и продвигается manager'ом.
// Стадия сохраняется до выполнения удалённых вызовов, а выполненные
// подшаги — после, поэтому повторно доставленный manager.deploy продолжает
// с того места, где остановился.
type Deployment struct {
	// InstanceID — идентификатор instance.
	InstanceID uuid.UUID `json:"instance_id"`

	// Spec — описание VM.
	Spec InstanceSpec `json:"spec"`

	// State — текущая стадия.
	State DeployState `json:"state"`

	// Node — выбранный узел (пусто до стадии PENDING).
	Node string `json:"node,omitempty"`

	// Progress — выполненные подшаги.
	Progress Progress `json:"progress"`

	// TaskID — ID последнего вызова manager.deploy / manager.destroy.
	TaskID string `json:"task_id,omitempty"`

	// Error — текст ошибки для FAILED.
	Error string `json:"error,omitempty"`

	// CreatedAt — время приёма запроса.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего перехода.
	UpdatedAt time.Time `json:"updated_at"`

	// FinishedAt — время перехода в терминальную стадию.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Progress — выполненные подшаги развёртывания.
type Progress struct {
	// Disks — ID созданных дисков (включая ContextDiskID).
	Disks []string `json:"disks,omitempty"`

	// VM — домен создан на гипервизоре.
	VM bool `json:"vm,omitempty"`

	// Interfaces — MAC подключённых интерфейсов.
	Interfaces []string `json:"interfaces,omitempty"`
}

// HasDisk проверяет, создан ли диск.
func (p *Progress) HasDisk(id string) bool {
	return slices.Contains(p.Disks, id)
}

// AddDisk отмечает диск созданным.
func (p *Progress) AddDisk(id string) {
	if !p.HasDisk(id) {
		p.Disks = append(p.Disks, id)
	}
}

// RemoveDisk убирает диск из прогресса.
func (p *Progress) RemoveDisk(id string) {
	p.Disks = slices.DeleteFunc(p.Disks, func(d string) bool { return d == id })
}

// HasInterface проверяет, подключён ли интерфейс.
func (p *Progress) HasInterface(mac string) bool {
	return slices.Contains(p.Interfaces, mac)
}

// AddInterface отмечает интерфейс подключённым.
func (p *Progress) AddInterface(mac string) {
	if !p.HasInterface(mac) {
		p.Interfaces = append(p.Interfaces, mac)
	}
}

// RemoveInterface убирает интерфейс из прогресса.
func (p *Progress) RemoveInterface(mac string) {
	p.Interfaces = slices.DeleteFunc(p.Interfaces, func(m string) bool { return m == mac })
}

// Empty возвращает true, если на узле ничего не создано.
func (p *Progress) Empty() bool {
	return len(p.Disks) == 0 && len(p.Interfaces) == 0 && !p.VM
}

// NewDeployment создаёт запрос на развёртывание в стадии NOSTATE.
func NewDeployment(spec InstanceSpec) *Deployment {
	now := time.Now()
	return &Deployment{
		InstanceID: spec.ID,
		Spec:       spec,
		State:      DeployStateNoState,
		Node:       spec.Node,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Advance переводит развёртывание в стадию state.
func (d *Deployment) Advance(state DeployState) {
	now := time.Now()
	d.State = state
	d.UpdatedAt = now
	if state.IsTerminal() {
		d.FinishedAt = &now
	}
}

// MarkFailed переводит развёртывание в FAILED.
func (d *Deployment) MarkFailed(err string) {
	d.Error = err
	d.Advance(DeployStateFailed)
}

// Reset готовит развёртывание к повторному запуску с новой спецификацией.
func (d *Deployment) Reset(spec InstanceSpec) {
	now := time.Now()
	d.Spec = spec
	d.State = DeployStateNoState
	d.Node = spec.Node
	d.Progress = Progress{}
	d.Error = ""
	d.UpdatedAt = now
	d.FinishedAt = nil
}

// HoldsResources возвращает true, если развёртывание занимает ресурсы узла.
// FAILED без отката держит всё, что успело создать, до manager.destroy.
func (d *Deployment) HoldsResources() bool {
	if d.State == DeployStateFailed {
		return !d.Progress.Empty()
	}
	return d.State.HoldsResources()
}

// Stuck проверяет, висит ли развёртывание в нетерминальной стадии дольше timeout.
func (d *Deployment) Stuck(now time.Time, timeout time.Duration) bool {
	return !d.State.IsTerminal() && now.Sub(d.UpdatedAt) > timeout
}

// Duration возвращает время от приёма запроса до завершения.
func (d *Deployment) Duration() time.Duration {
	if d.FinishedAt == nil {
		return 0
	}
	return d.FinishedAt.Sub(d.CreatedAt)
}
