package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shaiso/circle/internal/dispatch"
	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/repo"
	"github.com/shaiso/circle/internal/result"
	"github.com/shaiso/circle/internal/tasks"
)

// Deploy принимает запрос на развёртывание и ставит manager.deploy.
// POST /api/v1/instances/{id}/deploy
//
// Новое развёртывание создаётся в NOSTATE; FAILED и DESTROYED
// сбрасываются с новой спецификацией. Идущее, уже поставленное или
// RUNNING — конфликт, FAILED с созданными ресурсами сначала нужно уничтожить.
func (h *Handler) Deploy(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid instance id")
		return
	}

	var req DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		BadRequest(w, validationMessage(err))
		return
	}
	spec := req.Spec(id)

	// ID вызова записывается в развёртывание до публикации: после Send
	// строкой владеет manager
	taskID := uuid.NewString()

	d, err := h.deployments.Get(r.Context(), id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		d = domain.NewDeployment(spec)
		d.TaskID = taskID
		if err := h.deployments.Create(r.Context(), d); HandleRepoError(w, h.logger, err, "") {
			return
		}

	case err != nil:
		InternalError(w, h.logger, err)
		return

	case d.State == domain.DeployStateRunning:
		Conflict(w, "instance is already running")
		return

	case d.State.HoldsResources() && !d.State.IsTerminal():
		Conflict(w, fmt.Sprintf("deployment in progress: %s", d.State))
		return

	case d.HoldsResources():
		InvalidState(w, "failed deployment still holds resources, destroy it first")
		return

	default:
		// NOSTATE, FAILED, DESTROYED
		if d.State == domain.DeployStateNoState && d.TaskID != "" {
			queued, err := h.queued(r, d.TaskID)
			if err != nil {
				h.resultError(w, err)
				return
			}
			if queued {
				Conflict(w, "deployment is already queued")
				return
			}
		}

		d.Reset(spec)
		d.TaskID = taskID
		if err := h.deployments.Update(r.Context(), d); HandleRepoError(w, h.logger, err, "instance not found") {
			return
		}
	}

	h.enqueue(w, r, d, taskID, tasks.ManagerDeploy)
}

// Destroy ставит manager.destroy.
// POST /api/v1/instances/{id}/destroy
func (h *Handler) Destroy(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid instance id")
		return
	}

	d, err := h.deployments.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "instance not found") {
		return
	}
	if d.State == domain.DeployStateDestroyed {
		InvalidState(w, "instance is already destroyed")
		return
	}

	taskID := uuid.NewString()
	if err := h.deployments.SetTaskID(r.Context(), d.InstanceID, taskID); HandleRepoError(w, h.logger, err, "instance not found") {
		return
	}

	h.enqueue(w, r, d, taskID, tasks.ManagerDestroy)
}

// GetInstance возвращает состояние развёртывания.
// GET /api/v1/instances/{id}
func (h *Handler) GetInstance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid instance id")
		return
	}

	d, err := h.deployments.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "instance not found") {
		return
	}

	Success(w, InstanceFromDomain(*d))
}

// enqueue публикует задачу manager'у с заранее записанным ID вызова.
// Развёртывание после публикации не перезаписывается.
func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, d *domain.Deployment, taskID, task string) {
	_, err := h.dispatcher.SendWith(r.Context(), dispatch.Call{
		ID:   taskID,
		Task: task,
		Host: h.managerHost,
		Args: []any{d.InstanceID.String()},
	})
	if err != nil {
		h.logger.Error("failed to enqueue task", "task", task, "instance_id", d.InstanceID, "error", err)

		// Вызов не опубликован: повторный запрос не должен считать его в очереди
		if err := h.deployments.SetTaskID(r.Context(), d.InstanceID, ""); err != nil {
			h.logger.Warn("failed to clear task id", "task_id", taskID, "instance_id", d.InstanceID, "error", err)
		}

		Unavailable(w, "failed to enqueue task")
		return
	}

	h.logger.Info("task enqueued", "task", task, "task_id", taskID, "instance_id", d.InstanceID)

	Accepted(w, TaskAccepted{
		InstanceID: d.InstanceID,
		TaskID:     taskID,
		Task:       task,
		State:      d.State,
	})
}

// queued проверяет, ждёт ли вызов taskID выполнения.
// Неизвестный вызов не считается поставленным.
func (h *Handler) queued(r *http.Request, taskID string) (bool, error) {
	res, err := h.results.Get(r.Context(), taskID)
	if errors.Is(err, result.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !res.State.Ready(), nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return fmt.Sprintf("field %s failed %q", fe.Namespace(), fe.Tag())
}
