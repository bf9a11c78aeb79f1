package api

import (
	"errors"
	"net/http"

	"github.com/shaiso/circle/internal/domain"
	"github.com/shaiso/circle/internal/result"
)

// GetTask возвращает состояние вызова задачи.
// GET /api/v1/tasks/{id}
//
// Неизвестный ID — PENDING: вызов мог ещё не дойти до backend'а.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		BadRequest(w, "invalid task id")
		return
	}

	res, err := h.results.Get(r.Context(), id)
	switch {
	case errors.Is(err, result.ErrNotFound):
		Success(w, TaskFromDomain(domain.TaskResult{ID: id, State: domain.TaskStatePending}))
	case err != nil:
		h.resultError(w, err)
	default:
		Success(w, TaskFromDomain(*res))
	}
}

// resultError пишет ответ для ошибки result backend'а.
func (h *Handler) resultError(w http.ResponseWriter, err error) {
	if errors.Is(err, result.ErrNoBackend) {
		Unavailable(w, "result backend is disabled")
		return
	}
	InternalError(w, h.logger, err)
}

// ListTasks возвращает каталог задач.
// GET /api/v1/tasks?subsystem=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	catalog := h.dispatcher.Catalog()

	defs := catalog.Defs()
	out := make([]TaskDefResponse, 0, len(defs))
	sub := r.URL.Query().Get("subsystem")
	for _, def := range defs {
		if sub != "" && string(def.Subsystem) != sub {
			continue
		}
		out = append(out, TaskDefResponse{Def: def, QueueSuffix: def.Subsystem.QueueSuffix()})
	}

	List(w, out, len(out))
}

// GetTopology возвращает exchanges и очереди брокеров.
// GET /api/v1/topology
func (h *Handler) GetTopology(w http.ResponseWriter, _ *http.Request) {
	Success(w, TopologyFromDomain(h.dispatcher.Topology()))
}
