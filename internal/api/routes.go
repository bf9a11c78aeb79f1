package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Metrics(),
	)

	// Instances
	mux.Handle("POST /api/v1/instances/{id}/deploy", chain(http.HandlerFunc(h.Deploy)))
	mux.Handle("POST /api/v1/instances/{id}/destroy", chain(http.HandlerFunc(h.Destroy)))
	mux.Handle("GET /api/v1/instances/{id}", chain(http.HandlerFunc(h.GetInstance)))

	// Tasks
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("GET /api/v1/tasks/{id}", chain(http.HandlerFunc(h.GetTask)))

	// Topology
	mux.Handle("GET /api/v1/topology", chain(http.HandlerFunc(h.GetTopology)))
}
