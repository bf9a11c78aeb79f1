package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TasksPublished — опубликованные вызовы задач.
	TasksPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "circle",
		Name:      "tasks_published_total",
		Help:      "Task invocations published to the broker.",
	}, []string{"task", "tier"})

	// TasksProcessed — обработанные worker'ом вызовы по итоговому состоянию.
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "circle",
		Name:      "tasks_processed_total",
		Help:      "Task invocations processed by workers.",
	}, []string{"task", "state"})

	// TaskDuration — время выполнения обработчика задачи.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "circle",
		Name:      "task_duration_seconds",
		Help:      "Task handler execution time.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"task"})

	// DeployTransitions — переходы стадий развёртывания.
	DeployTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "circle",
		Name:      "deploy_transitions_total",
		Help:      "Deployment stage transitions.",
	}, []string{"state"})

	// HTTPRequests — запросы к API.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "circle",
		Name:      "http_requests_total",
		Help:      "HTTP requests served by the API.",
	}, []string{"method", "status"})
)

// OpsMux возвращает mux с /healthz и /metrics.
func OpsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}
