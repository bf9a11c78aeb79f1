// Package telemetry обеспечивает наблюдаемость сервисов CIRCLE.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Все бинарники используют единый формат логирования
// и экспортируют метрики на /metrics рядом с /healthz.
package telemetry
