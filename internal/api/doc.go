// Package api содержит HTTP API приёма запросов на развёртывание.
//
// Структура:
//   - handler.go          — Handler с DI (хранилище, dispatch, result backend)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (recovery, logging, metrics)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - instance_handler.go — deploy/destroy/состояние instance
//   - task_handler.go     — состояние вызовов, каталог задач, топология
//
// Сам API ничего не разворачивает: он записывает развёртывание
// и ставит manager.deploy / manager.destroy в очередь manager'а.
package api
