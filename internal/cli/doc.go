// Package cli реализует circlectl, инструмент командной строки CIRCLE.
//
// # Обзор
//
// CLI работает с API через HTTP и не импортирует внутренние пакеты.
// Используется для запуска и уничтожения VM и для просмотра задач.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для CIRCLE API: разбор DataResponse/ListResponse/ErrorResponse
// и опрос состояния вызова до готовности (WaitTask).
//
//	client := cli.NewClient("http://localhost:8080")
//	inst, err := client.GetInstance(id)
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные идут в stdout, сообщения в stderr:
// circlectl task list --json | jq .
//
// ## Commands
//
//   - instance: deploy, destroy, show
//   - task: list, status [--wait]
//   - topology
//
// Каждая группа создаётся фабричной функцией (NewInstanceCmd и т.д.),
// принимающей clientFn и outputFn для ленивого создания Client и Output
// после разбора PersistentFlags.
package cli
