// Package result хранит состояния вызовов задач (result backend).
//
// Backend выбирается конфигурацией окружения:
//
//	none     — результаты не хранятся, вызывающий не может ждать ответа
//	cache    — встроенная BadgerDB с TTL на запись
//	database — таблица task_results в PostgreSQL
//
// Producer записывает PENDING до публикации, worker — STARTED, PROGRESS,
// RETRY и итоговый SUCCESS/FAILURE. Повторно доставленная задача,
// для которой уже записан SUCCESS, не выполняется второй раз.
package result
