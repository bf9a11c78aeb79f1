// Package config загружает конфигурацию CIRCLE.
//
// Порядок: значения по умолчанию, затем YAML-файл, затем переменные
// окружения (RABBITMQ_URL, RABBITMQ_SLOW_URL, DB_URL, CIRCLE_HOSTNAME,
// RESULT_BACKEND, RESULT_CACHE_PATH, API_PORT, OPS_PORT). Результат
// проверяется go-playground/validator.
package config
