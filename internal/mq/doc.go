// Package mq предоставляет инфраструктуру для работы с брокером (AMQP).
//
// Структура:
//   - connection.go — соединение с брокером (reconnect, graceful shutdown)
//   - topology.go   — exchanges, очереди по хостам и tier, dead-letter
//   - publisher.go  — публикация вызовов задач
//   - consumer.go   — потребление вызовов с ручным ack
//
// Брокеров два: fast (exchange "circle") и slow (exchange "circle.slow").
// Очереди именуются "<host>.<suffix>" и "<host>.<suffix>.slow":
//
//	circle (direct, fast)
//	├── localhost.man       → manager.deploy, manager.destroy
//	├── node01.vm           → vmdriver.*
//	├── node01.storage      → storagedriver.*
//	└── ...
//	circle.slow (direct, slow)
//	├── localhost.man.slow  → manager.garbage_collector
//	└── node01.storage.slow → storagedriver.make_free_space, ...
//
// Неразбираемые сообщения и сообщения, упавшие повторно, уходят в
// dlq.tasks / dlq.tasks.slow.
package mq
