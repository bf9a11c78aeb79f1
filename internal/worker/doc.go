// Package worker — runtime обработчиков задач на стороне consumer'а.
//
// # Обзор
//
// Worker слушает очереди одного хоста и одного tier (fast или slow),
// разбирает вызовы задач и выполняет зарегистрированные обработчики.
// Состояние каждого вызова пишется в result backend, откуда его читает
// вызывающий (dispatch.AsyncResult).
//
//	registry := worker.NewRegistry(tasks.Default())
//	registry.MustRegister(tasks.ManagerDeploy, mgr.Deploy)
//
//	w := worker.New(worker.Config{
//	    Conn:     fastConn,
//	    Topology: topology,
//	    Host:     "localhost",
//	    Tier:     tasks.TierFast,
//	    Registry: registry,
//	    Backend:  backend,
//	})
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Обработка вызова
//
//  1. Поиск обработчика по имени задачи
//  2. Проверка Expires и ожидание ETA
//  3. Если в backend уже SUCCESS — ack без выполнения (повторная доставка)
//  4. STARTED → выполнение с повторами → SUCCESS или FAILURE
//  5. Ack
//
// Обработчик сообщает промежуточные стадии через TaskContext.UpdateState,
// что записывает PROGRESS с meta {"state": ...}.
//
// # Retry
//
// Повторы выполняются в процессе, количество берётся из Def.MaxRetries.
// Стратегии backoff:
//   - "exponential": delay = initialDelay * 2^(attempt-1), capped at maxDelay
//   - "fixed": delay = initialDelay
//
// Ошибки, обёрнутые в Permanent, не повторяются.
//
// # Ошибки
//
// Ошибка обработчика — это FAILURE в backend и ack сообщения.
// Сообщение возвращается в очередь только если не удалось записать
// результат или воркер останавливается посреди выполнения.
package worker
