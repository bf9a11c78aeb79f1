// Package dispatch — клиент постановки задач в брокеры.
//
// Client создаётся явно при старте процесса и передаётся всем компонентам,
// которые ставят задачи (API, manager, beat). Глобального клиента нет.
//
// Поток вызова:
//
//	Send(name, host, args...)
//	  → catalog.Lookup(name) + Def.Check(args)
//	  → topology.Route(def, host)        (fast или slow по tier задачи)
//	  → backend.Store(PENDING)
//	  → publisher(tier).Publish(route, signature)
//	  → AsyncResult{ID}
//
// Постановка для вызывающего fire-and-forget. Кому нужен результат,
// опрашивает result backend через AsyncResult.Wait.
package dispatch
