// Package tasks описывает контракт именования задач.
//
// Задача идентифицируется строкой с префиксом подсистемы
// (storagedriver.create, agent.change_password, firewall.reload_firewall)
// и принимает позиционные аргументы. Имя задачи — это wire-контракт
// между производителем (manager, api) и воркерами на узлах, которые
// могут быть написаны на другом языке. Имена никогда не переименовываются.
//
// Структура:
//   - def.go       — Def, Tier, Subsystem
//   - catalog.go   — Catalog (регистрация, поиск, проверка уникальности)
//   - builtin.go   — встроенный каталог CIRCLE
//   - signature.go — тело сообщения (совместимо с Celery protocol v1)
package tasks
