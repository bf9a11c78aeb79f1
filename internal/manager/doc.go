// Package manager реализует задачи manager.*: развёртывание и уничтожение VM
// и периодическую уборку.
//
// # Развёртывание
//
// API создаёт запись Deployment в стадии NOSTATE и ставит manager.deploy.
// Обработчик проводит её по стадиям:
//
//	PENDING    — выбор узла (Placer, по умолчанию LeastLoaded)
//	PREPARE    — storagedriver.create для каждого диска (параллельно) и контекстного диска
//	DEPLOY VM  — vmdriver.deploy
//	DEPLOY NET — netdriver.create для каждого интерфейса
//	BOOT       — vmdriver.resume
//	RUNNING
//
// Стадия сохраняется и сообщается через UpdateState до удалённых вызовов.
// Выполненные подшаги записываются в Deployment.Progress, поэтому повторная
// доставка продолжает с места остановки и не создаёт ресурсы дважды.
//
// FAILURE драйвера переводит развёртывание в FAILED. Отката нет: созданные
// ресурсы освобождает manager.destroy, который удаляет всё, что записано
// в прогрессе.
//
// # Уборка
//
// manager.garbage_collector (slow tier, каждые 10 минут) переводит в FAILED
// развёртывания, зависшие в одной стадии дольше StuckTimeout, и удаляет
// старые результаты задач.
package manager
