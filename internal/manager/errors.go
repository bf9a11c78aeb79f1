package manager

import "errors"

// Ошибки manager'а.
var (
	// ErrInvalidInstanceID — аргумент instance_id не UUID.
	ErrInvalidInstanceID = errors.New("invalid instance id")

	// ErrDeploymentNotFound — развёртывания для instance нет.
	ErrDeploymentNotFound = errors.New("deployment not found")

	// ErrDeploymentFailed — развёртывание уже в FAILED; нужен новый запрос deploy.
	ErrDeploymentFailed = errors.New("deployment failed")

	// ErrDeploymentDestroyed — instance уже уничтожен.
	ErrDeploymentDestroyed = errors.New("deployment destroyed")

	// ErrInstanceBusy — instance уже обрабатывается в этом процессе.
	ErrInstanceBusy = errors.New("instance is being processed")

	// ErrNoCapacity — ни один узел не вмещает VM.
	ErrNoCapacity = errors.New("no node with enough capacity")

	// ErrUnknownNode — узел не описан в конфигурации.
	ErrUnknownNode = errors.New("unknown node")
)
