package domain

// DeployState — стадия развёртывания VM.
//
// Жизненный цикл:
//
//	NOSTATE → PENDING → PREPARE → DEPLOY VM → DEPLOY NET → BOOT → RUNNING
//	                  ↘ FAILED (из любой нетерминальной стадии)
//	RUNNING / FAILED → DESTROYED
//
// Строки стадий совпадают с тем, что отдаётся через update_state,
// поэтому их нельзя менять.
type DeployState string

const (
	// DeployStateNoState — запрос принят, manager ещё не брал его в работу.
	DeployStateNoState DeployState = "NOSTATE"

	// DeployStatePending — выбор узла.
	DeployStatePending DeployState = "PENDING"

	// DeployStatePrepare — создание дисков и контекста.
	DeployStatePrepare DeployState = "PREPARE"

	// DeployStateDeployVM — создание домена на гипервизоре.
	DeployStateDeployVM DeployState = "DEPLOY VM"

	// DeployStateDeployNet — подключение сетевых интерфейсов.
	DeployStateDeployNet DeployState = "DEPLOY NET"

	// DeployStateBoot — запуск домена.
	DeployStateBoot DeployState = "BOOT"

	// DeployStateRunning — VM работает.
	DeployStateRunning DeployState = "RUNNING"

	// DeployStateFailed — развёртывание прервано ошибкой.
	DeployStateFailed DeployState = "FAILED"

	// DeployStateDestroyed — ресурсы VM освобождены.
	DeployStateDestroyed DeployState = "DESTROYED"
)

// deployPipeline — порядок стадий развёртывания.
var deployPipeline = []DeployState{
	DeployStateNoState,
	DeployStatePending,
	DeployStatePrepare,
	DeployStateDeployVM,
	DeployStateDeployNet,
	DeployStateBoot,
	DeployStateRunning,
}

// DeployPipeline возвращает стадии развёртывания по порядку.
func DeployPipeline() []DeployState {
	return append([]DeployState(nil), deployPipeline...)
}

// Index возвращает позицию стадии в конвейере (-1 для FAILED/DESTROYED).
func (s DeployState) Index() int {
	for i, st := range deployPipeline {
		if st == s {
			return i
		}
	}
	return -1
}

// Next возвращает следующую стадию конвейера.
// Для RUNNING и вне конвейера возвращает саму стадию.
func (s DeployState) Next() DeployState {
	i := s.Index()
	if i < 0 || i == len(deployPipeline)-1 {
		return s
	}
	return deployPipeline[i+1]
}

// IsTerminal возвращает true, если развёртывание больше не продвигается.
func (s DeployState) IsTerminal() bool {
	switch s {
	case DeployStateRunning, DeployStateFailed, DeployStateDestroyed:
		return true
	default:
		return false
	}
}

// Valid проверяет, что стадия известна.
func (s DeployState) Valid() bool {
	return s.Index() >= 0 || s == DeployStateFailed || s == DeployStateDestroyed
}

// HoldsResources возвращает true, если на узле могут быть заняты ресурсы.
func (s DeployState) HoldsResources() bool {
	return s != DeployStateFailed && s != DeployStateDestroyed && s != DeployStateNoState
}
