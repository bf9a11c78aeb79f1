package worker

import "time"

// RetryPolicy — параметры повторов обработчика.
//
// Количество повторов берётся из Def.MaxRetries задачи; политика задаёт
// только задержки между попытками.
type RetryPolicy struct {
	// Backoff — "exponential" или "fixed".
	Backoff string

	// InitialDelay — задержка перед первым повтором (default: 1s).
	InitialDelay time.Duration

	// MaxDelay — верхняя граница задержки (default: 30s).
	MaxDelay time.Duration
}

// DefaultRetryPolicy — экспоненциальные задержки 1s, 2s, 4s ... до 30s.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Backoff:      "exponential",
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// calculateBackoff вычисляет задержку перед повтором attempt (начиная с 1).
func calculateBackoff(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil {
		return time.Second
	}

	initialDelay := policy.InitialDelay
	if initialDelay <= 0 {
		initialDelay = time.Second
	}

	maxDelay := policy.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	var delay time.Duration
	switch policy.Backoff {
	case "exponential":
		// delay = initialDelay * 2^(attempt-1)
		delay = initialDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
				break
			}
		}
	default:
		delay = initialDelay
	}

	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}
