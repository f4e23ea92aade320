package rate

import (
	"context"
	"time"
)

// Limiter — фиксированное окно на ключ (обычно IP или user id). Возвращает,
// пропущен ли запрос, и через сколько можно повторить, если нет.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}
