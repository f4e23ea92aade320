package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter — лимитер для одного процесса. Счётчики живут в памяти и
// чистятся лениво при обращениях, фонового тикера нет.
type MemoryLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	counters    map[string]*windowCounter
	lastCleanup time.Time
}

type windowCounter struct {
	hits    int
	resetAt time.Time
}

func NewMemory(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:       limit,
		window:      window,
		counters:    make(map[string]*windowCounter),
		lastCleanup: time.Now(),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) >= l.window {
		for k, c := range l.counters {
			if now.After(c.resetAt) {
				delete(l.counters, k)
			}
		}
		l.lastCleanup = now
	}

	c, ok := l.counters[key]
	if !ok || now.After(c.resetAt) {
		l.counters[key] = &windowCounter{hits: 1, resetAt: now.Add(l.window)}
		return true, 0, nil
	}

	if c.hits >= l.limit {
		retryAfter := c.resetAt.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}

	c.hits++
	return true, 0, nil
}
