package dependency

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyLimiter bounds simultaneous executions per command, so a burst of
// plate requests cannot starve ffmpeg of CPU or load several diarization models at once.
type ConcurrencyLimiter struct {
	mu         sync.Mutex
	semaphores map[string]*semaphore.Weighted
	limits     map[string]int
}

// NewConcurrencyLimiter creates a limiter; commands missing from limits get a limit of 1.
func NewConcurrencyLimiter(limits map[string]int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{
		semaphores: make(map[string]*semaphore.Weighted),
		limits:     limits,
	}
}

func (l *ConcurrencyLimiter) semaphoreFor(command string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.semaphores[command]
	if !ok {
		n := l.limits[command]
		if n <= 0 {
			n = 1
		}
		sem = semaphore.NewWeighted(int64(n))
		l.semaphores[command] = sem
	}
	return sem
}

// Acquire blocks until a slot for command is free or ctx is done.
func (l *ConcurrencyLimiter) Acquire(ctx context.Context, command string) error {
	if err := l.semaphoreFor(command).Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire execution slot for %s: %w", command, err)
	}
	return nil
}

// Release frees a slot taken by Acquire.
func (l *ConcurrencyLimiter) Release(command string) {
	l.semaphoreFor(command).Release(1)
}
