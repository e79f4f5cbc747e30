package middleware

import (
	"context"
	"sync"
	"time"
)

// RateLimitStore counts hits per key inside fixed windows.
type RateLimitStore interface {
	// Hit records one request for key and returns the number of requests seen in the
	// current window together with the time left until that window resets.
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type windowCounter struct {
	count   int64
	resetAt time.Time
}

// RateLimitManager keeps fixed-window counters in memory with lifecycle control.
type RateLimitManager struct {
	visitors   map[string]*windowCounter
	visitorsMu sync.Mutex
	now        func() time.Time
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewRateLimitManager creates a new rate limit manager with context-based lifecycle
func NewRateLimitManager(ctx context.Context) *RateLimitManager {
	return newRateLimitManager(ctx, time.Now, time.Minute)
}

func newRateLimitManager(ctx context.Context, now func() time.Time, cleanupInterval time.Duration) *RateLimitManager {
	managerCtx, cancel := context.WithCancel(ctx)

	m := &RateLimitManager{
		visitors: make(map[string]*windowCounter),
		now:      now,
		ctx:      managerCtx,
		cancel:   cancel,
	}

	m.wg.Add(1)
	go m.cleanupLoop(cleanupInterval)

	return m
}

// Hit implements RateLimitStore. A window opens on the first hit of a key and
// lasts for window regardless of later traffic.
func (m *RateLimitManager) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	m.visitorsMu.Lock()
	defer m.visitorsMu.Unlock()

	now := m.now()
	v, exists := m.visitors[key]
	if !exists || !now.Before(v.resetAt) {
		v = &windowCounter{resetAt: now.Add(window)}
		m.visitors[key] = v
	}

	v.count++
	return v.count, v.resetAt.Sub(now), nil
}

// cleanupLoop periodically removes expired windows
func (m *RateLimitManager) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *RateLimitManager) cleanup() {
	m.visitorsMu.Lock()
	defer m.visitorsMu.Unlock()

	now := m.now()
	for key, v := range m.visitors {
		if !now.Before(v.resetAt) {
			delete(m.visitors, key)
		}
	}
}

func (m *RateLimitManager) size() int {
	m.visitorsMu.Lock()
	defer m.visitorsMu.Unlock()
	return len(m.visitors)
}

// Shutdown stops the cleanup goroutine and waits for it to finish
func (m *RateLimitManager) Shutdown() error {
	m.cancel()
	m.wg.Wait()
	return nil
}
