package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per key, e.g. per exchange or per client.
type Limiter struct {
	mu  sync.Mutex
	m   map[string]*rate.Limiter
	now func() time.Time
}

func New() *Limiter { return &Limiter{m: make(map[string]*rate.Limiter), now: time.Now} }

// Allow reports whether one request for key may proceed now.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	return l.get(key, capacity, refillPerSec).AllowN(l.now(), 1)
}

// Wait blocks until a request for key may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string, capacity, refillPerSec float64) error {
	return l.get(key, capacity, refillPerSec).Wait(ctx)
}

// get returns the bucket for key, created on first use. A non-positive
// capacity or rate means unlimited; a fractional capacity still admits one
// request at a time.
func (l *Limiter) get(key string, capacity, refillPerSec float64) *rate.Limiter {
	limit, burst := rate.Inf, 0
	if capacity > 0 && refillPerSec > 0 {
		limit = rate.Limit(refillPerSec)
		burst = int(math.Max(1, math.Ceil(capacity)))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.m[key]
	if !ok {
		lim = rate.NewLimiter(limit, burst)
		l.m[key] = lim
		return lim
	}
	if lim.Limit() != limit || lim.Burst() != burst {
		now := l.now()
		lim.SetLimitAt(now, limit)
		lim.SetBurstAt(now, burst)
	}
	return lim
}
