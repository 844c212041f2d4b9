package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	localMaxKeys = 10_000
	localIdleTTL = 15 * time.Minute
)

// LocalBucket is the per-process fallback when redis is absent or failing.
// Idle keys are evicted so the map cannot grow without bound.
type LocalBucket struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	now      func() time.Time
}

func NewLocalBucket() *LocalBucket {
	return &LocalBucket{
		limiters: expirable.NewLRU[string, *rate.Limiter](localMaxKeys, nil, localIdleTTL),
		now:      time.Now,
	}
}

func (b *LocalBucket) Allow(key string, r float64, burst int) (Decision, error) {
	if err := checkParams(key, r, burst); err != nil {
		return Decision{}, err
	}

	b.mu.Lock()
	lim, ok := b.limiters.Get(key)
	if !ok || lim.Burst() != burst || lim.Limit() != rate.Limit(r) {
		lim = rate.NewLimiter(rate.Limit(r), burst)
	}
	// re-adding refreshes the idle ttl
	b.limiters.Add(key, lim)
	b.mu.Unlock()

	now := b.now()
	allowed := lim.AllowN(now, 1)
	remaining := lim.TokensAt(now)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:    allowed,
		Limit:      burst,
		Remaining:  int(remaining),
		RetryAfter: retryAfter(allowed, remaining, r),
	}, nil
}
