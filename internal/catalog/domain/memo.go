package domain

import (
	"context"
	"errors"
	"sync"
)

// Memo caches resolutions, including RATE_NOT_FOUND, for one unit of work.
// Storage errors are never cached.
type Memo struct {
	inner Resolver

	mu      sync.Mutex
	cache   map[RateKey]memoEntry
	visible map[RateKey]bool
	calls   int
}

type memoEntry struct {
	rate Rate
	err  error
}

func NewMemo(inner Resolver) *Memo {
	return &Memo{inner: inner, cache: make(map[RateKey]memoEntry), visible: make(map[RateKey]bool)}
}

func (m *Memo) ResolveRate(ctx context.Context, key RateKey) (Rate, error) {
	m.mu.Lock()
	if hit, ok := m.cache[key]; ok {
		m.mu.Unlock()
		return hit.rate, hit.err
	}
	m.mu.Unlock()

	rate, err := m.inner.ResolveRate(ctx, key)
	if err != nil && !errors.Is(err, ErrRateNotFound) {
		return rate, err
	}

	m.mu.Lock()
	m.cache[key] = memoEntry{rate: rate, err: err}
	m.calls++
	m.mu.Unlock()
	return rate, err
}

func (m *Memo) IsVisible(ctx context.Context, key RateKey) (bool, error) {
	m.mu.Lock()
	if v, ok := m.visible[key]; ok {
		m.mu.Unlock()
		return v, nil
	}
	if hit, ok := m.cache[key]; ok && hit.err == nil {
		m.mu.Unlock()
		return hit.rate.Visible, nil
	}
	m.mu.Unlock()

	v, err := m.inner.IsVisible(ctx, key)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	m.visible[key] = v
	m.calls++
	m.mu.Unlock()
	return v, nil
}

// Misses reports how many lookups reached the underlying resolver.
func (m *Memo) Misses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
