// Package ratelimit enforces a per-identity sliding-window submission limit.
// Two backends exist: an in-process map for single-instance deployments and
// Redis for fleets sharing one budget.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is the sliding window length.
const Window = time.Minute

// Limiter answers whether one more request from identity is allowed right
// now. Allow both checks and records the request.
type Limiter interface {
	Allow(ctx context.Context, identity string) (bool, error)
}

// MemoryLimiter keeps per-identity request timestamps in memory.
type MemoryLimiter struct {
	mu    sync.Mutex
	limit int
	seen  map[string][]time.Time
	now   func() time.Time
}

// NewMemory creates a MemoryLimiter allowing limit requests per window.
// limit <= 0 disables limiting.
func NewMemory(limit int) *MemoryLimiter {
	return &MemoryLimiter{
		limit: limit,
		seen:  make(map[string][]time.Time),
		now:   time.Now,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, identity string) (bool, error) {
	if m.limit <= 0 {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-Window)
	stamps := m.seen[identity]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= m.limit {
		m.seen[identity] = kept
		return false, nil
	}
	m.seen[identity] = append(kept, now)
	return true, nil
}

// Sweep drops identities with no requests inside the window. Called from
// housekeeping so idle clients do not accumulate forever.
func (m *MemoryLimiter) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-Window)
	for id, stamps := range m.seen {
		live := false
		for _, ts := range stamps {
			if ts.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(m.seen, id)
		}
	}
}
