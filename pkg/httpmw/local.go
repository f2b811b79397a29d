package httpmw

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type localEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// LocalFilter is a process-local token-bucket pre-filter. It caps what a
// single replica will even ask the shared store about, so a flooding key
// burns local CPU instead of store round trips. It is not a substitute
// for the shared limiter: its budget is per process, not global.
type LocalFilter struct {
	mu      sync.Mutex
	entries map[string]*localEntry

	perSecond rate.Limit
	burst     int

	// idle entries older than ttl are evicted by the janitor
	ttl          time.Duration
	cleanupEvery time.Duration
}

type LocalOption func(*LocalFilter)

// WithIdleTTL controls how long an idle key stays cached before eviction.
func WithIdleTTL(d time.Duration) LocalOption {
	return func(f *LocalFilter) { f.ttl = d }
}

// WithCleanupEvery controls how often the janitor runs.
func WithCleanupEvery(d time.Duration) LocalOption {
	return func(f *LocalFilter) { f.cleanupEvery = d }
}

// NewLocalFilter creates the filter and starts a janitor goroutine that
// stops when ctx is cancelled. perSecond is the refill rate, burst the
// bucket capacity.
func NewLocalFilter(ctx context.Context, perSecond float64, burst int, opts ...LocalOption) *LocalFilter {
	f := &LocalFilter{
		entries:      make(map[string]*localEntry),
		perSecond:    rate.Limit(perSecond),
		burst:        burst,
		ttl:          15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(f)
	}
	go f.janitor(ctx)
	return f
}

// Allow reports whether key is within its local budget.
func (f *LocalFilter) Allow(key string) bool {
	now := time.Now()

	f.mu.Lock()
	ent, ok := f.entries[key]
	if !ok {
		ent = &localEntry{lim: rate.NewLimiter(f.perSecond, f.burst)}
		f.entries[key] = ent
	}
	ent.lastSeen = now
	f.mu.Unlock()

	return ent.lim.Allow()
}

func (f *LocalFilter) janitor(ctx context.Context) {
	if f.cleanupEvery <= 0 {
		return
	}
	t := time.NewTicker(f.cleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			f.cleanup()
		}
	}
}

func (f *LocalFilter) cleanup() {
	cutoff := time.Now().Add(-f.ttl)

	f.mu.Lock()
	defer f.mu.Unlock()

	for k, ent := range f.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(f.entries, k)
		}
	}
}
