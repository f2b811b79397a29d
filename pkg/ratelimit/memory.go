package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	// expiries holds, per recorded call, the instant it leaves the window.
	expiries      []time.Time
	cooldownUntil time.Time
}

// MemoryLimiter is an in-process sliding-window limiter.
//
// It applies the same decision sequence as RedisLimiter, but its state is
// local to the process and is not shared across replicas. Use
// RedisLimiter when you need a single global limit across multiple
// instances; use MemoryLimiter in tests and single-instance deployments.
type MemoryLimiter struct {
	mu       sync.Mutex
	entries  map[string]*window
	sections Sections
	opts     options
}

// NewMemoryLimiter constructs a MemoryLimiter with empty state.
func NewMemoryLimiter(sections Sections, opts ...Option) *MemoryLimiter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryLimiter{
		entries:  make(map[string]*window),
		sections: sections,
		opts:     o,
	}
}

// Evaluate checks whether a call by the given identity should be allowed
// under its section's rule and records it when it is. The whole sequence
// runs under one mutex, so unlike the Redis two-step protocol the
// in-memory count never overshoots Amount.
func (m *MemoryLimiter) Evaluate(ctx context.Context, id Identity) (Decision, error) {
	rule, ok := m.sections[id.Section]
	if !ok {
		return Decision{}, unknownSection(id.Section, m.sections)
	}

	start := time.Now()
	dec := m.evaluate(id, rule)

	tags := map[string]string{"section": id.Section}
	m.opts.recorder.Add(metricCall, 1, tags)
	m.opts.recorder.Observe(metricLatency, time.Since(start).Seconds(), tags)
	if !dec.Allowed {
		m.opts.recorder.Add(metricDenied, 1, tags)
	}

	return dec, nil
}

func (m *MemoryLimiter) evaluate(id Identity, rule Rule) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.now()
	key := id.Section + ":" + id.Key

	st, exists := m.entries[key]
	if !exists {
		st = &window{}
		m.entries[key] = st
	}

	// Purge calls whose window has passed.
	live := st.expiries[:0]
	for _, exp := range st.expiries {
		if exp.After(now) {
			live = append(live, exp)
		}
	}
	st.expiries = live

	remaining := rule.Amount - int64(len(st.expiries))

	// Arm the cooldown once per episode; a running cooldown is never
	// extended.
	if remaining <= 0 && !st.cooldownUntil.After(now) && rule.Timeout > 0 {
		st.cooldownUntil = now.Add(rule.Timeout)
	}

	cooldown := st.cooldownUntil.Sub(now)
	if cooldown < 0 {
		cooldown = 0
	}

	if remaining <= 0 || cooldown > 0 {
		return newDecision(false, remaining, rule, cooldown)
	}

	st.expiries = append(st.expiries, now.Add(rule.Interval))
	return newDecision(true, rule.Amount-int64(len(st.expiries)), rule, 0)
}
