package ratelimit

import (
	"time"
)

type options struct {
	prefix   string
	timeout  time.Duration
	recorder MetricsRecorder
	now      func() time.Time
	atomic   bool
}

func defaultOptions() options {
	return options{
		timeout:  5 * time.Second,
		recorder: &NoOpMetricsRecorder{},
		now:      time.Now,
	}
}

// Option configures a limiter. Options that do not apply to a given
// backend (for example WithPrefix on the MemoryLimiter) are ignored.
type Option func(*options)

// WithPrefix prepends prefix to every store key. The default is no
// prefix, which yields the plain "call-{section}-{id}" /
// "cooldown-{section}-{id}" keyspace. Set a prefix when several
// applications share one store.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithTimeout sets the per-call deadline applied to store operations when
// the caller's context carries no deadline of its own (default 5s).
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRecorder injects a custom metrics backend.
func WithRecorder(r MetricsRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithClock replaces the clock used for call timestamps. Intended for
// deterministic tests; cooldown expiry on the Redis backend still follows
// the store's own TTL clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithAtomicEvaluate makes the Redis backend run the whole
// purge/count/arm/record sequence as one server-side script, closing the
// check-then-act race between concurrent callers at the cost of
// pre-loading a script. The default two-step protocol can overshoot
// Amount by up to the number of concurrent racers minus one.
func WithAtomicEvaluate() Option {
	return func(o *options) { o.atomic = true }
}
