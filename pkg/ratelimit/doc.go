// Package ratelimit provides local and distributed per-section rate
// limiting based on a sliding window of call timestamps plus a cooldown
// penalty on exhaustion.
//
// The primary entry point is the RateLimiter interface:
//
//	dec, err := limiter.Evaluate(ctx, id)
//
// The returned Decision contains whether the call is allowed, how many
// calls remain in the current window, and the time left on an active
// cooldown for callers that want to surface rate-limit headers.
//
// # Overview
//
// Every caller belongs to a named section ("user", "admin", ...) with its
// own Rule:
//
//   - Amount: maximum calls permitted per rolling Interval
//   - Interval: the window calls are counted over
//   - Timeout: cooldown applied once the quota is exhausted
//
// Each call is remembered until Interval has passed, so the window
// slides: a call made now frees its slot exactly Interval later. The
// first call that finds the quota gone additionally arms a cooldown that
// denies everything until it expires, even if window slots free up in
// the meantime. A running cooldown is armed at most once per episode and
// never extended by further denied calls; once it lapses, a new one is
// armed only if the quota is still exhausted at that point.
//
// Identity defines "who" is being rate-limited: the Section plus a Key
// identifying the individual caller within it. Distinct sections and
// distinct keys maintain fully independent state.
//
// # Backends
//
// The package provides two implementations with the same Evaluate API:
//
//   - MemoryLimiter: an in-process limiter backed by a Go map. Useful for
//     unit tests, local development, and single-instance deployments.
//     Because its state is local to the process, it does not enforce a
//     global limit across multiple replicas.
//
//   - RedisLimiter: a distributed limiter backed by Redis. Every process
//     pointing at the same store sees a consistent view of usage, so one
//     global budget per identity is enforced across many instances.
//
// # Storage Details
//
// RedisLimiter keeps two keys per identity:
//
//   - "call-{section}-{id}": a sorted set with one opaque member per
//     call, scored with the unix time at which that call leaves the
//     window. Members with a score in the past are purged before every
//     count. The key's TTL is Interval, refreshed on every record, so an
//     idle identity's record self-destructs.
//
//   - "cooldown-{section}-{id}": a sentinel created when the quota hits
//     zero, with TTL = Timeout. Its remaining TTL is the authoritative
//     "time left in cooldown"; the limiter never deletes it explicitly.
//
// # Concurrency
//
// MemoryLimiter runs the whole check-and-record sequence under one mutex,
// so its counts are exact. RedisLimiter's default protocol performs the
// check and the record as separate round trips: two concurrent callers
// can both observe a free slot before either records, letting the
// realized count exceed Amount by up to the number of racers minus one.
// This is a property of the protocol, not a defect; see
// WithAtomicEvaluate for a single-round-trip script that closes the race
// when strict enforcement matters.
//
// # Context and Error Policy
//
// Evaluate accepts a context.Context. RedisLimiter passes it through to
// Redis operations so callers can enforce deadlines and cancel work; when
// the caller's context has no deadline, the limiter applies its own
// per-call timeout (WithTimeout, default 5s).
//
// Store errors are returned to the caller verbatim: no retry, no
// wrapping, no circuit breaking, and no "always allow" or "always deny"
// fallback. An unknown section fails that call immediately with
// UnknownSectionError, listing the configured sections, before any store
// state is touched. Rule fields are not validated at construction;
// Sections.Validate is available for callers that want eager checking.
//
// # Decision Semantics
//
//   - Allowed reports whether the current call is permitted.
//   - Remaining is recomputed after an allowed call has been recorded, so
//     it reflects the post-call state. It is floored at zero even when a
//     concurrent overshoot would make the raw computation negative.
//   - Limit and Period echo the section's Amount and Interval.
//   - Timeout is the time left on the active cooldown, 0 when none.
//
// # Composition
//
// The limiter itself is a pure decision function; attaching it to an
// operation is the caller's business. Guard packages the common shape:
// resolve an identity from the request, evaluate, and run the operation
// only on allow. For HTTP handlers, see package httpmw.
//
// # Configuration
//
// Limiters are configured with functional options:
//
//	limiter, err := ratelimit.NewRedisLimiter(client, sections,
//		ratelimit.WithPrefix("myapp:"),
//		ratelimit.WithTimeout(2*time.Second),
//		ratelimit.WithRecorder(recorder),
//	)
//
// Supported options:
//
//   - WithPrefix(string): key prefix for shared stores (default none).
//   - WithTimeout(time.Duration): per-call store deadline (default 5s).
//   - WithRecorder(MetricsRecorder): metrics backend; NewPromRecorder
//     provides a Prometheus-backed one.
//   - WithClock(func() time.Time): clock override for deterministic
//     tests.
//   - WithAtomicEvaluate(): single-script evaluation on Redis.
//
// # Limitations and Notes
//
//   - MemoryLimiter does not evict identities that stop calling; for
//     long-lived processes with high-cardinality keys use RedisLimiter,
//     whose keys expire on their own.
//   - RedisLimiter requires a reachable Redis instance and returns errors
//     directly; callers decide their availability vs protection tradeoff.
//   - With WithAtomicEvaluate, a flushed script cache (for example after
//     a server restart) is handled by falling back to EVAL on NOSCRIPT.
package ratelimit
