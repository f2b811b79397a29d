package ratelimit

import (
	"context"
	"time"
)

// Rule defines the quota policy for one section.
type Rule struct {
	// Amount is the maximum number of calls permitted per rolling Interval.
	Amount int64
	// Interval is the rolling window calls are counted over.
	Interval time.Duration
	// Timeout is the cooldown applied once the quota is exhausted.
	// Zero means no cooldown beyond the window itself.
	Timeout time.Duration
}

// Sections maps a section name (for example "user" or "admin") to its Rule.
// The mapping is fixed when a limiter is constructed and must not be
// mutated afterwards.
type Sections map[string]Rule

// Identity defines "who" is being rate-limited: the section the caller
// belongs to plus the identifier within that section.
type Identity struct {
	Section string
	Key     string
}

// Decision is the outcome of a single Evaluate call.
//
// Remaining and Timeout are recomputed after the call has been recorded,
// so on an allowed call Remaining already accounts for the call itself.
// Remaining is floored at zero.
type Decision struct {
	Allowed   bool
	Remaining int64
	// Limit and Period echo the section's Amount and Interval.
	Limit  int64
	Period time.Duration
	// Timeout is the time left on the active cooldown, 0 when none.
	Timeout time.Duration
}

// RateLimiter decides whether a call by the given identity is allowed
// right now and, when it is, records the call as a side effect.
type RateLimiter interface {
	Evaluate(ctx context.Context, id Identity) (Decision, error)
}

// Validate eagerly checks the rule fields. The limiters themselves do not
// validate rules; a malformed rule surfaces as store errors or nonsense
// arithmetic at first use. Callers that prefer failing at startup can run
// Validate over their Sections first.
func (r Rule) Validate() error {
	if r.Amount <= 0 {
		return errBadAmount
	}
	if r.Interval <= 0 {
		return errBadInterval
	}
	if r.Timeout < 0 {
		return errBadTimeout
	}
	return nil
}

// Validate runs Rule.Validate over every section.
func (s Sections) Validate() error {
	for name, rule := range s {
		if err := rule.Validate(); err != nil {
			return &InvalidRuleError{Section: name, Reason: err}
		}
	}
	return nil
}
