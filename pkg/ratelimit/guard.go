package ratelimit

import (
	"context"
	"errors"
)

// ResolveFunc maps a request to the (section, key) identity it should be
// limited under. It runs before any store round trip; returning a section
// that is not configured makes the guarded call fail with
// UnknownSectionError.
type ResolveFunc[Req any] func(req Req) (section, key string)

// Guard composes a limiter with an operation. The returned function
// evaluates the limit first and only invokes fn when the call is allowed;
// on deny it returns the Decision and the zero Res without running fn.
//
// The decision and the operation are not transactional: when the store
// fails while recording an allowed call, fn still runs and the store
// error is returned alongside fn's own outcome.
func Guard[Req, Res any](
	l RateLimiter,
	resolve ResolveFunc[Req],
	fn func(ctx context.Context, req Req) (Res, error),
) func(ctx context.Context, req Req) (Decision, Res, error) {
	return func(ctx context.Context, req Req) (Decision, Res, error) {
		var zero Res

		section, key := resolve(req)
		dec, err := l.Evaluate(ctx, Identity{Section: section, Key: key})
		if !dec.Allowed {
			return dec, zero, err
		}

		res, ferr := fn(ctx, req)
		return dec, res, errors.Join(err, ferr)
	}
}
