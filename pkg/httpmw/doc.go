// Package httpmw adapts the ratelimit package to net/http handlers.
//
// The middleware extracts a client key from the request (trusted header,
// X-Forwarded-For first hop, or RemoteAddr), evaluates it against a
// shared limiter under a fixed section, and answers 429 with a
// Retry-After hint when the call is denied. An optional process-local
// token-bucket pre-filter (LocalFilter) sheds floods before they turn
// into store round trips.
//
// Error policy differs from the core on purpose: the core propagates
// store failures verbatim, while the middleware logs them and fails open,
// since dropping all traffic on a store outage is rarely what an HTTP
// edge wants. Wire the core directly if you need fail-closed.
package httpmw
