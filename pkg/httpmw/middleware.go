package httpmw

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/manenim/server-rate-limiter/pkg/ratelimit"
)

// KeyFunc extracts the rate-limit key for a request.
type KeyFunc func(r *http.Request) string

// Options wires a shared limiter into an HTTP middleware.
type Options struct {
	// Limiter makes the shared decision. Required.
	Limiter ratelimit.RateLimiter
	// Section is the configured section requests are evaluated under.
	Section string

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	// Local optionally sheds load with a process-local token bucket
	// before the shared store round trip.
	Local *LocalFilter

	RejectStatus        int
	AddRateLimitHeaders bool

	// OnDenied is called with the key on every denied request.
	OnDenied func(key string)

	Logger *slog.Logger
}

// DefaultKeyFunc resolves the client key from a trusted header, then the
// first hop of X-Forwarded-For when trustXFF is set, then RemoteAddr.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware guards the next handler with the shared limiter. Denied
// requests get RejectStatus with a Retry-After hint. When the store is
// unreachable the middleware logs and fails open: protecting the backend
// at the price of availability is the store operator's call, not a
// middleware default.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.Local != nil && !opts.Local.Allow(key) {
				deny(w, opts, key, retryAfterSeconds(0, 0))
				return
			}

			dec, err := opts.Limiter.Evaluate(r.Context(), ratelimit.Identity{
				Section: opts.Section,
				Key:     key,
			})
			if err != nil {
				if ratelimit.IsUnknownSection(err) {
					logger.Error("ratelimit misconfigured", "section", opts.Section, "err", err)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				logger.Warn("ratelimit store unavailable, failing open", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(dec.Limit, 10))
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(dec.Remaining, 10))
			}

			if !dec.Allowed {
				deny(w, opts, key, retryAfterSeconds(dec.Timeout, dec.Period))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, opts Options, key string, retryAfter int64) {
	if opts.OnDenied != nil {
		opts.OnDenied(key)
	}
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	}
	http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
}

// retryAfterSeconds prefers the cooldown, falls back to the window, and
// always hints at least one second so clients do not hot-loop.
func retryAfterSeconds(cooldown, period time.Duration) int64 {
	secs := cooldown.Seconds()
	if secs <= 0 {
		secs = period.Seconds()
	}
	if secs < 1 {
		secs = 1
	}
	return int64(secs)
}
