package ratelimit

import (
	"context"
	_ "embed"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed sliding_window.lua
var slidingWindowScript string

// RedisLimiter is a distributed sliding-window limiter backed by Redis.
//
// Per identity it keeps a sorted set "call-{section}-{id}" whose members
// are one opaque token per call, scored with the unix time at which that
// call leaves the window, and a sentinel key "cooldown-{section}-{id}"
// whose TTL is the time left on the cooldown. Both keys expire on their
// own; the limiter never deletes them.
type RedisLimiter struct {
	client    *redis.Client
	sections  Sections
	opts      options
	scriptSHA string
}

// NewRedisLimiter verifies connectivity and returns a limiter enforcing
// the given sections. With WithAtomicEvaluate the decision script is
// loaded into the server's script cache up front.
func NewRedisLimiter(client *redis.Client, sections Sections, opts ...Option) (*RedisLimiter, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	l := &RedisLimiter{
		client:   client,
		sections: sections,
		opts:     o,
	}

	if o.atomic {
		sha, err := client.ScriptLoad(ctx, slidingWindowScript).Result()
		if err != nil {
			return nil, err
		}
		l.scriptSHA = sha
	}

	return l, nil
}

func (r *RedisLimiter) callKey(id Identity) string {
	return r.opts.prefix + "call-" + id.Section + "-" + id.Key
}

func (r *RedisLimiter) cooldownKey(id Identity) string {
	return r.opts.prefix + "cooldown-" + id.Section + "-" + id.Key
}

// Evaluate decides whether a call by id is allowed right now and, when
// it is, records it. Store errors are returned to the caller as-is; the
// limiter performs no retries and imposes no fail-open or fail-closed
// policy.
func (r *RedisLimiter) Evaluate(ctx context.Context, id Identity) (Decision, error) {
	rule, ok := r.sections[id.Section]
	if !ok {
		return Decision{}, unknownSection(id.Section, r.sections)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && r.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		dec Decision
		err error
	)
	if r.opts.atomic {
		dec, err = r.evaluateScript(ctx, id, rule)
	} else {
		dec, err = r.evaluate(ctx, id, rule)
	}

	tags := map[string]string{"section": id.Section}
	r.opts.recorder.Add(metricCall, 1, tags)
	r.opts.recorder.Observe(metricLatency, time.Since(start).Seconds(), tags)
	if err == nil && !dec.Allowed {
		r.opts.recorder.Add(metricDenied, 1, tags)
	}

	return dec, err
}

// evaluate runs the plain multi-round-trip protocol. Between the quota
// check and the record two concurrent callers can both see a free slot,
// so the realized count can overshoot Amount by the number of racers
// minus one. WithAtomicEvaluate closes that window.
func (r *RedisLimiter) evaluate(ctx context.Context, id Identity, rule Rule) (Decision, error) {
	callKey := r.callKey(id)
	cooldownKey := r.cooldownKey(id)

	remaining, err := r.remainingCalls(ctx, callKey, rule)
	if err != nil {
		return Decision{}, err
	}

	// Arm the cooldown once per episode: only when the quota is gone and
	// no marker exists yet. An existing marker is left to expire on its
	// own schedule, never extended.
	if remaining <= 0 && rule.Timeout > 0 {
		n, err := r.client.Exists(ctx, cooldownKey).Result()
		if err != nil {
			return Decision{}, err
		}
		if n == 0 {
			if err := r.client.Append(ctx, cooldownKey, "1").Err(); err != nil {
				return Decision{}, err
			}
			if err := r.client.Expire(ctx, cooldownKey, rule.Timeout).Err(); err != nil {
				return Decision{}, err
			}
		}
	}

	cooldown, err := r.cooldownLeft(ctx, cooldownKey)
	if err != nil {
		return Decision{}, err
	}

	if remaining <= 0 || cooldown > 0 {
		// Report the quota as of now; a concurrent expiry may have freed
		// slots since the check above.
		remaining, err = r.remainingCalls(ctx, callKey, rule)
		if err != nil {
			return Decision{}, err
		}
		return newDecision(false, remaining, rule, cooldown), nil
	}

	dec := newDecision(true, remaining-1, rule, 0)
	if err := r.recordCall(ctx, callKey, rule); err != nil {
		// The allow decision stands even though the call may not have been
		// recorded; the decision and the record are not transactional.
		return dec, err
	}

	remaining, err = r.remainingCalls(ctx, callKey, rule)
	if err != nil {
		return dec, err
	}
	return newDecision(true, remaining, rule, 0), nil
}

// remainingCalls purges window-expired members and returns Amount minus
// the unexpired count. The result may be negative when the two-step
// protocol overshot; Decision reporting clamps it.
func (r *RedisLimiter) remainingCalls(ctx context.Context, key string, rule Rule) (int64, error) {
	now := unixSeconds(r.opts.now())

	if err := r.client.ZRemRangeByScore(ctx, key, "0", formatScore(now)).Err(); err != nil {
		return 0, err
	}

	count, err := r.client.ZCount(ctx, key, "0", "+inf").Result()
	if err != nil {
		return 0, err
	}
	return rule.Amount - count, nil
}

// recordCall inserts one member scored with the end of its window and
// refreshes the key TTL so an idle identity's record self-destructs.
func (r *RedisLimiter) recordCall(ctx context.Context, key string, rule Rule) error {
	score := unixSeconds(r.opts.now().Add(rule.Interval))
	member := uuid.NewString()

	if err := r.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, key, rule.Interval).Err()
}

func (r *RedisLimiter) cooldownLeft(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// -2 means the key is gone, -1 means no expiry is set.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *RedisLimiter) evaluateScript(ctx context.Context, id Identity, rule Rule) (Decision, error) {
	keys := []string{r.callKey(id), r.cooldownKey(id)}
	argv := []interface{}{
		unixSeconds(r.opts.now()), // ARGV[1] now
		rule.Amount,               // ARGV[2]
		seconds(rule.Interval),    // ARGV[3]
		seconds(rule.Timeout),     // ARGV[4]
		uuid.NewString(),          // ARGV[5] member token
	}

	cmd := r.client.EvalSha(ctx, r.scriptSHA, keys, argv...)
	if err := cmd.Err(); err != nil && redis.HasErrorPrefix(err, "NOSCRIPT") {
		// Script cache was flushed, for example by a server restart.
		cmd = r.client.Eval(ctx, slidingWindowScript, keys, argv...)
	}

	result, err := cmd.Result()
	if err != nil {
		return Decision{}, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return Decision{}, errors.New("invalid lua response format")
	}

	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	cooldownSecs, _ := values[2].(int64)

	return newDecision(allowed == 1, remaining, rule, time.Duration(cooldownSecs)*time.Second), nil
}

func newDecision(allowed bool, remaining int64, rule Rule, cooldown time.Duration) Decision {
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   allowed,
		Remaining: remaining,
		Limit:     rule.Amount,
		Period:    rule.Interval,
		Timeout:   cooldown,
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
