package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// testClock makes window arithmetic deterministic without sleeping.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryLimiter_QuotaMonotonicity(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	limiter := NewMemoryLimiter(
		Sections{"user": {Amount: 5, Interval: 10 * time.Second, Timeout: 3 * time.Second}},
		WithClock(clk.Now),
	)
	id := Identity{Section: "user", Key: "u1"}

	for i := int64(0); i < 5; i++ {
		dec, err := limiter.Evaluate(ctx, id)
		if err != nil {
			t.Fatalf("Evaluate failed on call %d: %v", i+1, err)
		}
		if !dec.Allowed {
			t.Fatalf("Call %d was unexpectedly denied", i+1)
		}
		if want := 4 - i; dec.Remaining != want {
			t.Errorf("Call %d: expected remaining %d, got %d", i+1, want, dec.Remaining)
		}
	}

	dec, err := limiter.Evaluate(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed {
		t.Error("The 6th call within the window should have been denied")
	}
	if dec.Remaining != 0 {
		t.Errorf("Denied call should report remaining 0, got %d", dec.Remaining)
	}
	if dec.Limit != 5 || dec.Period != 10*time.Second {
		t.Errorf("Decision should echo the rule, got limit=%d period=%v", dec.Limit, dec.Period)
	}
}

func TestMemoryLimiter_CooldownArmsOnExhaustion(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	limiter := NewMemoryLimiter(
		Sections{"user": {Amount: 1, Interval: time.Minute, Timeout: 10 * time.Second}},
		WithClock(clk.Now),
	)
	id := Identity{Section: "user", Key: "u1"}

	if dec, _ := limiter.Evaluate(ctx, id); !dec.Allowed {
		t.Fatal("First call should be allowed")
	}

	dec, _ := limiter.Evaluate(ctx, id)
	if dec.Allowed {
		t.Fatal("Second call should be denied")
	}
	if dec.Timeout != 10*time.Second {
		t.Errorf("Expected a freshly armed 10s cooldown, got %v", dec.Timeout)
	}

	// Further denied calls must not extend the cooldown.
	clk.Advance(4 * time.Second)
	dec, _ = limiter.Evaluate(ctx, id)
	if dec.Allowed {
		t.Fatal("Call during cooldown should be denied")
	}
	if dec.Timeout != 6*time.Second {
		t.Errorf("Cooldown should decrease toward zero, got %v", dec.Timeout)
	}
}

func TestMemoryLimiter_WindowExpiryReleasesQuota(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	limiter := NewMemoryLimiter(
		Sections{"user": {Amount: 2, Interval: 5 * time.Second, Timeout: 0}},
		WithClock(clk.Now),
	)
	id := Identity{Section: "user", Key: "u1"}

	limiter.Evaluate(ctx, id)
	limiter.Evaluate(ctx, id)
	if dec, _ := limiter.Evaluate(ctx, id); dec.Allowed {
		t.Fatal("Quota should be exhausted")
	}

	clk.Advance(5 * time.Second)

	dec, _ := limiter.Evaluate(ctx, id)
	if !dec.Allowed {
		t.Fatal("Window has passed, call should be allowed again")
	}
	if dec.Remaining != 1 {
		t.Errorf("Expected the full quota minus this call, got remaining %d", dec.Remaining)
	}
}

func TestMemoryLimiter_SectionIsolation(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	limiter := NewMemoryLimiter(
		Sections{
			"user":  {Amount: 1, Interval: time.Minute, Timeout: time.Minute},
			"admin": {Amount: 1, Interval: time.Minute, Timeout: time.Minute},
		},
		WithClock(clk.Now),
	)

	limiter.Evaluate(ctx, Identity{Section: "user", Key: "0"})
	if dec, _ := limiter.Evaluate(ctx, Identity{Section: "user", Key: "0"}); dec.Allowed {
		t.Fatal("user quota should be exhausted")
	}

	dec, _ := limiter.Evaluate(ctx, Identity{Section: "admin", Key: "0"})
	if !dec.Allowed {
		t.Error("Exhaustion under \"user\" must not affect \"admin\" for the same key")
	}
}

func TestMemoryLimiter_IdentityIsolation(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	limiter := NewMemoryLimiter(
		Sections{"user": {Amount: 1, Interval: time.Minute, Timeout: time.Minute}},
		WithClock(clk.Now),
	)

	limiter.Evaluate(ctx, Identity{Section: "user", Key: "a"})
	if dec, _ := limiter.Evaluate(ctx, Identity{Section: "user", Key: "a"}); dec.Allowed {
		t.Fatal("Quota for key \"a\" should be exhausted")
	}

	dec, _ := limiter.Evaluate(ctx, Identity{Section: "user", Key: "b"})
	if !dec.Allowed {
		t.Error("Keys under the same section must keep independent counters")
	}
}

func TestMemoryLimiter_UnknownSection(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryLimiter(Sections{
		"user":  {Amount: 1, Interval: time.Minute},
		"admin": {Amount: 1, Interval: time.Minute},
	})

	_, err := limiter.Evaluate(ctx, Identity{Section: "guest", Key: "0"})
	if err == nil {
		t.Fatal("Expected an error for an unconfigured section")
	}
	if !IsUnknownSection(err) {
		t.Fatalf("Expected UnknownSectionError, got %v", err)
	}

	var u *UnknownSectionError
	if !errors.As(err, &u) {
		t.Fatal("errors.As failed")
	}
	if len(u.Valid) != 2 || u.Valid[0] != "admin" || u.Valid[1] != "user" {
		t.Errorf("Error should enumerate the valid sections sorted, got %v", u.Valid)
	}

	if len(limiter.entries) != 0 {
		t.Error("Unknown section must not create any state")
	}
}

// Concrete scenario: rule {amount: 2, interval: 10, timeout: 5},
// identity ("default", 0). A cooldown that lapses while the window is
// still full is re-armed on the next call.
func TestMemoryLimiter_CooldownRearmsWhileWindowFull(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	limiter := NewMemoryLimiter(
		Sections{"default": {Amount: 2, Interval: 10 * time.Second, Timeout: 5 * time.Second}},
		WithClock(clk.Now),
	)
	id := Identity{Section: "default", Key: "0"}

	dec, _ := limiter.Evaluate(ctx, id)
	if !dec.Allowed || dec.Remaining != 1 {
		t.Fatalf("Call 1: expected allow with remaining 1, got %+v", dec)
	}

	dec, _ = limiter.Evaluate(ctx, id)
	if !dec.Allowed || dec.Remaining != 0 {
		t.Fatalf("Call 2: expected allow with remaining 0, got %+v", dec)
	}

	dec, _ = limiter.Evaluate(ctx, id)
	if dec.Allowed || dec.Timeout != 5*time.Second {
		t.Fatalf("Call 3: expected deny with a 5s cooldown, got %+v", dec)
	}

	// t=6: the cooldown armed at t=0 lapsed at t=5, but the window from
	// calls 1-2 holds until t=10, so this call arms a fresh cooldown.
	clk.Advance(6 * time.Second)
	dec, _ = limiter.Evaluate(ctx, id)
	if dec.Allowed {
		t.Fatal("Call 4: window still full at t=6, expected deny")
	}
	if dec.Timeout != 5*time.Second {
		t.Errorf("Call 4: expected a re-armed 5s cooldown, got %v", dec.Timeout)
	}

	// t=10: window slots are free, but the t=6 cooldown runs until t=11.
	clk.Advance(4 * time.Second)
	dec, _ = limiter.Evaluate(ctx, id)
	if dec.Allowed {
		t.Fatal("t=10: cooldown still active, expected deny")
	}
	if dec.Remaining != 2 {
		t.Errorf("t=10: window is clear, expected remaining 2 reported, got %d", dec.Remaining)
	}

	// t=11: both the window and the cooldown have cleared.
	clk.Advance(time.Second)
	dec, _ = limiter.Evaluate(ctx, id)
	if !dec.Allowed || dec.Remaining != 1 {
		t.Errorf("t=11: expected allow with remaining 1, got %+v", dec)
	}
}

func TestMemoryLimiter_ZeroTimeoutNeverArmsCooldown(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	limiter := NewMemoryLimiter(
		Sections{"user": {Amount: 1, Interval: 2 * time.Second, Timeout: 0}},
		WithClock(clk.Now),
	)
	id := Identity{Section: "user", Key: "u1"}

	limiter.Evaluate(ctx, id)
	dec, _ := limiter.Evaluate(ctx, id)
	if dec.Allowed {
		t.Fatal("Quota should be exhausted")
	}
	if dec.Timeout != 0 {
		t.Errorf("Timeout 0 rules must not arm a cooldown, got %v", dec.Timeout)
	}

	clk.Advance(2 * time.Second)
	if dec, _ := limiter.Evaluate(ctx, id); !dec.Allowed {
		t.Error("With no cooldown, window expiry alone should restore the quota")
	}
}

// Race test
func TestMemoryLimiter_ThreadSafety(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryLimiter(
		Sections{"user": {Amount: 100, Interval: time.Minute, Timeout: time.Minute}},
	)
	id := Identity{Section: "user", Key: "u1"}

	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		go func() {
			defer wg.Done()
			limiter.Evaluate(ctx, id)
		}()
	}
	wg.Wait()

	dec, _ := limiter.Evaluate(ctx, id)
	if dec.Allowed {
		t.Error("Expected the window to be full after 100 concurrent calls, but the 101st was allowed")
	}
}

func BenchmarkMemoryLimiter_Evaluate(b *testing.B) {
	ctx := context.Background()
	limiter := NewMemoryLimiter(
		Sections{"user": {Amount: 100000, Interval: time.Hour, Timeout: time.Minute}},
	)
	id := Identity{Section: "user", Key: "u1"}

	for i := 0; i < b.N; i++ {
		limiter.Evaluate(ctx, id)
	}
}
