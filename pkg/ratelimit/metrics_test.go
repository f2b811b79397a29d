package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// MockRecorder captures metrics in memory for assertion
type MockRecorder struct {
	Counters map[string]float64
	Timings  map[string][]float64
}

func NewMockRecorder() *MockRecorder {
	return &MockRecorder{
		Counters: make(map[string]float64),
		Timings:  make(map[string][]float64),
	}
}

func (m *MockRecorder) Add(name string, value float64, tags map[string]string) {
	m.Counters[name] += value
}

func (m *MockRecorder) Observe(name string, value float64, tags map[string]string) {
	m.Timings[name] = append(m.Timings[name], value)
}

func TestLimiterMetrics(t *testing.T) {
	mock := NewMockRecorder()
	limiter := NewMemoryLimiter(
		Sections{"user": {Amount: 1, Interval: time.Minute, Timeout: time.Minute}},
		WithRecorder(mock),
	)
	id := Identity{Section: "user", Key: "u1"}
	ctx := context.Background()

	limiter.Evaluate(ctx, id)
	limiter.Evaluate(ctx, id) // denied

	if val := mock.Counters["ratelimit.call"]; val != 2 {
		t.Errorf("Expected 'ratelimit.call' counter to be 2, got %v", val)
	}
	if val := mock.Counters["ratelimit.denied"]; val != 1 {
		t.Errorf("Expected 'ratelimit.denied' counter to be 1, got %v", val)
	}
	if timings := mock.Timings["ratelimit.latency"]; len(timings) != 2 {
		t.Errorf("Expected 2 latency observations, got %d", len(timings))
	}
}

func TestPromRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPromRecorder(reg)

	limiter := NewMemoryLimiter(
		Sections{"user": {Amount: 1, Interval: time.Minute, Timeout: time.Minute}},
		WithRecorder(rec),
	)
	ctx := context.Background()
	id := Identity{Section: "user", Key: "u1"}

	limiter.Evaluate(ctx, id)
	limiter.Evaluate(ctx, id)

	expected := `# HELP ratelimit_calls_total Total rate limit evaluations by section
# TYPE ratelimit_calls_total counter
ratelimit_calls_total{section="user"} 2
# HELP ratelimit_denied_total Total denied evaluations by section
# TYPE ratelimit_denied_total counter
ratelimit_denied_total{section="user"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"ratelimit_calls_total", "ratelimit_denied_total"); err != nil {
		t.Error(err)
	}
}
