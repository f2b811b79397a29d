package ratelimit

// MetricsRecorder receives counters and timing observations from the
// limiters. Series emitted:
//
//   - "ratelimit.call"    counter, one per Evaluate, tagged with section
//   - "ratelimit.denied"  counter, one per denied Evaluate, tagged with section
//   - "ratelimit.latency" histogram of Evaluate duration in seconds
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// NoOpMetricsRecorder is a placeholder that does nothing.
// It ensures we never have to check 'if r.recorder != nil' in our hot path.
type NoOpMetricsRecorder struct{}

func (n *NoOpMetricsRecorder) Add(name string, value float64, tags map[string]string)     {}
func (n *NoOpMetricsRecorder) Observe(name string, value float64, tags map[string]string) {}

const (
	metricCall    = "ratelimit.call"
	metricDenied  = "ratelimit.denied"
	metricLatency = "ratelimit.latency"
)
