package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromRecorder is a MetricsRecorder backed by Prometheus. It translates
// the limiter's series onto a counter pair and a latency histogram, with
// the "section" tag as the only label to keep cardinality bounded.
type PromRecorder struct {
	calls   *prometheus.CounterVec
	denied  *prometheus.CounterVec
	latency prometheus.Histogram
}

// NewPromRecorder registers the limiter metrics on reg and returns the
// recorder. Pass prometheus.DefaultRegisterer to use the global registry.
func NewPromRecorder(reg prometheus.Registerer) *PromRecorder {
	r := &PromRecorder{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_calls_total",
			Help: "Total rate limit evaluations by section",
		}, []string{"section"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_denied_total",
			Help: "Total denied evaluations by section",
		}, []string{"section"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ratelimit_evaluate_duration_seconds",
			Help:    "Latency of rate limit evaluations",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
	reg.MustRegister(r.calls, r.denied, r.latency)
	return r
}

func (r *PromRecorder) Add(name string, value float64, tags map[string]string) {
	switch name {
	case metricCall:
		r.calls.WithLabelValues(tags["section"]).Add(value)
	case metricDenied:
		r.denied.WithLabelValues(tags["section"]).Add(value)
	}
}

func (r *PromRecorder) Observe(name string, value float64, tags map[string]string) {
	if name == metricLatency {
		r.latency.Observe(value)
	}
}
