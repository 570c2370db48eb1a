package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(providerRequests, providerLatencyMs)
}

var (
	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "SMS provider API calls by provider, action and result.",
		},
		[]string{"provider", "action", "result"},
	)

	providerLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_latency_ms",
			Help:    "SMS provider API latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
		[]string{"provider", "action"},
	)
)

func ObserveProviderRequest(provider, action string, latencyMs int64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	providerRequests.WithLabelValues(norm(provider), norm(action), result).Inc()
	providerLatencyMs.WithLabelValues(norm(provider), norm(action)).Observe(float64(latencyMs))
}
