// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the mock Portkey gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, route, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portkey_mock_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portkey_mock_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "portkey_mock_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// TargetRequestsTotal counts completions attributed to the routed target,
	// labelled with the provider and the strategy mode from x-portkey-config.
	TargetRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portkey_mock_target_requests_total",
			Help: "Requests per routed target",
		},
		[]string{"provider", "mode"},
	)

	// TokensTotal counts fabricated tokens by model and direction (input/output).
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portkey_mock_tokens_total",
			Help: "Token count",
		},
		[]string{"model", "direction"},
	)

	// FailuresInjectedTotal counts responses failed on purpose via --fail-rate.
	FailuresInjectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portkey_mock_failures_injected_total",
			Help: "Injected failures",
		},
		[]string{"route"},
	)

	// CacheTotal counts cache lookups by outcome ("hit" or "miss").
	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portkey_mock_cache_total",
			Help: "Response cache lookups",
		},
		[]string{"status"},
	)

	// RateLimitedTotal counts requests rejected by the per-key rate limiter.
	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portkey_mock_rate_limited_total",
			Help: "Rate limited requests",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		TargetRequestsTotal,
		TokensTotal,
		FailuresInjectedTotal,
		CacheTotal,
		RateLimitedTotal,
	)
}
