// Package observability provides Prometheus metrics and HTTP
// instrumentation for the routeway client.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts completed HTTP exchanges by method, endpoint and
	// status class. Transport failures are recorded with status "error".
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routeway_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration records time to response headers in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routeway_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// StreamsActive tracks the number of open chunk streams.
	StreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "routeway_streams_active",
			Help: "Active chunk streams",
		},
	)

	// StreamChunksTotal counts decoded stream chunks.
	StreamChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "routeway_stream_chunks_total",
			Help: "Decoded stream chunks",
		},
	)

	// StreamMalformedTotal counts stream events skipped because their
	// payload was not valid JSON.
	StreamMalformedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "routeway_stream_malformed_chunks_total",
			Help: "Skipped malformed stream chunks",
		},
	)

	// RetriesTotal counts retried attempts by method and reason.
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routeway_retries_total",
			Help: "Retried requests",
		},
		[]string{"method", "reason"},
	)

	// TokensTotal counts tokens reported in usage blocks by direction
	// (input/output/reasoning).
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routeway_tokens_total",
			Help: "Token count",
		},
		[]string{"model", "direction"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamsActive,
		StreamChunksTotal,
		StreamMalformedTotal,
		RetriesTotal,
		TokensTotal,
	)
}

// RecordUsage adds prompt, completion and reasoning token counts for model.
func RecordUsage(model string, prompt, completion int, reasoning *int) {
	if model == "" {
		model = "unknown"
	}
	if prompt > 0 {
		TokensTotal.WithLabelValues(model, "input").Add(float64(prompt))
	}
	if completion > 0 {
		TokensTotal.WithLabelValues(model, "output").Add(float64(completion))
	}
	if reasoning != nil && *reasoning > 0 {
		TokensTotal.WithLabelValues(model, "reasoning").Add(float64(*reasoning))
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
