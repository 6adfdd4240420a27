// Package metrics holds the Prometheus collectors for the transformer.
// Collectors are registered with the default registry on import.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LLMBuckets covers model latencies from 100ms to 60s.
var LLMBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

var (
	// RequestsTotal counts handled requests by method and response status code.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transformer_requests_total",
			Help: "Handled requests",
		},
		[]string{"method", "code"},
	)

	// ModelInvocationsTotal counts model calls by model and outcome (ok/error).
	ModelInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transformer_model_invocations_total",
			Help: "Model invocations",
		},
		[]string{"model", "status"},
	)

	// ModelLatency records model call duration in seconds.
	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transformer_model_latency_seconds",
			Help:    "Model invocation latency",
			Buckets: LLMBuckets,
		},
		[]string{"model"},
	)

	// ModelTokensTotal counts tokens reported by the model, by direction (input/output).
	ModelTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transformer_model_tokens_total",
			Help: "Model token usage",
		},
		[]string{"model", "direction"},
	)

	// HistoryOperationsTotal counts history store calls by operation (put/query) and outcome.
	HistoryOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transformer_history_operations_total",
			Help: "History store operations",
		},
		[]string{"op", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		ModelInvocationsTotal,
		ModelLatency,
		ModelTokensTotal,
		HistoryOperationsTotal,
	)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveInvocation records one model call.
func ObserveInvocation(model string, elapsed time.Duration, inputTokens, outputTokens int, err error) {
	ModelInvocationsTotal.WithLabelValues(model, outcome(err)).Inc()
	if err != nil {
		return
	}
	ModelLatency.WithLabelValues(model).Observe(elapsed.Seconds())
	if inputTokens > 0 {
		ModelTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		ModelTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// ObserveHistory records one history store call.
func ObserveHistory(op string, err error) {
	HistoryOperationsTotal.WithLabelValues(op, outcome(err)).Inc()
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
