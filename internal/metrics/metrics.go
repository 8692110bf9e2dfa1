// Package metrics records tool invocation counts and latencies.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome classifies how an invocation ended.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeUnknownTool     Outcome = "unknown_tool"
	OutcomeValidationError Outcome = "validation_error"
	OutcomeFileError       Outcome = "file_error"
	OutcomeRemoteError     Outcome = "remote_error"
	OutcomeNetworkError    Outcome = "network_error"
	OutcomeError           Outcome = "error"
)

// Recorder receives one call per tool invocation.
type Recorder interface {
	RecordToolCall(ctx context.Context, tool string, outcome Outcome, elapsed time.Duration)
}

type noopRecorder struct{}

// NewNoopRecorder returns a recorder that drops everything.
func NewNoopRecorder() Recorder { return noopRecorder{} }

func (noopRecorder) RecordToolCall(context.Context, string, Outcome, time.Duration) {}

// PrometheusRecorder exports invocation metrics to a Prometheus registry.
type PrometheusRecorder struct {
	gatherer prometheus.Gatherer
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the tool call collectors on a fresh
// registry.
func NewPrometheusRecorder() (*PrometheusRecorder, error) {
	reg := prometheus.NewRegistry()

	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vision_mcp",
		Name:      "tool_calls_total",
		Help:      "Tool invocations by tool and outcome.",
	}, []string{"tool", "outcome"})

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vision_mcp",
		Name:      "tool_call_duration_seconds",
		Help:      "Tool invocation latency, including file resolution and the remote call.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"tool"})

	for _, c := range []prometheus.Collector{calls, latency, collectors.NewGoCollector()} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &PrometheusRecorder{gatherer: reg, calls: calls, latency: latency}, nil
}

// RecordToolCall implements Recorder.
func (p *PrometheusRecorder) RecordToolCall(_ context.Context, tool string, outcome Outcome, elapsed time.Duration) {
	p.calls.WithLabelValues(tool, string(outcome)).Inc()
	p.latency.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
