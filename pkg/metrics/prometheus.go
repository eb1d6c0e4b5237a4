package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	promptTokens    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	turnsTotal      *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	verdictsTotal   *prometheus.CounterVec
}

// NewPrometheusRecorder registers the meeting metrics on reg under namespace.
func NewPrometheusRecorder(reg prometheus.Registerer, namespace string) *PrometheusRecorder {
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total number of completion requests by model, kind, and status",
			},
			[]string{"model", "kind", "status", "error_type"},
		),
		promptTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_prompt_tokens_total",
				Help:      "Total number of prompt tokens sent to the completion service",
			},
			[]string{"model", "kind"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Duration of a completion request; streams are measured until the body is closed",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"model", "kind"},
		),
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of persona turns by mode and outcome",
			},
			[]string{"mode", "status"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Duration of a persona turn including streaming",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
			},
			[]string{"mode"},
		),
		verdictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "judge_verdicts_total",
				Help:      "Judge verdicts by origin (parsed from the panel response or synthesized)",
			},
			[]string{"origin"},
		),
	}
}

// ObserveRequest records metrics for a completed request.
func (p *PrometheusRecorder) ObserveRequest(model, kind string, promptTokens int, success bool, errorType string, duration time.Duration) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}

	p.requestsTotal.WithLabelValues(model, kind, status, errorType).Inc()
	if success {
		p.promptTokens.WithLabelValues(model, kind).Add(float64(promptTokens))
	}
	p.requestDuration.WithLabelValues(model, kind).Observe(duration.Seconds())
}

// ObserveTurn records a finished persona turn.
func (p *PrometheusRecorder) ObserveTurn(mode, status string, duration time.Duration) {
	p.turnsTotal.WithLabelValues(mode, status).Inc()
	p.turnDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveVerdicts records verdict origins for one judging.
func (p *PrometheusRecorder) ObserveVerdicts(parsed, fallback int) {
	p.verdictsTotal.WithLabelValues("parsed").Add(float64(parsed))
	p.verdictsTotal.WithLabelValues("fallback").Add(float64(fallback))
}
