// Package metrics provides metrics recording for completion requests and meeting turns.
package metrics

import "time"

const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

// Recorder defines the interface for recording meeting metrics.
type Recorder interface {
	// ObserveRequest records one completion request.
	ObserveRequest(model, kind string, promptTokens int, success bool, errorType string, duration time.Duration)

	// ObserveTurn records one persona turn of an orchestration mode.
	ObserveTurn(mode, status string, duration time.Duration)

	// ObserveVerdicts records a judged debate; fallback counts synthetic verdicts.
	ObserveVerdicts(parsed, fallback int)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_, _ string, _ int, _ bool, _ string, _ time.Duration) {}

// ObserveTurn does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveTurn(_, _ string, _ time.Duration) {}

// ObserveVerdicts does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveVerdicts(_, _ int) {}
