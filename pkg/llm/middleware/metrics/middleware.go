// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"context"
	"io"
	"time"

	"boardroom/pkg/llm"
	"boardroom/pkg/llm/llmerrors"
	"boardroom/pkg/logx"
	"boardroom/pkg/metrics"
	"boardroom/pkg/tokens"
)

// TokenCounter counts prompt tokens for a request.
type TokenCounter interface {
	CountMessages(messages []llm.CompletionMessage) int
}

// Middleware returns a middleware function that records metrics for LLM operations.
// It tracks request latency, prompt token usage, success/failure rates, and error types.
// For streams the duration covers the request up to the moment the body is
// closed, and the outcome is the error the stream ended with.
func Middleware(recorder metrics.Recorder, counter TokenCounter, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if counter == nil {
		counter = tokens.Shared()
	}

	return func(next llm.LLMClient) llm.LLMClient {
		observe := func(req llm.CompletionRequest, promptTokens int, start time.Time, err error) {
			duration := time.Since(start)
			errorType := ""
			if err != nil {
				errorType = llmerrors.TypeOf(llmerrors.Classify(err)).String()
			}
			recorder.ObserveRequest(next.GetModelName(), req.Kind, promptTokens, err == nil, errorType, duration)

			if logger != nil {
				status := metrics.StatusSuccess
				if err != nil {
					status = metrics.StatusError
				}
				logger.Debug("LLM request: model=%s kind=%s prompt_tokens=%d status=%s duration=%dms",
					next.GetModelName(), req.Kind, promptTokens, status, duration.Milliseconds())
			}
		}

		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				promptTokens := counter.CountMessages(req.Messages)

				resp, err := next.Complete(ctx, req)
				observe(req, promptTokens, start, err)
				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (io.ReadCloser, error) {
				start := time.Now()
				promptTokens := counter.CountMessages(req.Messages)

				body, err := next.Stream(ctx, req)
				if err != nil {
					observe(req, promptTokens, start, err)
					return nil, err //nolint:wrapcheck // Middleware should pass through errors unchanged
				}
				return llm.ReadCloserErrFunc(body, func(streamErr error) {
					observe(req, promptTokens, start, streamErr)
				}), nil
			},
			next.GetModelName,
		)
	}
}
