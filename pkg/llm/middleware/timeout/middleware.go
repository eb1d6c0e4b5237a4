// Package timeout provides timeout middleware for LLM clients.
package timeout

import (
	"context"
	"io"
	"time"

	"boardroom/pkg/llm"
)

// Middleware returns a middleware that bounds each request. Complete calls are
// bounded by complete; streamed calls by stream, measured from request start
// until the body is closed. A zero duration leaves that call unbounded.
func Middleware(complete, stream time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if complete <= 0 {
					return next.Complete(ctx, req)
				}
				timeoutCtx, cancel := context.WithTimeout(ctx, complete)
				defer cancel()

				return next.Complete(timeoutCtx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (io.ReadCloser, error) {
				if stream <= 0 {
					return next.Stream(ctx, req)
				}
				// The context must outlive this call: the body is read after we return.
				timeoutCtx, cancel := context.WithTimeout(ctx, stream)

				body, err := next.Stream(timeoutCtx, req)
				if err != nil {
					cancel()
					return nil, err
				}
				return llm.ReadCloserFunc(body, cancel), nil
			},
			next.GetModelName,
		)
	}
}
