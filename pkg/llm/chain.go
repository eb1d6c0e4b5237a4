package llm

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Middleware represents a function that wraps an LLMClient with additional behavior.
// Middleware functions are composed using Chain() to create a processing pipeline.
type Middleware func(next LLMClient) LLMClient

// clientFunc is an adapter that allows plain functions to implement the LLMClient interface.
type clientFunc struct {
	complete  func(context.Context, CompletionRequest) (CompletionResponse, error)
	stream    func(context.Context, CompletionRequest) (io.ReadCloser, error)
	modelName func() string
}

func (f clientFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, req)
}

func (f clientFunc) Stream(ctx context.Context, req CompletionRequest) (io.ReadCloser, error) {
	return f.stream(ctx, req)
}

func (f clientFunc) GetModelName() string {
	return f.modelName()
}

// WrapClient creates a new LLMClient using the provided function implementations.
func WrapClient(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	stream func(context.Context, CompletionRequest) (io.ReadCloser, error),
	modelName func() string,
) LLMClient {
	return clientFunc{
		complete:  complete,
		stream:    stream,
		modelName: modelName,
	}
}

// Chain composes multiple middlewares around a base LLMClient.
// Middlewares are applied in order, with earlier middlewares being outermost.
//
// For example: Chain(client, mw1, mw2, mw3) creates the call stack:
//
//	mw1 -> mw2 -> mw3 -> client
func Chain(base LLMClient, middlewares ...Middleware) LLMClient {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}

// ErrorCloser is a stream body that can be told why its reader stopped.
// Readers that fail on content the transport delivered intact, such as an
// error line, close the body this way so hooks see the failure.
type ErrorCloser interface {
	CloseWithError(err error) error
}

// CloseWithError closes body, passing err along when body supports it.
func CloseWithError(body io.ReadCloser, err error) error {
	if ec, ok := body.(ErrorCloser); ok {
		return ec.CloseWithError(err) //nolint:wrapcheck // pass-through
	}
	return body.Close() //nolint:wrapcheck // pass-through
}

// ReadCloserFunc attaches a release hook to a stream body. The hook runs once,
// after the body has been closed.
func ReadCloserFunc(body io.ReadCloser, release func()) io.ReadCloser {
	return ReadCloserErrFunc(body, func(error) {
		if release != nil {
			release()
		}
	})
}

// ReadCloserErrFunc is like ReadCloserFunc but hands the hook the error the
// stream ended with: the first failed read or the error given to
// CloseWithError. A clean end of stream yields nil.
func ReadCloserErrFunc(body io.ReadCloser, release func(err error)) io.ReadCloser {
	return &hookedBody{ReadCloser: body, release: release}
}

type hookedBody struct {
	io.ReadCloser
	release func(error)
	failure error
	closed  bool
	mu      sync.Mutex
}

func (h *hookedBody) Read(p []byte) (int, error) {
	n, err := h.ReadCloser.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		h.mu.Lock()
		if h.failure == nil && !h.closed {
			h.failure = err
		}
		h.mu.Unlock()
	}
	return n, err //nolint:wrapcheck // pass-through
}

func (h *hookedBody) Close() error {
	return h.CloseWithError(nil)
}

// CloseWithError implements ErrorCloser.
func (h *hookedBody) CloseWithError(cause error) error {
	err := CloseWithError(h.ReadCloser, cause)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return err
	}
	h.closed = true
	if cause == nil {
		cause = h.failure
	}
	h.mu.Unlock()

	if h.release != nil {
		h.release(cause)
	}
	return err
}
