// Package stream reassembles newline-delimited chat responses into content
// fragments.
//
// A completion body is a sequence of JSON objects separated by '\n'. Network
// reads split that sequence at arbitrary byte offsets, including inside a
// JSON token or a multi-byte rune, so the reader buffers the trailing partial
// line until its terminator (or end of stream) arrives.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ollama/ollama/api"

	"boardroom/pkg/llm"
	"boardroom/pkg/llm/llmerrors"
	"boardroom/pkg/logx"
)

// ErrAborted is returned by Next after Abort has been called.
var ErrAborted = errors.New("stream aborted")

const defaultReadSize = 4096

// Option configures a Reader.
type Option func(*Reader)

// WithReadSize sets the size of each read from the underlying body.
func WithReadSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.readSize = n
		}
	}
}

// WithContext attaches a context used for debug logging of dropped lines.
func WithContext(ctx context.Context) Option {
	return func(r *Reader) {
		r.logCtx = ctx
	}
}

// chatLine is one NDJSON object. The error field is sent by the server
// when generation fails after the response has started.
type chatLine struct {
	api.ChatResponse
	Error string `json:"error,omitempty"`
}

// Reader yields content fragments from a streamed chat body. It is single
// pass; Next must not be called concurrently. Abort may be called from any
// goroutine.
type Reader struct {
	body      io.ReadCloser
	logCtx    context.Context //nolint:containedctx // logging only
	buf       []byte
	partial   []byte
	pending   []string
	readSize  int
	finished  bool
	aborted   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewReader wraps a streamed completion body.
func NewReader(body io.ReadCloser, opts ...Option) *Reader {
	r := &Reader{
		body:     body,
		readSize: defaultReadSize,
		logCtx:   logx.WithComponent(context.Background(), "stream"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next non-empty content fragment. It returns io.EOF once the
// stream is exhausted and ErrAborted after Abort.
func (r *Reader) Next() (string, error) {
	if r.buf == nil {
		r.buf = make([]byte, r.readSize)
	}
	for {
		if r.aborted.Load() {
			return "", ErrAborted
		}
		if len(r.pending) > 0 {
			frag := r.pending[0]
			r.pending = r.pending[1:]
			return frag, nil
		}
		if r.finished {
			_ = r.Close()
			return "", io.EOF
		}

		n, err := r.body.Read(r.buf)
		if n > 0 {
			r.partial = append(r.partial, r.buf[:n]...)
			if lineErr := r.drainLines(); lineErr != nil {
				return "", r.fail(lineErr)
			}
		}
		if err == nil {
			continue
		}
		if r.aborted.Load() {
			return "", ErrAborted
		}
		if !errors.Is(err, io.EOF) {
			return "", r.fail(llmerrors.Classify(err))
		}

		// Trailing content without a final newline is still a line.
		if rest := bytes.TrimSpace(r.partial); len(rest) > 0 {
			if lineErr := r.decode(rest); lineErr != nil {
				return "", r.fail(lineErr)
			}
		}
		r.partial = nil
		r.finished = true
	}
}

// drainLines decodes every complete line held in the partial buffer.
func (r *Reader) drainLines() error {
	for !r.finished {
		idx := bytes.IndexByte(r.partial, '\n')
		if idx < 0 {
			return nil
		}
		line := bytes.TrimSpace(r.partial[:idx])
		r.partial = r.partial[idx+1:]
		if len(line) == 0 {
			continue
		}
		if err := r.decode(line); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) decode(line []byte) error {
	var msg chatLine
	if err := json.Unmarshal(line, &msg); err != nil {
		logx.Debug(r.logCtx, "stream", "dropping malformed line (%d bytes): %v", len(line), err)
		return nil
	}
	if msg.Error != "" {
		return llmerrors.NewError(llmerrors.ErrorTypeUnknown, msg.Error)
	}
	if msg.Message.Content != "" {
		r.pending = append(r.pending, msg.Message.Content)
	}
	if msg.Done {
		r.finished = true
	}
	return nil
}

// Abort stops the stream and releases the underlying connection. A blocked
// Next returns ErrAborted.
func (r *Reader) Abort() {
	r.aborted.Store(true)
	_ = r.closeWith(llmerrors.NewErrorWithCause(llmerrors.ErrorTypeCanceled, ErrAborted, "stream aborted"))
}

// Aborted reports whether Abort has been called.
func (r *Reader) Aborted() bool {
	return r.aborted.Load()
}

// Close closes the underlying body. It is safe to call more than once.
func (r *Reader) Close() error {
	return r.closeWith(nil)
}

// fail closes the body with err and returns it.
func (r *Reader) fail(err error) error {
	_ = r.closeWith(err)
	return err
}

func (r *Reader) closeWith(cause error) error {
	r.closeOnce.Do(func() {
		r.closeErr = llm.CloseWithError(r.body, cause)
	})
	return r.closeErr
}

// Collect drains r, calling fn with the accumulated text after every
// fragment. Cancelling ctx aborts the reader; the text gathered so far is
// returned with ctx's error.
func Collect(ctx context.Context, r *Reader, fn func(accumulated string)) (string, error) {
	stop := context.AfterFunc(ctx, r.Abort)
	defer stop()
	defer r.Close() //nolint:errcheck // body already drained or aborted

	var sb strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			r.Abort()
			return sb.String(), err //nolint:wrapcheck // callers compare with context errors
		}

		frag, err := r.Next()
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.Abort()
			return sb.String(), ctxErr //nolint:wrapcheck // callers compare with context errors
		}
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}

		sb.WriteString(frag)
		if fn != nil {
			fn(sb.String())
		}
	}
}
