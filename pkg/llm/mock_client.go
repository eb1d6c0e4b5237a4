package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MockResponse scripts one completion call of a MockLLMClient.
type MockResponse struct {
	Err    error
	Chunks []string // content fragments, one NDJSON line each
	// Hang keeps the stream open after the scripted chunks until the request
	// context is done or the body is closed.
	Hang bool
}

// MockLLMClient provides a controllable implementation of LLMClient for testing.
type MockLLMClient struct {
	responses []MockResponse
	requests  []CompletionRequest
	index     int
	model     string
	mu        sync.Mutex
}

// NewMockLLMClient creates a new mock client with predefined responses.
func NewMockLLMClient(responses ...MockResponse) *MockLLMClient {
	return &MockLLMClient{
		responses: responses,
		model:     "mock-model",
	}
}

// Requests returns the requests received so far.
func (m *MockLLMClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockLLMClient) next(req CompletionRequest) (MockResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.index >= len(m.responses) {
		return MockResponse{}, fmt.Errorf("mock client: no more responses")
	}
	resp := m.responses[m.index]
	m.index++
	return resp, nil
}

// Complete returns the next predefined response or error.
func (m *MockLLMClient) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	resp, err := m.next(req)
	if err != nil {
		return CompletionResponse{}, err
	}
	if resp.Err != nil {
		return CompletionResponse{}, resp.Err
	}
	return CompletionResponse{Content: strings.Join(resp.Chunks, "")}, nil
}

// Stream returns the next predefined response encoded as Ollama NDJSON.
func (m *MockLLMClient) Stream(ctx context.Context, req CompletionRequest) (io.ReadCloser, error) {
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	var buf bytes.Buffer
	for _, chunk := range resp.Chunks {
		line, _ := json.Marshal(map[string]any{
			"message": map[string]string{"role": "assistant", "content": chunk},
			"done":    false,
		})
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if !resp.Hang {
		buf.WriteString(`{"done":true}` + "\n")
	}

	return &mockBody{
		ctx:    ctx,
		data:   bytes.NewReader(buf.Bytes()),
		hang:   resp.Hang,
		closed: make(chan struct{}),
	}, nil
}

// GetModelName returns the mock model name.
func (m *MockLLMClient) GetModelName() string {
	return m.model
}

type mockBody struct {
	ctx       context.Context //nolint:containedctx // mirrors a request-bound body
	data      *bytes.Reader
	closed    chan struct{}
	closeOnce sync.Once
	hang      bool
}

func (b *mockBody) Read(p []byte) (int, error) {
	select {
	case <-b.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	n, err := b.data.Read(p)
	if err != io.EOF || !b.hang {
		return n, err //nolint:wrapcheck // mirrors io.Reader
	}
	if n > 0 {
		return n, nil
	}

	select {
	case <-b.ctx.Done():
		return 0, b.ctx.Err() //nolint:wrapcheck // mirrors net/http body behavior
	case <-b.closed:
		return 0, io.ErrClosedPipe
	}
}

func (b *mockBody) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}
