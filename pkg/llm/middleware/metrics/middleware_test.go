package metrics

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardroom/pkg/llm"
	"boardroom/pkg/llm/llmerrors"
	"boardroom/pkg/stream"
)

type observation struct {
	model, kind  string
	promptTokens int
	success      bool
	errorType    string
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []observation
}

func (f *fakeRecorder) ObserveRequest(model, kind string, promptTokens int, success bool, errorType string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, observation{model, kind, promptTokens, success, errorType})
}

func (f *fakeRecorder) ObserveTurn(_, _ string, _ time.Duration) {}
func (f *fakeRecorder) ObserveVerdicts(_, _ int)                 {}

type fixedCounter int

func (c fixedCounter) CountMessages(_ []llm.CompletionMessage) int { return int(c) }

func TestCompleteRecordsSuccess(t *testing.T) {
	rec := &fakeRecorder{}
	base := llm.NewMockLLMClient(llm.MockResponse{Chunks: []string{"ok"}})
	client := llm.Chain(base, Middleware(rec, fixedCounter(42), nil))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest("judge", nil))
	require.NoError(t, err)

	require.Len(t, rec.seen, 1)
	assert.Equal(t, observation{"mock-model", "judge", 42, true, ""}, rec.seen[0])
}

func TestStreamRecordsOnClose(t *testing.T) {
	rec := &fakeRecorder{}
	base := llm.NewMockLLMClient(llm.MockResponse{Chunks: []string{"a"}})
	client := llm.Chain(base, Middleware(rec, fixedCounter(7), nil))

	body, err := client.Stream(context.Background(), llm.NewCompletionRequest("discussion", nil))
	require.NoError(t, err)
	assert.Empty(t, rec.seen)

	require.NoError(t, body.Close())
	require.Len(t, rec.seen, 1)
	assert.True(t, rec.seen[0].success)
	assert.Equal(t, "discussion", rec.seen[0].kind)
}

func TestStreamRecordsErrorType(t *testing.T) {
	rec := &fakeRecorder{}
	refused := llmerrors.NewError(llmerrors.ErrorTypeConnectionRefused, "dial tcp: connection refused")
	base := llm.NewMockLLMClient(llm.MockResponse{Err: refused})
	client := llm.Chain(base, Middleware(rec, fixedCounter(1), nil))

	_, err := client.Stream(context.Background(), llm.NewCompletionRequest("chat", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, refused))

	require.Len(t, rec.seen, 1)
	assert.False(t, rec.seen[0].success)
	assert.Equal(t, llmerrors.ErrorTypeConnectionRefused.String(), rec.seen[0].errorType)
}

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func streamingClient(body func() io.ReadCloser) llm.LLMClient {
	return llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			return llm.CompletionResponse{}, nil
		},
		func(context.Context, llm.CompletionRequest) (io.ReadCloser, error) {
			return body(), nil
		},
		func() string { return "stub-model" },
	)
}

func TestStreamRecordsMidBodyReadFailure(t *testing.T) {
	rec := &fakeRecorder{}
	base := streamingClient(func() io.ReadCloser {
		return io.NopCloser(&failingReader{
			data: []byte(`{"message":{"role":"assistant","content":"반"},"done":false}` + "\n"),
			err:  context.DeadlineExceeded,
		})
	})
	client := llm.Chain(base, Middleware(rec, fixedCounter(3), nil))

	body, err := client.Stream(context.Background(), llm.NewCompletionRequest("discussion", nil))
	require.NoError(t, err)

	_, err = io.ReadAll(body)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, body.Close())

	require.Len(t, rec.seen, 1)
	assert.False(t, rec.seen[0].success)
	assert.Equal(t, llmerrors.ErrorTypeTimeout.String(), rec.seen[0].errorType)
}

func TestStreamRecordsErrorLine(t *testing.T) {
	rec := &fakeRecorder{}
	base := streamingClient(func() io.ReadCloser {
		return io.NopCloser(strings.NewReader(`{"error":"model crashed"}` + "\n"))
	})
	client := llm.Chain(base, Middleware(rec, fixedCounter(3), nil))

	body, err := client.Stream(context.Background(), llm.NewCompletionRequest("chat", nil))
	require.NoError(t, err)

	reader := stream.NewReader(body)
	_, err = reader.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")

	require.Len(t, rec.seen, 1)
	assert.False(t, rec.seen[0].success)
	assert.Equal(t, llmerrors.ErrorTypeUnknown.String(), rec.seen[0].errorType)
}

func TestStreamCleanEndRecordsSuccess(t *testing.T) {
	rec := &fakeRecorder{}
	base := llm.NewMockLLMClient(llm.MockResponse{Chunks: []string{"좋", "습니다"}})
	client := llm.Chain(base, Middleware(rec, fixedCounter(2), nil))

	body, err := client.Stream(context.Background(), llm.NewCompletionRequest("chat", nil))
	require.NoError(t, err)

	text, err := stream.Collect(context.Background(), stream.NewReader(body), nil)
	require.NoError(t, err)
	assert.Equal(t, "좋습니다", text)

	require.Len(t, rec.seen, 1)
	assert.True(t, rec.seen[0].success)
}
