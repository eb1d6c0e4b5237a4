package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardroom/pkg/llm"
	"boardroom/pkg/llm/llmerrors"
)

func testMessages() []llm.CompletionMessage {
	return []llm.CompletionMessage{
		llm.NewSystemMessage("당신은 부회장입니다."),
		llm.NewUserMessage("안건: 재택근무"),
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		hostURL string
		model   string
	}{
		{name: "valid host and model", hostURL: "http://localhost:11434", model: "llama3:latest"},
		{name: "custom host", hostURL: "http://192.168.1.100:11434", model: "llama3.1:8b"},
		{name: "invalid URL falls back to default", hostURL: "not-a-valid-url", model: "mistral:7b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.hostURL, tt.model, nil)
			require.NotNil(t, client)
			assert.Equal(t, tt.model, client.GetModelName())
			assert.NotEmpty(t, client.baseURL.Host)
		})
	}
}

func TestConvertMessagesToOllama(t *testing.T) {
	_, err := convertMessagesToOllama(nil)
	require.Error(t, err)

	msgs, err := convertMessagesToOllama(testMessages())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
}

func TestStreamReturnsRawNDJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3:latest", req.Model)
		require.NotNil(t, req.Stream)
		assert.True(t, *req.Stream)
		assert.Len(t, req.Messages, 2)

		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`+"\n")
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"lo"},"done":true}`+"\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "llama3:latest", server.Client())
	body, err := client.Stream(context.Background(), llm.NewCompletionRequest("discussion", testMessages()))
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":"Hel"`)
	assert.Contains(t, string(data), `"content":"lo"`)
}

func TestStreamBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "missing:latest", server.Client())
	_, err := client.Stream(context.Background(), llm.NewCompletionRequest("chat", testMessages()))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadStatus))
	assert.Equal(t, "Failed to fetch from Ollama: Not Found", llmerrors.UserMessage(err))
}

func TestStreamConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	client := NewClient("http://"+addr, "llama3:latest", nil)
	_, err = client.Stream(context.Background(), llm.NewCompletionRequest("chat", testMessages()))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeConnectionRefused), "got %v", err)
}

func TestStreamTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, "llama3:latest", server.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Stream(ctx, llm.NewCompletionRequest("chat", testMessages()))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeTimeout), "got %v", err)
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.Stream)
		assert.False(t, *req.Stream)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"llama3:latest","message":{"role":"assistant","content":"[JUDGE:이전무:attacker:근거가 탄탄했습니다]"},"done":true}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "llama3:latest", server.Client())
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest("judge", testMessages()))
	require.NoError(t, err)
	assert.Equal(t, "[JUDGE:이전무:attacker:근거가 탄탄했습니다]", resp.Content)
}

func TestCompleteBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"out of memory"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "llama3:latest", server.Client())
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest("judge", testMessages()))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadStatus), "got %v", err)
}
