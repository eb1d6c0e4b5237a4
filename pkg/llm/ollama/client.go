// Package ollama provides the Ollama implementation of the llm.LLMClient interface.
// Ollama is a local LLM runtime that serves /api/chat.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"boardroom/pkg/llm"
	"boardroom/pkg/llm/llmerrors"
	"boardroom/pkg/logx"
)

// DefaultHost is used when the configured host cannot be parsed.
const DefaultHost = "http://127.0.0.1:11434"

// Client wraps the Ollama API client to implement llm.LLMClient.
type Client struct {
	client     *api.Client
	httpClient *http.Client
	baseURL    *url.URL
	model      string
	logger     *logx.Logger
}

// NewClient creates a new Ollama client for the given host and model.
// hostURL should be the Ollama server URL (e.g., "http://127.0.0.1:11434").
func NewClient(hostURL, model string, httpClient *http.Client) *Client {
	logger := logx.NewLogger("ollama")

	parsedURL, err := url.Parse(hostURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		logger.Warn("Invalid Ollama host %q, falling back to %s", hostURL, DefaultHost)
		parsedURL, _ = url.Parse(DefaultHost)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		client:     api.NewClient(parsedURL, httpClient),
		httpClient: httpClient,
		baseURL:    parsedURL,
		model:      model,
		logger:     logger,
	}
}

// Complete implements llm.LLMClient with a single non-streamed chat call.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	req, err := c.buildRequest(in, false)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	var response api.ChatResponse
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	return llm.CompletionResponse{Content: response.Message.Content}, nil
}

// Stream implements llm.LLMClient. The returned body carries Ollama's
// newline-delimited ChatResponse objects unparsed.
func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (io.ReadCloser, error) {
	req, err := c.buildRequest(in, true)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "failed to encode chat request")
	}

	endpoint := c.baseURL.JoinPath("/api/chat")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "failed to build chat request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		c.logger.Error("Ollama API error (%s): %s", resp.Status, strings.TrimSpace(string(detail)))
		return nil, llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadStatus, resp.StatusCode, statusText(resp))
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeEmptyBody, "Ollama returned no response body")
	}

	return resp.Body, nil
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return c.model
}

func (c *Client) buildRequest(in llm.CompletionRequest, stream bool) (*api.ChatRequest, error) {
	messages, err := convertMessagesToOllama(in.Messages)
	if err != nil {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	return &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
	}, nil
}

// convertMessagesToOllama converts our message format to Ollama's Message format.
func convertMessagesToOllama(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	result := make([]api.Message, 0, len(messages))
	for i := range messages {
		result = append(result, api.Message{
			Role:    string(messages[i].Role),
			Content: messages[i].Content,
		})
	}
	return result, nil
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

// classifyError converts Ollama and transport errors to our error types.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		msg := http.StatusText(statusErr.StatusCode)
		if msg == "" {
			msg = statusErr.Status
		}
		return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadStatus, statusErr.StatusCode, msg)
	}

	return llmerrors.Classify(err)
}
