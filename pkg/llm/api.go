// Package llm provides interfaces and types for the completion service consumed by the meeting orchestrators.
package llm

import (
	"context"
	"io"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the persona being prompted.
	RoleAssistant CompletionRole = "assistant"
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Role    CompletionRole
	Content string
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages []CompletionMessage
	// Kind labels the request for metrics and logs ("chat", "discussion", "debate", "judge").
	Kind string
}

// CompletionResponse represents a non-streamed completion.
type CompletionResponse struct {
	Content string
}

// LLMClient defines the interface for completion service interactions.
type LLMClient interface { //nolint:revive // Keep name for consistency with middleware
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// Stream starts a streamed completion and returns the raw newline-delimited
	// JSON body. Closing the body aborts the in-flight response.
	Stream(ctx context.Context, in CompletionRequest) (io.ReadCloser, error)

	// GetModelName returns the model name for this client.
	GetModelName() string
}

// NewCompletionRequest creates a completion request for the given messages.
func NewCompletionRequest(kind string, messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Kind:     kind,
		Messages: messages,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleAssistant,
		Content: content,
	}
}
