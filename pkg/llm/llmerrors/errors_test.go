package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), ErrorTypeTimeout},
		{"canceled", context.Canceled, ErrorTypeCanceled},
		{"refused errno", &url.Error{Op: "Post", URL: "http://127.0.0.1:11434/api/chat", Err: syscall.ECONNREFUSED}, ErrorTypeConnectionRefused},
		{"refused text", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"), ErrorTypeConnectionRefused},
		{"timeout text", errors.New("i/o timeout"), ErrorTypeTimeout},
		{"other", errors.New("boom"), ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.Error(t, got)
			assert.Equal(t, tt.want, TypeOf(got))
			assert.True(t, errors.Is(got, tt.err) || errors.Unwrap(got) != nil)
		})
	}
}

func TestClassifyKeepsClassifiedErrors(t *testing.T) {
	orig := NewErrorWithStatus(ErrorTypeBadStatus, 500, "Internal Server Error")
	got := Classify(fmt.Errorf("stream: %w", orig))
	assert.True(t, Is(got, ErrorTypeBadStatus))
	assert.Nil(t, Classify(nil))
}

func TestUserMessageDistinctPerFailureMode(t *testing.T) {
	errs := []error{
		NewError(ErrorTypeTimeout, "request timeout"),
		NewError(ErrorTypeConnectionRefused, "not reachable"),
		NewErrorWithStatus(ErrorTypeBadStatus, 404, "Not Found"),
		NewError(ErrorTypeEmptyBody, "no body"),
	}

	seen := make(map[string]bool)
	for _, err := range errs {
		msg := UserMessage(err)
		require.NotEmpty(t, msg)
		assert.False(t, seen[msg], "duplicate user message %q", msg)
		seen[msg] = true
	}

	assert.Equal(t, "Ollama is not running (Connection Refused).", UserMessage(errs[1]))
	assert.Equal(t, "Failed to fetch from Ollama: Not Found", UserMessage(errs[2]))
	assert.Equal(t, "plain", UserMessage(errors.New("plain")))
}

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "empty_body", ErrorTypeEmptyBody.String())
	assert.Equal(t, "invalid", ErrorType(99).String())
}
