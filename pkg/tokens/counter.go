// Package tokens estimates prompt sizes with a tiktoken encoding.
package tokens

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"

	"boardroom/pkg/llm"
)

// Counter counts tokens for prompts sent to the completion service. Local
// models do not publish a tiktoken encoding; cl100k is used as an estimate.
type Counter struct {
	codec tokenizer.Codec
}

//nolint:gochecknoglobals // codec construction is expensive and immutable
var (
	shared     *Counter
	sharedErr  error
	sharedOnce sync.Once
)

// NewCounter creates a counter backed by the cl100k_base encoding.
func NewCounter() (*Counter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// Shared returns a process-wide counter; it falls back to rune-based
// estimation if the codec cannot be built.
func Shared() *Counter {
	sharedOnce.Do(func() {
		shared, sharedErr = NewCounter()
		if sharedErr != nil {
			shared = &Counter{}
		}
	})
	return shared
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return estimate(text)
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return estimate(text)
	}
	return n
}

// CountMessages returns the token count of all message contents.
func (c *Counter) CountMessages(messages []llm.CompletionMessage) int {
	total := 0
	for i := range messages {
		total += c.Count(messages[i].Content)
	}
	return total
}

// estimate approximates Hangul-heavy text at roughly one token per rune pair.
func estimate(text string) int {
	return (utf8.RuneCountInString(text) + 1) / 2
}
