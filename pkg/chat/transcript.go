// Package chat holds the meeting transcript: the ordered, append-only list of
// messages that every orchestration mode writes to.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"boardroom/pkg/logx"
	"boardroom/pkg/protocol"
)

const (
	// DefaultMaxMessageChars is the default maximum length, in runes, of a message.
	DefaultMaxMessageChars = 4096

	// TruncationSuffix is appended to messages that exceed the max length.
	TruncationSuffix = " … [truncated]"

	// SenderUser is the sender id of the human chairman.
	SenderUser = "user"
	// SenderSystem is the sender id of error and status notices.
	SenderSystem = "system"
)

// Message is one transcript entry.
type Message struct {
	ID        string          `json:"id"`
	SenderID  string          `json:"senderId"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Stance    protocol.Stance `json:"stance,omitempty"`
	ReplyTo   string          `json:"replyTo,omitempty"`
}

// FromPersona reports whether the message was written by a persona.
func (m Message) FromPersona() bool {
	return m.SenderID != SenderUser && m.SenderID != SenderSystem
}

// Transcript is safe for concurrent use. Writers are the orchestrators;
// readers receive copies.
type Transcript struct {
	notify   chan struct{}
	logger   *logx.Logger
	index    map[string]int
	messages []Message
	revision uint64
	maxChars int
	mu       sync.RWMutex
}

// NewTranscript creates an empty transcript. maxChars <= 0 selects
// DefaultMaxMessageChars.
func NewTranscript(maxChars int) *Transcript {
	if maxChars <= 0 {
		maxChars = DefaultMaxMessageChars
	}
	return &Transcript{
		notify:   make(chan struct{}),
		logger:   logx.NewLogger("transcript"),
		index:    make(map[string]int),
		maxChars: maxChars,
	}
}

// Post appends a new message and returns it.
func (t *Transcript) Post(senderID, content string) Message {
	return t.PostReply(senderID, content, "")
}

// PostReply appends a message that answers replyTo.
func (t *Transcript) PostReply(senderID, content, replyTo string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Content:   t.truncate(senderID, content),
		Timestamp: time.Now(),
		ReplyTo:   replyTo,
	}

	t.mu.Lock()
	t.index[msg.ID] = len(t.messages)
	t.messages = append(t.messages, msg)
	t.bumpLocked()
	t.mu.Unlock()

	t.logger.Debug("Posted message id=%s sender=%s length=%d", msg.ID, senderID, len(msg.Content))
	return msg
}

// Update replaces the content of a message that is still streaming.
func (t *Transcript) Update(id, content string) error {
	return t.update(id, func(m *Message) {
		m.Content = t.truncate(m.SenderID, content)
	})
}

// Finalize sets the final content and stance of a message.
func (t *Transcript) Finalize(id, content string, stance protocol.Stance) error {
	return t.update(id, func(m *Message) {
		m.Content = t.truncate(m.SenderID, content)
		m.Stance = stance
	})
}

func (t *Transcript) update(id string, apply func(*Message)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[id]
	if !ok {
		return fmt.Errorf("message %s not found", id)
	}
	apply(&t.messages[i])
	t.bumpLocked()
	return nil
}

// Remove deletes a message, used for placeholders of turns that produced
// nothing.
func (t *Transcript) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[id]
	if !ok {
		return false
	}
	t.messages = append(t.messages[:i], t.messages[i+1:]...)
	delete(t.index, id)
	for j := i; j < len(t.messages); j++ {
		t.index[t.messages[j].ID] = j
	}
	t.bumpLocked()
	return true
}

// Get returns a copy of one message.
func (t *Transcript) Get(id string) (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i, ok := t.index[id]
	if !ok {
		return Message{}, false
	}
	return t.messages[i], true
}

// Snapshot returns a copy of every message in order.
func (t *Transcript) Snapshot() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Revision increases on every append or update.
func (t *Transcript) Revision() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.revision
}

// Wait blocks until the revision exceeds since or ctx is done, then returns
// the current revision.
func (t *Transcript) Wait(ctx context.Context, since uint64) (uint64, error) {
	for {
		t.mu.RLock()
		rev, ch := t.revision, t.notify
		t.mu.RUnlock()

		if rev > since {
			return rev, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return rev, fmt.Errorf("waiting for transcript change: %w", ctx.Err())
		}
	}
}

// Clear removes every message.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = nil
	t.index = make(map[string]int)
	t.bumpLocked()
}

func (t *Transcript) bumpLocked() {
	t.revision++
	close(t.notify)
	t.notify = make(chan struct{})
}

func (t *Transcript) truncate(senderID, text string) string {
	if utf8.RuneCountInString(text) <= t.maxChars {
		return text
	}
	keep := t.maxChars - utf8.RuneCountInString(TruncationSuffix)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(text)
	t.logger.Debug("Truncated message from %s (original: %d chars, max: %d)", senderID, len(runes), t.maxChars)
	return string(runes[:keep]) + TruncationSuffix
}
