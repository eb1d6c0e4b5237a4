package meeting

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"boardroom/pkg/chat"
	"boardroom/pkg/logx"
	"boardroom/pkg/persona"
)

// emptyReply stands in for a persona that streamed nothing.
const emptyReply = "..."

// ChatOrchestrator answers each chairman message with one or more personas.
// Later speakers in a batch see the replies of earlier ones.
type ChatOrchestrator struct {
	deps     *Deps
	selector SpeakerSelector
	logger   *logx.Logger
	target   string
	pacing   Delay
	mu       sync.Mutex
	sending  bool
}

// NewChatOrchestrator creates a chat orchestrator. A nil selector selects
// DefaultSelector.
func NewChatOrchestrator(deps *Deps, selector SpeakerSelector, pacing Delay) *ChatOrchestrator {
	if selector == nil {
		selector = DefaultSelector()
	}
	return &ChatOrchestrator{
		deps:     deps.withDefaults(),
		selector: selector,
		pacing:   pacing,
		logger:   logx.NewLogger("chat"),
	}
}

// SetTarget designates the persona that alone answers the next message.
// An empty id clears the target.
func (c *ChatOrchestrator) SetTarget(id string) error {
	if id != "" && !c.deps.Roster.Contains(id) {
		return fmt.Errorf("%w: %s", ErrUnknownPersona, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = id
	return nil
}

// Target returns the pending target, if any.
func (c *ChatOrchestrator) Target() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Sending reports whether a batch is in progress.
func (c *ChatOrchestrator) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Validate checks chat input without sending it.
func (c *ChatOrchestrator) Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// Send posts the chairman's message and runs the reply batch. A failing
// persona is reported in the transcript and the batch continues; only
// cancellation ends it early.
func (c *ChatOrchestrator) Send(ctx context.Context, text string) error {
	if err := c.Validate(text); err != nil {
		return err
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrBusy
	}
	c.sending = true
	target := c.target
	c.target = ""
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
	}()

	userMsg := c.deps.Transcript.Post(chat.SenderUser, strings.TrimSpace(text))
	speakers := c.selector.Select(c.deps.Roster.All(), target)
	c.logger.Info("Chat message %s: %d speaker(s), target=%q", userMsg.ID, len(speakers), target)

	for _, p := range speakers {
		if err := c.turn(ctx, p, userMsg.ID); err != nil {
			c.logger.Info("Chat batch for %s stopped: %v", userMsg.ID, err)
			return err
		}
	}
	return nil
}

// turn returns an error only when the batch must stop.
func (c *ChatOrchestrator) turn(ctx context.Context, p persona.Persona, replyTo string) error {
	if err := c.deps.Pacer.Pause(ctx, c.pacing); err != nil {
		return err //nolint:wrapcheck // context error
	}

	start := time.Now()
	msgs, err := c.deps.Prompts.Chat(p, c.deps.Transcript.Snapshot())
	if err != nil {
		c.fail(p, start, err)
		return nil
	}

	tr := c.deps.Transcript
	placeholder := tr.PostReply(p.ID, "", replyTo)
	text, err := c.deps.stream(ctx, ModeChat, msgs, func(acc string) {
		_ = tr.Update(placeholder.ID, acc)
	})

	if ctx.Err() != nil {
		if strings.TrimSpace(text) == "" {
			tr.Remove(placeholder.ID)
		}
		c.deps.observeTurn(ModeChat, start, ctx.Err())
		return ctx.Err() //nolint:wrapcheck // context error
	}
	if err != nil {
		tr.Remove(placeholder.ID)
		c.fail(p, start, err)
		return nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = emptyReply
	}
	_ = tr.Finalize(placeholder.ID, text, "")
	c.deps.observeTurn(ModeChat, start, nil)
	return nil
}

func (c *ChatOrchestrator) fail(p persona.Persona, start time.Time, err error) {
	c.logger.Error("Chat turn for %s failed: %v", p.Name, err)
	c.deps.Transcript.Post(chat.SenderSystem, fmt.Sprintf("[System Error] %s: %s", p.Name, failureText(err)))
	c.deps.observeTurn(ModeChat, start, err)
}
