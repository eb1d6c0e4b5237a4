// Package meeting runs the three orchestration modes of a boardroom session:
// free-form chat, full-roster discussion, and the two-party debate arena.
//
// Each orchestrator drives its turns sequentially on the caller's goroutine
// and publishes progress through the shared transcript and its own state
// snapshot. Cancellation is a per-run context; cancelling it also aborts the
// in-flight stream reader.
package meeting

import (
	"context"
	"errors"
	"strings"
	"time"

	"boardroom/pkg/chat"
	"boardroom/pkg/llm"
	"boardroom/pkg/llm/llmerrors"
	"boardroom/pkg/mention"
	"boardroom/pkg/metrics"
	"boardroom/pkg/persona"
	"boardroom/pkg/prompt"
	"boardroom/pkg/protocol"
	"boardroom/pkg/stream"
)

// Message and Transcript are the shared conversation history.
type (
	Message    = chat.Message
	Transcript = chat.Transcript
)

// Orchestration modes, used as metric labels and request kinds.
const (
	ModeChat       = "chat"
	ModeDiscussion = "discussion"
	ModeDebate     = "debate"
	ModeJudge      = "judge"
)

var (
	// ErrBusy is returned when an orchestration is already running.
	ErrBusy = errors.New("an orchestration is already running")
	// ErrInvalidPhase is returned for operations not allowed in the current state.
	ErrInvalidPhase = errors.New("operation not allowed in the current phase")
	// ErrEmptyTopic is returned when a discussion or debate starts without a topic.
	ErrEmptyTopic = errors.New("topic must not be empty")
	// ErrEmptyMessage is returned for blank chat input.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrUnknownPersona is returned for ids outside the roster.
	ErrUnknownPersona = errors.New("unknown persona")
)

// Options holds pacing and derivation settings.
type Options struct {
	// Selector picks chat speakers; nil selects DefaultSelector.
	Selector SpeakerSelector
	// Coin settles verdicts the judges leave out; nil selects protocol.RandomCoin.
	Coin             protocol.Coin
	ChatPacing       Delay
	DiscussionPacing Delay
	DebateTurnDelay  time.Duration
	DebateRoundDelay time.Duration
	MentionWindow    int
}

// DefaultOptions returns the standard meeting pacing.
func DefaultOptions() Options {
	return Options{
		ChatPacing:       Delay{Min: 1000 * time.Millisecond, Max: 2000 * time.Millisecond},
		DiscussionPacing: Delay{Min: 600 * time.Millisecond, Max: 1400 * time.Millisecond},
		DebateTurnDelay:  800 * time.Millisecond,
		DebateRoundDelay: 1200 * time.Millisecond,
		MentionWindow:    mention.DefaultWindow,
	}
}

// Deps are the collaborators shared by every orchestrator.
type Deps struct {
	Client     llm.LLMClient
	Prompts    *prompt.Builder
	Roster     *persona.Roster
	Transcript *chat.Transcript
	Pacer      Pacer
	Recorder   metrics.Recorder
	Clock      func() time.Time
}

func (d *Deps) withDefaults() *Deps {
	out := *d
	if out.Pacer == nil {
		out.Pacer = RandomPacer{}
	}
	if out.Recorder == nil {
		out.Recorder = metrics.Nop()
	}
	if out.Clock == nil {
		out.Clock = time.Now
	}
	return &out
}

// stream issues one streamed completion and drains it, reporting the
// accumulated text after each fragment.
func (d *Deps) stream(ctx context.Context, kind string, msgs []llm.CompletionMessage, onText func(string)) (string, error) {
	body, err := d.Client.Stream(ctx, llm.NewCompletionRequest(kind, msgs))
	if err != nil {
		return "", err //nolint:wrapcheck // classified by the client; shown to the user as is
	}
	return stream.Collect(ctx, stream.NewReader(body, stream.WithContext(ctx)), onText)
}

func (d *Deps) observeTurn(mode string, start time.Time, err error) {
	status := metrics.StatusSuccess
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, stream.ErrAborted):
		status = metrics.StatusCanceled
	case err != nil:
		status = metrics.StatusError
	}
	d.Recorder.ObserveTurn(mode, status, time.Since(start))
}

// failureText is the short cause shown in the transcript when a turn fails.
func failureText(err error) string {
	return llmerrors.UserMessage(err)
}

func cleanTopic(topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", ErrEmptyTopic
	}
	return topic, nil
}
