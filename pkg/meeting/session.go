package meeting

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"boardroom/pkg/chat"
	"boardroom/pkg/logx"
	"boardroom/pkg/mention"
	"boardroom/pkg/persona"
)

// MessagesView is the transcript together with the relations drawn from it.
type MessagesView struct {
	Messages    []Message            `json:"messages"`
	Connections []mention.Connection `json:"connections"`
	Revision    uint64               `json:"revision"`
}

// DiscussionView is the discussion state plus its derived race and summary.
type DiscussionView struct {
	State   DiscussionState     `json:"state"`
	Race    []mention.RaceScore `json:"race"`
	Summary *mention.Summary    `json:"summary,omitempty"`
}

// Session is one boardroom: a shared transcript and the three orchestrators.
// Only one orchestration runs at a time; each runs on its own goroutine and
// is observed through snapshots.
type Session struct {
	deps       *Deps
	opts       Options
	chat       *ChatOrchestrator
	discussion *DiscussionOrchestrator
	arena      *Arena
	busy       *semaphore.Weighted
	logger     *logx.Logger
	ctx        context.Context //nolint:containedctx // session lifetime
	stop       context.CancelFunc
	chatCancel context.CancelFunc
	mode       string
	wg         sync.WaitGroup
	mu         sync.Mutex
}

// NewSession wires a session. A nil deps.Transcript gets a fresh transcript.
func NewSession(deps Deps, opts Options) *Session {
	if deps.Transcript == nil {
		deps.Transcript = chat.NewTranscript(chat.DefaultMaxMessageChars)
	}
	d := deps.withDefaults()
	ctx, stop := context.WithCancel(context.Background())
	return &Session{
		deps:       d,
		opts:       opts,
		chat:       NewChatOrchestrator(d, opts.Selector, opts.ChatPacing),
		discussion: NewDiscussionOrchestrator(d, opts.DiscussionPacing),
		arena:      NewArena(d, opts.DebateTurnDelay, opts.DebateRoundDelay, opts.Coin),
		busy:       semaphore.NewWeighted(1),
		logger:     logx.NewLogger("session"),
		ctx:        ctx,
		stop:       stop,
	}
}

// Roster returns the session's personas.
func (s *Session) Roster() *persona.Roster {
	return s.deps.Roster
}

// Transcript returns the shared transcript.
func (s *Session) Transcript() *Transcript {
	return s.deps.Transcript
}

// Mode returns the running orchestration mode, or "" when idle.
func (s *Session) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) setMode(mode string) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

// launch claims the session and runs fn in the background. prepare runs
// synchronously after the claim; its error releases the claim.
func (s *Session) launch(mode string, prepare func() error, fn func(ctx context.Context) error) error {
	if !s.busy.TryAcquire(1) {
		return ErrBusy
	}
	if s.ctx.Err() != nil {
		s.busy.Release(1)
		return context.Canceled
	}
	s.setMode(mode)
	if prepare != nil {
		if err := prepare(); err != nil {
			s.setMode("")
			s.busy.Release(1)
			return err
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.setMode("")
			s.busy.Release(1)
		}()
		if err := fn(s.ctx); err != nil {
			s.logger.Info("%s run ended: %v", mode, err)
		}
	}()
	return nil
}

// SendChat posts the chairman's message and answers it in the background.
func (s *Session) SendChat(text string) error {
	var runCtx context.Context
	var cancel context.CancelFunc
	return s.launch(ModeChat,
		func() error {
			if err := s.chat.Validate(text); err != nil {
				return err
			}
			runCtx, cancel = context.WithCancel(s.ctx)
			s.mu.Lock()
			s.chatCancel = cancel
			s.mu.Unlock()
			return nil
		},
		func(context.Context) error {
			defer func() {
				s.mu.Lock()
				s.chatCancel = nil
				s.mu.Unlock()
				cancel()
			}()
			return s.chat.Send(runCtx, text)
		})
}

// CancelChat stops the reply batch in progress, if any.
func (s *Session) CancelChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatCancel != nil {
		s.chatCancel()
	}
}

// SetTarget designates who answers the next chat message alone.
func (s *Session) SetTarget(id string) error {
	return s.chat.SetTarget(id)
}

// Target returns the pending chat target.
func (s *Session) Target() string {
	return s.chat.Target()
}

// Messages returns the transcript and the connections among the most recent
// messages.
func (s *Session) Messages() MessagesView {
	tr := s.deps.Transcript
	rev := tr.Revision()
	msgs := tr.Snapshot()
	return MessagesView{
		Messages:    msgs,
		Connections: mention.Connections(msgs, s.deps.Roster, s.opts.MentionWindow),
		Revision:    rev,
	}
}

// StartDiscussion opens a full-roster discussion on topic.
func (s *Session) StartDiscussion(topic string) error {
	return s.launch(ModeDiscussion,
		func() error { return s.discussion.Begin(topic) },
		s.discussion.Run)
}

// CancelDiscussion stops the discussion; recorded stances remain.
func (s *Session) CancelDiscussion() {
	s.discussion.Cancel()
}

// Discussion returns the discussion state with its race scores, and the
// summary once it has completed.
func (s *Session) Discussion() DiscussionView {
	st := s.discussion.State()
	msgs := onlyMessages(s.deps.Transcript.Snapshot(), st.MessageIDs)
	view := DiscussionView{
		State: st,
		Race: mention.RaceScores(s.deps.Roster, mention.RaceInput{
			Stances:      st.Stances,
			Messages:     msgs,
			SpeakerOrder: st.SpeakerOrder,
			CurrentIndex: st.CurrentSpeakerIndex,
			InProgress:   st.Status == DiscussionInProgress,
			Window:       s.opts.MentionWindow,
		}),
	}
	if st.Status == DiscussionCompleted {
		summary := mention.Summarize(st.Topic, st.Stances, msgs)
		view.Summary = &summary
	}
	return view
}

// onlyMessages keeps the messages whose ids are listed, in transcript order.
func onlyMessages(msgs []Message, ids []string) []Message {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	out := make([]Message, 0, len(ids))
	for _, m := range msgs {
		if keep[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

// Arena returns the debate arena.
func (s *Session) Arena() *Arena {
	return s.arena
}

// StartDebate begins the configured debate on topic.
func (s *Session) StartDebate(topic string) error {
	return s.launch(ModeDebate,
		func() error { return s.arena.Begin(topic) },
		s.arena.Run)
}

// CancelAll stops whatever is running.
func (s *Session) CancelAll() {
	switch s.Mode() {
	case ModeChat:
		s.CancelChat()
	case ModeDiscussion:
		s.discussion.Cancel()
	case ModeDebate:
		s.arena.Cancel()
	}
}

// Wait blocks until no orchestration goroutine is running.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels every run and waits for the goroutines to exit. The session
// refuses new runs afterwards.
func (s *Session) Close() {
	s.stop()
	s.CancelAll()
	s.wg.Wait()
}
