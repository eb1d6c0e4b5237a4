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
	"boardroom/pkg/prompt"
	"boardroom/pkg/protocol"
)

// DiscussionStatus is the lifecycle of a discussion.
type DiscussionStatus string

const (
	DiscussionIdle       DiscussionStatus = "idle"
	DiscussionInProgress DiscussionStatus = "in_progress"
	DiscussionCompleted  DiscussionStatus = "completed"
)

// DiscussionState is a snapshot of the discussion.
type DiscussionState struct {
	Stances             map[string]protocol.Stance `json:"stances"`
	Status              DiscussionStatus           `json:"status"`
	Topic               string                     `json:"topic"`
	SpeakerOrder        []string                   `json:"speakerOrder"`
	CurrentSpeakerIndex int                        `json:"currentSpeakerIndex"`
	// MessageIDs are the transcript messages posted by this run.
	MessageIDs          []string                   `json:"messageIds"`
}

func (s DiscussionState) clone() DiscussionState {
	out := s
	out.SpeakerOrder = append([]string(nil), s.SpeakerOrder...)
	out.MessageIDs = append([]string(nil), s.MessageIDs...)
	out.Stances = make(map[string]protocol.Stance, len(s.Stances))
	for k, v := range s.Stances {
		out.Stances[k] = v
	}
	return out
}

// DiscussionOrchestrator has every persona speak once on a topic, most
// senior first, each seeing the stances and words of those before.
type DiscussionOrchestrator struct {
	deps    *Deps
	logger  *logx.Logger
	cancel  context.CancelFunc
	state   DiscussionState
	pacing  Delay
	run     uint64
	mu      sync.Mutex
	running bool
}

// NewDiscussionOrchestrator creates an idle discussion.
func NewDiscussionOrchestrator(deps *Deps, pacing Delay) *DiscussionOrchestrator {
	return &DiscussionOrchestrator{
		deps:   deps.withDefaults(),
		pacing: pacing,
		logger: logx.NewLogger("discussion"),
		state:  idleDiscussion(),
	}
}

func idleDiscussion() DiscussionState {
	return DiscussionState{
		Status:              DiscussionIdle,
		CurrentSpeakerIndex: -1,
		Stances:             map[string]protocol.Stance{},
	}
}

// State returns a snapshot.
func (d *DiscussionOrchestrator) State() DiscussionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.clone()
}

// Begin fixes the topic and speaking order. Run must follow.
func (d *DiscussionOrchestrator) Begin(topic string) error {
	topic, err := cleanTopic(topic)
	if err != nil {
		return err
	}

	order := make([]string, 0, d.deps.Roster.Len())
	for _, p := range d.deps.Roster.SortedByRank() {
		order = append(order, p.ID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrBusy
	}
	d.run++
	d.state = DiscussionState{
		Status:              DiscussionInProgress,
		Topic:               topic,
		SpeakerOrder:        order,
		CurrentSpeakerIndex: -1,
		Stances:             map[string]protocol.Stance{},
	}
	return nil
}

// Cancel stops a running discussion and returns it to idle. Stances already
// recorded stay visible.
func (d *DiscussionOrchestrator) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.run++
	d.state.Status = DiscussionIdle
	d.state.CurrentSpeakerIndex = -1
}

// update applies fn if run is still the current run.
func (d *DiscussionOrchestrator) update(run uint64, fn func(*DiscussionState)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.run != run {
		return false
	}
	fn(&d.state)
	return true
}

// Run drives the discussion started by Begin until every persona has spoken,
// ctx is done, or Cancel is called.
func (d *DiscussionOrchestrator) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrBusy
	}
	if d.state.Status != DiscussionInProgress {
		d.mu.Unlock()
		return ErrInvalidPhase
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	run := d.run
	topic := d.state.Topic
	order := append([]string(nil), d.state.SpeakerOrder...)
	d.mu.Unlock()

	defer func() {
		cancel()
		d.mu.Lock()
		d.running = false
		if d.run == run {
			d.cancel = nil
		}
		d.mu.Unlock()
	}()

	d.logger.Info("Discussion started: topic=%q speakers=%d", topic, len(order))
	err := d.loop(runCtx, run, topic, order)
	if err != nil {
		d.update(run, func(s *DiscussionState) {
			s.Status = DiscussionIdle
			s.CurrentSpeakerIndex = -1
		})
		d.logger.Info("Discussion stopped: %v", err)
		return err
	}

	d.update(run, func(s *DiscussionState) {
		s.Status = DiscussionCompleted
		s.CurrentSpeakerIndex = len(order)
	})
	d.logger.Info("Discussion completed: topic=%q", topic)
	return nil
}

func (d *DiscussionOrchestrator) loop(ctx context.Context, run uint64, topic string, order []string) error {
	var previous []prompt.Speaker
	for i, id := range order {
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck // context error
		}
		p, ok := d.deps.Roster.Get(id)
		if !ok {
			continue
		}
		if !d.update(run, func(s *DiscussionState) { s.CurrentSpeakerIndex = i }) {
			return context.Canceled
		}
		if err := d.deps.Pacer.Pause(ctx, d.pacing); err != nil {
			return err //nolint:wrapcheck // context error
		}

		spoken, err := d.turn(ctx, run, p, topic, previous)
		if ctx.Err() != nil {
			return ctx.Err() //nolint:wrapcheck // context error
		}

		if err != nil {
			d.logger.Error("Discussion turn for %s failed: %v", p.Name, err)
			d.deps.Transcript.Post(chat.SenderSystem, fmt.Sprintf("%s: %s", p.Name, failureText(err)))
			d.update(run, func(s *DiscussionState) { s.CurrentSpeakerIndex = i + 1 })
			continue
		}

		previous = append(previous, spoken)
		if !d.update(run, func(s *DiscussionState) {
			s.Stances[p.ID] = spoken.Stance
			s.CurrentSpeakerIndex = i + 1
		}) {
			return context.Canceled
		}
	}
	return nil
}

func (d *DiscussionOrchestrator) turn(ctx context.Context, run uint64, p persona.Persona, topic string, previous []prompt.Speaker) (prompt.Speaker, error) {
	start := time.Now()
	msgs, err := d.deps.Prompts.Discussion(p, topic, previous, d.deps.Clock())
	if err != nil {
		d.deps.observeTurn(ModeDiscussion, start, err)
		return prompt.Speaker{}, err
	}

	tr := d.deps.Transcript
	placeholder := tr.Post(p.ID, "")
	d.update(run, func(s *DiscussionState) { s.MessageIDs = append(s.MessageIDs, placeholder.ID) })
	text, err := d.deps.stream(ctx, ModeDiscussion, msgs, func(acc string) {
		_ = tr.Update(placeholder.ID, protocol.DisplayText(acc))
	})
	if ctx.Err() != nil {
		if strings.TrimSpace(protocol.DisplayText(text)) == "" {
			tr.Remove(placeholder.ID)
		}
		d.deps.observeTurn(ModeDiscussion, start, ctx.Err())
		return prompt.Speaker{}, ctx.Err() //nolint:wrapcheck // context error
	}
	if err != nil {
		tr.Remove(placeholder.ID)
		d.deps.observeTurn(ModeDiscussion, start, err)
		return prompt.Speaker{}, err
	}

	result := protocol.ParseStance(text)
	_ = tr.Finalize(placeholder.ID, result.Clean, result.Stance)
	logx.Debug(ctx, "discussion", "%s stance=%s source=%s", p.Name, result.Stance, result.Source)
	d.deps.observeTurn(ModeDiscussion, start, nil)

	return prompt.Speaker{
		Name:    p.Name,
		Rank:    p.Rank,
		Stance:  result.Stance,
		Content: result.Clean,
	}, nil
}

// Start begins a discussion on topic and runs it to completion.
func (d *DiscussionOrchestrator) Start(ctx context.Context, topic string) error {
	if err := d.Begin(topic); err != nil {
		return err
	}
	return d.Run(ctx)
}
