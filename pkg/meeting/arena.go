package meeting

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"boardroom/pkg/chat"
	"boardroom/pkg/llm"
	"boardroom/pkg/logx"
	"boardroom/pkg/persona"
	"boardroom/pkg/prompt"
	"boardroom/pkg/protocol"
)

// ArenaPhase is the lifecycle of a debate.
type ArenaPhase string

const (
	PhaseIdle          ArenaPhase = "idle"
	PhaseSelectAgents  ArenaPhase = "select_agents"
	PhaseSelectOptions ArenaPhase = "select_options"
	PhaseInProgress    ArenaPhase = "in_progress"
	PhaseJudging       ArenaPhase = "judging"
	PhaseResult        ArenaPhase = "result"
)

// DefaultRounds is the round count of a fresh arena.
const DefaultRounds = 3

// failedTurnContent replaces the argument of a debater whose turn failed.
const failedTurnContent = "(응답 실패)"

// RoundOptions lists the allowed round counts.
func RoundOptions() []int {
	return []int{2, 3, 5}
}

// ErrSlotsFull is returned when both debater slots are taken.
var ErrSlotsFull = errors.New("attacker and defender are already selected")

// ArenaState is a snapshot of the debate arena.
type ArenaState struct {
	Phase            ArenaPhase         `json:"phase"`
	AttackerID       string             `json:"attacker,omitempty"`
	DefenderID       string             `json:"defender,omitempty"`
	Topic            string             `json:"topic"`
	CurrentTurn      protocol.Side      `json:"currentTurn"`
	StreamingContent string             `json:"streamingContent"`
	WinnerID         string             `json:"winnerId,omitempty"`
	Error            string             `json:"error,omitempty"`
	Rounds           []protocol.Round   `json:"rounds"`
	Verdicts         []protocol.Verdict `json:"verdicts"`
	TotalRounds      int                `json:"totalRounds"`
	CurrentRound     int                `json:"currentRound"`
	AttackerVotes    int                `json:"attackerVotes"`
	DefenderVotes    int                `json:"defenderVotes"`
}

func initialArena() ArenaState {
	return ArenaState{
		Phase:       PhaseIdle,
		TotalRounds: DefaultRounds,
		CurrentTurn: protocol.SideAttacker,
		Rounds:      []protocol.Round{},
		Verdicts:    []protocol.Verdict{},
	}
}

func (s ArenaState) clone() ArenaState {
	out := s
	out.Rounds = append([]protocol.Round{}, s.Rounds...)
	out.Verdicts = append([]protocol.Verdict{}, s.Verdicts...)
	return out
}

// Arena runs a two-persona debate followed by a verdict from everyone else.
type Arena struct {
	deps       *Deps
	coin       protocol.Coin
	logger     *logx.Logger
	cancel     context.CancelFunc
	state      ArenaState
	turnDelay  time.Duration
	roundDelay time.Duration
	run        uint64
	mu         sync.Mutex
	running    bool
}

// NewArena creates a closed arena. A nil coin selects protocol.RandomCoin
// for verdicts the judges leave out.
func NewArena(deps *Deps, turnDelay, roundDelay time.Duration, coin protocol.Coin) *Arena {
	if coin == nil {
		coin = protocol.RandomCoin
	}
	return &Arena{
		deps:       deps.withDefaults(),
		coin:       coin,
		turnDelay:  turnDelay,
		roundDelay: roundDelay,
		logger:     logx.NewLogger("arena"),
		state:      initialArena(),
	}
}

// State returns a snapshot.
func (a *Arena) State() ArenaState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.clone()
}

// Open starts debater selection with a fresh arena.
func (a *Arena) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return ErrBusy
	}
	a.run++
	a.state = initialArena()
	a.state.Phase = PhaseSelectAgents
	return nil
}

// Close cancels any running debate and resets the arena.
func (a *Arena) Close() {
	a.Cancel()
}

// Cancel aborts the debate, including an in-flight stream, and resets the
// arena to idle.
func (a *Arena) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.run++
	a.state = initialArena()
}

// Select assigns id to the first free slot, attacker first. Selecting an
// assigned persona again removes it.
func (a *Arena) Select(id string) error {
	if !a.deps.Roster.Contains(id) {
		return fmt.Errorf("%w: %s", ErrUnknownPersona, id)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Phase != PhaseSelectAgents {
		return ErrInvalidPhase
	}

	s := &a.state
	switch {
	case s.AttackerID == id:
		s.AttackerID = ""
	case s.DefenderID == id:
		s.DefenderID = ""
	case s.AttackerID == "":
		s.AttackerID = id
	case s.DefenderID == "":
		s.DefenderID = id
	default:
		return ErrSlotsFull
	}
	return nil
}

// Deselect frees the slot held by id, if any.
func (a *Arena) Deselect(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Phase != PhaseSelectAgents {
		return ErrInvalidPhase
	}
	switch id {
	case a.state.AttackerID:
		a.state.AttackerID = ""
	case a.state.DefenderID:
		a.state.DefenderID = ""
	}
	return nil
}

// ConfirmAgents moves on to options once both slots are filled.
func (a *Arena) ConfirmAgents() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Phase != PhaseSelectAgents || a.state.AttackerID == "" || a.state.DefenderID == "" {
		return ErrInvalidPhase
	}
	a.state.Phase = PhaseSelectOptions
	return nil
}

// SetRounds sets the round count; n must be one of RoundOptions.
func (a *Arena) SetRounds(n int) error {
	if !slices.Contains(RoundOptions(), n) {
		return fmt.Errorf("%w: %d rounds (allowed %v)", ErrInvalidPhase, n, RoundOptions())
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Phase != PhaseSelectAgents && a.state.Phase != PhaseSelectOptions {
		return ErrInvalidPhase
	}
	a.state.TotalRounds = n
	return nil
}

// Begin fixes the topic and enters the in-progress phase. Run must follow.
func (a *Arena) Begin(topic string) error {
	topic, err := cleanTopic(topic)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return ErrBusy
	}
	if a.state.Phase != PhaseSelectOptions {
		return ErrInvalidPhase
	}
	a.state.Phase = PhaseInProgress
	a.state.Topic = topic
	a.state.CurrentRound = 1
	a.state.CurrentTurn = protocol.SideAttacker
	a.state.Rounds = []protocol.Round{}
	a.state.Verdicts = []protocol.Verdict{}
	a.state.StreamingContent = ""
	a.state.WinnerID = ""
	a.state.Error = ""
	return nil
}

func (a *Arena) update(run uint64, fn func(*ArenaState)) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.run != run {
		return false
	}
	fn(&a.state)
	return true
}

// Run plays every round and then judges. Cancellation resets the arena.
func (a *Arena) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrBusy
	}
	if a.state.Phase != PhaseInProgress {
		a.mu.Unlock()
		return ErrInvalidPhase
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true
	run := a.run
	st := a.state.clone()
	a.mu.Unlock()

	defer func() {
		cancel()
		a.mu.Lock()
		a.running = false
		if a.run == run {
			a.cancel = nil
		}
		a.mu.Unlock()
	}()

	attacker, _ := a.deps.Roster.Get(st.AttackerID)
	defender, _ := a.deps.Roster.Get(st.DefenderID)
	a.logger.Info("Debate started: %s vs %s, %d rounds, topic=%q", attacker.Name, defender.Name, st.TotalRounds, st.Topic)

	rounds, err := a.debate(runCtx, run, attacker, defender, st.Topic, st.TotalRounds)
	if err == nil {
		err = a.judge(runCtx, run, attacker, defender, st.Topic, rounds)
	}
	if err != nil {
		// Only cancellation reaches here; reset unless Cancel already did.
		a.update(run, func(s *ArenaState) { *s = initialArena() })
		a.logger.Info("Debate stopped: %v", err)
		return err
	}
	return nil
}

func (a *Arena) debate(ctx context.Context, run uint64, attacker, defender persona.Persona, topic string, total int) ([]protocol.Round, error) {
	var rounds []protocol.Round
	for n := 1; n <= total; n++ {
		if !a.update(run, func(s *ArenaState) {
			s.CurrentRound = n
			s.CurrentTurn = protocol.SideAttacker
			s.StreamingContent = ""
		}) {
			return nil, context.Canceled
		}

		in := prompt.DebateInput{
			Speaker:     attacker,
			Opponent:    defender,
			Side:        protocol.SideAttacker,
			Topic:       topic,
			Previous:    rounds,
			Round:       n,
			TotalRounds: total,
		}
		attackText, err := a.turn(ctx, run, in)
		if err != nil {
			return nil, err
		}

		if !a.update(run, func(s *ArenaState) {
			s.CurrentTurn = protocol.SideDefender
			s.StreamingContent = ""
		}) {
			return nil, context.Canceled
		}

		in.Speaker, in.Opponent = defender, attacker
		in.Side = protocol.SideDefender
		in.OpponentArgument = attackText
		defendText, err := a.turn(ctx, run, in)
		if err != nil {
			return nil, err
		}

		rounds = append(rounds, protocol.Round{Number: n, AttackerContent: attackText, DefenderContent: defendText})
		snapshot := append([]protocol.Round{}, rounds...)
		if !a.update(run, func(s *ArenaState) {
			s.Rounds = snapshot
			s.StreamingContent = ""
		}) {
			return nil, context.Canceled
		}

		if n < total {
			if err := sleep(ctx, a.roundDelay); err != nil {
				return nil, err
			}
		}
	}
	return rounds, nil
}

// turn streams one side's argument. Failures become the placeholder
// argument; only cancellation is returned.
func (a *Arena) turn(ctx context.Context, run uint64, in prompt.DebateInput) (string, error) {
	if err := a.deps.Pacer.Pause(ctx, Fixed(a.turnDelay)); err != nil {
		return "", err //nolint:wrapcheck // context error
	}

	start := time.Now()
	in.Now = a.deps.Clock()
	msgs, err := a.deps.Prompts.Debate(in)
	var text string
	if err == nil {
		text, err = a.deps.stream(ctx, ModeDebate, msgs, func(acc string) {
			a.update(run, func(s *ArenaState) { s.StreamingContent = acc })
		})
	}
	if ctx.Err() != nil {
		a.deps.observeTurn(ModeDebate, start, ctx.Err())
		return "", ctx.Err() //nolint:wrapcheck // context error
	}
	if err != nil {
		a.logger.Error("Debate turn for %s (%s) failed: %v", in.Speaker.Name, in.Side, err)
		a.deps.Transcript.Post(chat.SenderSystem, fmt.Sprintf("[System Error] %s: %s", in.Speaker.Name, failureText(err)))
		a.deps.observeTurn(ModeDebate, start, err)
		return failedTurnContent, nil
	}

	a.deps.observeTurn(ModeDebate, start, nil)
	return strings.TrimSpace(text), nil
}

// judge asks the panel for verdicts. A failed request still ends in the
// result phase, with no verdicts and no winner.
func (a *Arena) judge(ctx context.Context, run uint64, attacker, defender persona.Persona, topic string, rounds []protocol.Round) error {
	if !a.update(run, func(s *ArenaState) {
		s.Phase = PhaseJudging
		s.StreamingContent = ""
	}) {
		return context.Canceled
	}

	panel := a.deps.Roster.Except(attacker.ID, defender.ID)
	msgs, err := a.deps.Prompts.Judge(prompt.JudgeInput{
		Topic:    topic,
		Attacker: attacker,
		Defender: defender,
		Rounds:   rounds,
		Panel:    panel,
	})
	var resp llm.CompletionResponse
	if err == nil {
		resp, err = a.deps.Client.Complete(ctx, llm.NewCompletionRequest(ModeJudge, msgs))
	}
	if ctx.Err() != nil {
		return ctx.Err() //nolint:wrapcheck // context error
	}
	if err != nil {
		a.logger.Error("Judging failed: %v", err)
		a.update(run, func(s *ArenaState) {
			s.Phase = PhaseResult
			s.Verdicts = []protocol.Verdict{}
			s.WinnerID = ""
			s.AttackerVotes, s.DefenderVotes = 0, 0
			s.Error = failureText(err)
		})
		return nil
	}

	verdicts := protocol.ParseVerdicts(resp.Content, panel, a.coin)
	attackerVotes, defenderVotes := protocol.Tally(verdicts)
	winner := protocol.Winner(attacker.ID, defender.ID, verdicts)
	fallback := protocol.CountFallbacks(verdicts)
	a.deps.Recorder.ObserveVerdicts(len(verdicts)-fallback, fallback)
	if fallback > 0 {
		a.logger.Warn("Judge response covered %d of %d judges; filled the rest", len(verdicts)-fallback, len(verdicts))
	}

	a.update(run, func(s *ArenaState) {
		s.Phase = PhaseResult
		s.Verdicts = verdicts
		s.WinnerID = winner
		s.AttackerVotes = attackerVotes
		s.DefenderVotes = defenderVotes
	})
	a.logger.Info("Debate result: winner=%s votes=%d:%d", winner, attackerVotes, defenderVotes)
	return nil
}

// Start begins a debate on topic and runs it to the result.
func (a *Arena) Start(ctx context.Context, topic string) error {
	if err := a.Begin(topic); err != nil {
		return err
	}
	return a.Run(ctx)
}
