// Package prompt renders the instruction text sent to the completion service
// for each orchestration mode.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"boardroom/pkg/chat"
	"boardroom/pkg/llm"
	"boardroom/pkg/persona"
	"boardroom/pkg/protocol"
)

//go:embed templates/*.tpl.md
var templateFS embed.FS

// Template names a prompt template.
type Template string

const (
	ChatSystemTemplate       Template = "chat_system.tpl.md"
	DiscussionSystemTemplate Template = "discussion_system.tpl.md"
	DebateSystemTemplate     Template = "debate_system.tpl.md"
	JudgeSystemTemplate      Template = "judge_system.tpl.md"
)

const (
	// DefaultHistoryCap bounds the chat history sent with each request.
	DefaultHistoryCap = 20
	// SpeakerSummaryRunes bounds each previous speaker's content in discussion prompts.
	SpeakerSummaryRunes = 200
	// RoundSummaryRunes bounds each side of a previous round in debate prompts.
	RoundSummaryRunes = 150
)

// Builder renders prompts from the embedded templates. It is safe for
// concurrent use.
type Builder struct {
	templates  map[Template]*template.Template
	roster     *persona.Roster
	historyCap int
}

// NewBuilder parses every template. roster resolves sender names in chat
// history; historyCap <= 0 selects DefaultHistoryCap.
func NewBuilder(roster *persona.Roster, historyCap int) (*Builder, error) {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	b := &Builder{
		templates:  make(map[Template]*template.Template),
		roster:     roster,
		historyCap: historyCap,
	}

	names := []Template{
		ChatSystemTemplate,
		DiscussionSystemTemplate,
		DebateSystemTemplate,
		JudgeSystemTemplate,
	}
	for _, name := range names {
		content, err := templateFS.ReadFile("templates/" + string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		tmpl, err := template.New(string(name)).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		b.templates[name] = tmpl
	}
	return b, nil
}

// HistoryCap returns the chat history bound.
func (b *Builder) HistoryCap() int {
	return b.historyCap
}

func (b *Builder) render(name Template, data any) (string, error) {
	tmpl, ok := b.templates[name]
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Chat builds a free-form chat request for p. System notices are left out of
// the history; other personas' lines are attributed by name.
func (b *Builder) Chat(p persona.Persona, history []chat.Message) ([]llm.CompletionMessage, error) {
	system, err := b.render(ChatSystemTemplate, p)
	if err != nil {
		return nil, err
	}

	trimmed := TrimHistory(history, b.historyCap)
	msgs := make([]llm.CompletionMessage, 0, len(trimmed)+1)
	msgs = append(msgs, llm.NewSystemMessage(system))
	for i := range trimmed {
		m := &trimmed[i]
		switch {
		case m.SenderID == chat.SenderUser:
			msgs = append(msgs, llm.NewUserMessage(m.Content))
		case m.SenderID == p.ID:
			msgs = append(msgs, llm.NewAssistantMessage(m.Content))
		default:
			msgs = append(msgs, llm.NewUserMessage(b.attribute(m.SenderID)+": "+m.Content))
		}
	}
	return msgs, nil
}

func (b *Builder) attribute(senderID string) string {
	if b.roster != nil {
		if other, ok := b.roster.Get(senderID); ok {
			return other.Label()
		}
	}
	return senderID
}

// TrimHistory drops system notices and empty placeholders, then bounds the
// history to limit messages. When trimming is needed the earliest user
// message is kept ahead of the most recent limit-1 messages so the meeting
// topic is never lost.
func TrimHistory(history []chat.Message, limit int) []chat.Message {
	kept := make([]chat.Message, 0, len(history))
	for i := range history {
		if history[i].SenderID == chat.SenderSystem || history[i].Content == "" {
			continue
		}
		kept = append(kept, history[i])
	}
	if limit <= 0 || len(kept) <= limit {
		return kept
	}

	firstUser := -1
	for i := range kept {
		if kept[i].SenderID == chat.SenderUser {
			firstUser = i
			break
		}
	}

	tailStart := len(kept) - (limit - 1)
	if firstUser < 0 || firstUser >= tailStart {
		return kept[len(kept)-limit:]
	}
	out := make([]chat.Message, 0, limit)
	out = append(out, kept[firstUser])
	return append(out, kept[tailStart:]...)
}

// Speaker is a completed discussion turn fed to later speakers.
type Speaker struct {
	Name    string
	Rank    persona.Rank
	Stance  protocol.Stance
	Content string
}

type discussionData struct {
	Instructions string
	Topic        string
	Now          string
	Previous     []Speaker
}

// Discussion builds the request for p's discussion turn.
func (b *Builder) Discussion(p persona.Persona, topic string, previous []Speaker, now time.Time) ([]llm.CompletionMessage, error) {
	summaries := make([]Speaker, len(previous))
	for i, s := range previous {
		s.Content = Truncate(s.Content, SpeakerSummaryRunes)
		summaries[i] = s
	}

	system, err := b.render(DiscussionSystemTemplate, discussionData{
		Instructions: p.Instructions,
		Topic:        topic,
		Now:          FormatKST(now),
		Previous:     summaries,
	})
	if err != nil {
		return nil, err
	}

	user := fmt.Sprintf("안건: %s\n\n위 안건에 대해 %s %s으로서 의견을 말씀해주십시오.", topic, p.Name, p.Rank)
	return []llm.CompletionMessage{llm.NewSystemMessage(system), llm.NewUserMessage(user)}, nil
}

// DebateInput describes one debate turn.
type DebateInput struct {
	Now              time.Time
	Speaker          persona.Persona
	Opponent         persona.Persona
	Side             protocol.Side
	Topic            string
	Previous         []protocol.Round
	OpponentArgument string // attacker's text this round; used for the defender only
	Round            int
	TotalRounds      int
}

type debateData struct {
	DebateInput
	Now          string
	AttackerName string
	DefenderName string
	IsAttacker   bool
}

// Debate builds the request for one side of a debate round.
func (b *Builder) Debate(in DebateInput) ([]llm.CompletionMessage, error) {
	data := debateData{
		DebateInput: in,
		Now:         FormatKST(in.Now),
		IsAttacker:  in.Side == protocol.SideAttacker,
	}
	if data.IsAttacker {
		data.AttackerName, data.DefenderName = in.Speaker.Name, in.Opponent.Name
	} else {
		data.AttackerName, data.DefenderName = in.Opponent.Name, in.Speaker.Name
	}
	data.Previous = make([]protocol.Round, len(in.Previous))
	for i, r := range in.Previous {
		r.AttackerContent = Truncate(r.AttackerContent, RoundSummaryRunes)
		r.DefenderContent = Truncate(r.DefenderContent, RoundSummaryRunes)
		data.Previous[i] = r
	}

	system, err := b.render(DebateSystemTemplate, data)
	if err != nil {
		return nil, err
	}

	var user string
	if data.IsAttacker {
		user = fmt.Sprintf("안건: %s\n\n%s %s으로서 라운드 %d 공격 발언을 해주십시오. 상대는 %s입니다.",
			in.Topic, in.Speaker.Name, in.Speaker.Rank, in.Round, in.Opponent.Name)
	} else {
		user = fmt.Sprintf("안건: %s\n\n%s %s으로서 %s의 주장에 대해 반박해주십시오.",
			in.Topic, in.Speaker.Name, in.Speaker.Rank, in.Opponent.Name)
	}
	return []llm.CompletionMessage{llm.NewSystemMessage(system), llm.NewUserMessage(user)}, nil
}

// JudgeInput describes a finished debate for the judge panel.
type JudgeInput struct {
	Topic    string
	Attacker persona.Persona
	Defender persona.Persona
	Rounds   []protocol.Round
	Panel    []persona.Persona
}

// Judge builds the single aggregate request for the whole panel.
func (b *Builder) Judge(in JudgeInput) ([]llm.CompletionMessage, error) {
	if len(in.Panel) == 0 {
		return nil, fmt.Errorf("judge panel is empty")
	}
	system, err := b.render(JudgeSystemTemplate, in)
	if err != nil {
		return nil, err
	}
	user := fmt.Sprintf("위 토론 대결에 대해 %d명의 심판이 각각 판정을 내려주십시오. 반드시 [JUDGE:이름:attacker|defender:이유] 형식을 사용하십시오.", len(in.Panel))
	return []llm.CompletionMessage{llm.NewSystemMessage(system), llm.NewUserMessage(user)}, nil
}
