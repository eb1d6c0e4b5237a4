package mention

import (
	"regexp"
	"unicode/utf8"

	"boardroom/pkg/chat"
	"boardroom/pkg/persona"
	"boardroom/pkg/protocol"
)

const (
	// MaxRaceScore caps a persona's race score.
	MaxRaceScore = 80

	keyPointMinRunes = 10
	keyPointMaxRunes = 80
)

//nolint:gochecknoglobals // compiled once
var sentenceBreak = regexp.MustCompile(`[.!?。]\s*`)

// MajorityStance returns the stance held by strictly more personas than any
// stance before it in tie-break order. ok is false when stances is empty.
func MajorityStance(stances map[string]protocol.Stance) (majority protocol.Stance, ok bool) {
	counts := CountStances(stances)
	best := 0
	for _, s := range protocol.Stances() {
		if counts[s] > best {
			majority, best = s, counts[s]
		}
	}
	return majority, best > 0
}

// CountStances tallies stances.
func CountStances(stances map[string]protocol.Stance) map[protocol.Stance]int {
	counts := make(map[protocol.Stance]int, 4)
	for _, s := range protocol.Stances() {
		counts[s] = 0
	}
	for _, s := range stances {
		counts[s]++
	}
	return counts
}

// KeyPoint is the headline sentence of one stanced message.
type KeyPoint struct {
	AgentID string `json:"agentId"`
	Point   string `json:"point"`
}

// KeyPoints extracts a headline from every persona message carrying a stance.
func KeyPoints(messages []chat.Message) []KeyPoint {
	var out []KeyPoint
	for i := range messages {
		m := &messages[i]
		if !m.FromPersona() || m.Stance == "" || m.Content == "" {
			continue
		}
		out = append(out, KeyPoint{AgentID: m.SenderID, Point: keyPoint(m.Content)})
	}
	return out
}

func keyPoint(content string) string {
	var sentences []string
	for _, s := range sentenceBreak.Split(content, -1) {
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	point := content
	if len(sentences) > 0 {
		point = sentences[0]
	}
	for _, s := range sentences {
		if utf8.RuneCountInString(s) > keyPointMinRunes {
			point = s
			break
		}
	}

	if utf8.RuneCountInString(point) > keyPointMaxRunes {
		return string([]rune(point)[:keyPointMaxRunes]) + "..."
	}
	return point
}

// Segment is one stance's share of the recorded stances.
type Segment struct {
	Stance  protocol.Stance `json:"stance"`
	Count   int             `json:"count"`
	Percent float64         `json:"percent"`
}

// Summary is the end-of-discussion report.
type Summary struct {
	Topic     string                  `json:"topic"`
	Majority  protocol.Stance         `json:"majority"`
	Counts    map[protocol.Stance]int `json:"counts"`
	Segments  []Segment               `json:"segments"`
	KeyPoints []KeyPoint              `json:"keyPoints"`
	Total     int                     `json:"total"`
}

// Summarize builds the discussion report. With no stances the majority is
// neutral.
func Summarize(topic string, stances map[string]protocol.Stance, messages []chat.Message) Summary {
	counts := CountStances(stances)
	majority, ok := MajorityStance(stances)
	if !ok {
		majority = protocol.StanceNeutral
	}

	var segments []Segment
	total := len(stances)
	for _, s := range []protocol.Stance{protocol.StanceAgree, protocol.StanceDisagree, protocol.StanceCautious, protocol.StanceNeutral} {
		if counts[s] == 0 {
			continue
		}
		segments = append(segments, Segment{
			Stance:  s,
			Count:   counts[s],
			Percent: float64(counts[s]) / float64(total) * 100,
		})
	}

	return Summary{
		Topic:     topic,
		Majority:  majority,
		Counts:    counts,
		Segments:  segments,
		KeyPoints: KeyPoints(messages),
		Total:     total,
	}
}

// RaceInput is the discussion progress needed to score the race view.
type RaceInput struct {
	Stances      map[string]protocol.Stance
	Messages     []chat.Message
	SpeakerOrder []string
	CurrentIndex int
	InProgress   bool
	Window       int
}

// RaceScore is one persona's standing.
type RaceScore struct {
	AgentID      string          `json:"agentId"`
	AgentName    string          `json:"agentName"`
	Stance       protocol.Stance `json:"stance,omitempty"`
	Score        int             `json:"score"`
	MentionCount int             `json:"mentionCount"`
	Spoke        bool            `json:"spoke"`
}

// RaceScores scores every persona in rank order: 30 for having spoken (or
// speaking now), 15 per incoming mention, 10 for holding the majority stance,
// and up to 15 for the length of their first stanced message, capped at
// MaxRaceScore.
func RaceScores(roster *persona.Roster, in RaceInput) []RaceScore {
	mentionCounts := make(map[string]int)
	for _, c := range Connections(in.Messages, roster, in.Window) {
		mentionCounts[c.To]++
	}
	majority, hasMajority := MajorityStance(in.Stances)

	position := make(map[string]int, len(in.SpeakerOrder))
	for i, id := range in.SpeakerOrder {
		position[id] = i
	}

	sorted := roster.SortedByRank()
	out := make([]RaceScore, 0, len(sorted))
	for _, p := range sorted {
		stance := in.Stances[p.ID]
		idx, ordered := position[p.ID]
		spoke := ordered && idx < in.CurrentIndex
		current := ordered && idx == in.CurrentIndex && in.InProgress

		score := 0
		if spoke || current {
			score += 30
		}
		mentions := mentionCounts[p.ID]
		score += mentions * 15
		if stance != "" && hasMajority && stance == majority {
			score += 10
		}
		for i := range in.Messages {
			m := &in.Messages[i]
			if m.SenderID == p.ID && m.Content != "" && m.Stance != "" {
				score += min(15, utf8.RuneCountInString(m.Content)/50)
				break
			}
		}

		out = append(out, RaceScore{
			AgentID:      p.ID,
			AgentName:    p.Name,
			Stance:       stance,
			Score:        min(score, MaxRaceScore),
			MentionCount: mentions,
			Spoke:        spoke || current,
		})
	}
	return out
}
