// Package mention derives who-addressed-whom relations and discussion
// summaries from the transcript. Everything here is recomputed from the
// message list on each call.
package mention

import (
	"strings"

	"boardroom/pkg/chat"
	"boardroom/pkg/persona"
	"boardroom/pkg/protocol"
)

// DefaultWindow is the number of most recent messages scanned for mentions.
const DefaultWindow = 9

// Connection is an undirected relation between a speaker and a persona they
// addressed, drawn with the speaker's stance.
type Connection struct {
	ID     string          `json:"id"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Stance protocol.Stance `json:"stance"`
}

// Mentions returns the ids of other personas named in content, in roster
// order. A persona is named by full name or by short name.
func Mentions(roster *persona.Roster, senderID, content string) []string {
	var ids []string
	for _, p := range roster.All() {
		if p.ID == senderID {
			continue
		}
		if strings.Contains(content, p.Name) || strings.Contains(content, p.ShortName()) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Connections scans the last window messages (DefaultWindow when window <= 0)
// in chronological order. Each unordered pair appears once; the first
// occurrence wins.
func Connections(messages []chat.Message, roster *persona.Roster, window int) []Connection {
	if window <= 0 {
		window = DefaultWindow
	}
	if len(messages) > window {
		messages = messages[len(messages)-window:]
	}

	seen := make(map[string]bool)
	var out []Connection
	for i := range messages {
		msg := &messages[i]
		if !msg.FromPersona() || msg.Content == "" {
			continue
		}
		stance := msg.Stance
		if stance == "" {
			stance = protocol.StanceNeutral
		}
		for _, target := range Mentions(roster, msg.SenderID, msg.Content) {
			key := pairKey(msg.SenderID, target)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Connection{
				ID:     msg.SenderID + "-" + target,
				From:   msg.SenderID,
				To:     target,
				Stance: stance,
			})
		}
	}
	return out
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "-" + b
}
