package meeting

import (
	"math/rand/v2"

	"boardroom/pkg/persona"
)

// SpeakerSelector picks who answers a chat message. A non-empty target
// always yields exactly that persona.
type SpeakerSelector interface {
	Select(roster []persona.Persona, target string) []persona.Persona
}

// RandomSelector picks a shuffled subset of between Min and Max personas.
type RandomSelector struct {
	Min int
	Max int
}

// DefaultSelector answers with two or three random personas.
func DefaultSelector() RandomSelector {
	return RandomSelector{Min: 2, Max: 3}
}

// Select implements SpeakerSelector.
func (s RandomSelector) Select(roster []persona.Persona, target string) []persona.Persona {
	if p, ok := findTarget(roster, target); ok {
		return []persona.Persona{p}
	}

	shuffled := make([]persona.Persona, len(roster))
	copy(shuffled, roster)
	rand.Shuffle(len(shuffled), func(i, j int) { //nolint:gosec // not security sensitive
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	lo, hi := max(s.Min, 1), max(s.Max, s.Min)
	n := lo
	if hi > lo {
		n += rand.IntN(hi - lo + 1) //nolint:gosec // not security sensitive
	}
	return shuffled[:min(n, len(shuffled))]
}

// FixedSelector answers with the listed personas in order.
type FixedSelector []string

// Select implements SpeakerSelector.
func (s FixedSelector) Select(roster []persona.Persona, target string) []persona.Persona {
	if p, ok := findTarget(roster, target); ok {
		return []persona.Persona{p}
	}
	var out []persona.Persona
	for _, id := range s {
		if p, ok := findTarget(roster, id); ok {
			out = append(out, p)
		}
	}
	return out
}

func findTarget(roster []persona.Persona, id string) (persona.Persona, bool) {
	if id == "" {
		return persona.Persona{}, false
	}
	for _, p := range roster {
		if p.ID == id {
			return p, true
		}
	}
	return persona.Persona{}, false
}
