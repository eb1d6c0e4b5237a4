package protocol

import (
	"math/rand/v2"
	"regexp"
	"strings"

	"boardroom/pkg/persona"
)

// Side is a debate position.
type Side string

const (
	SideAttacker Side = "attacker"
	SideDefender Side = "defender"
)

// FallbackReason is the reason attached to a synthesized verdict.
const FallbackReason = "판정을 내리기 어려운 접전이었습니다."

// Verdict is one judge's decision.
type Verdict struct {
	JudgeID string `json:"agentId"`
	Winner  Side   `json:"winner"`
	Reason  string `json:"reason"`
	// Fallback marks a verdict synthesized for a judge the model omitted.
	Fallback bool `json:"fallback,omitempty"`
}

// Coin picks a side for a synthesized verdict.
type Coin func() Side

// RandomCoin picks either side with equal probability.
func RandomCoin() Side {
	if rand.IntN(2) == 0 { //nolint:gosec // not security sensitive
		return SideAttacker
	}
	return SideDefender
}

//nolint:gochecknoglobals // compiled once
var judgeTag = regexp.MustCompile(`\[JUDGE:([^:]+):(attacker|defender):([^\]]+)\]`)

// ParseVerdicts returns exactly one verdict per panelist, in panel order.
// Tags naming someone outside the panel are ignored; a judge's first tag
// wins. Panelists without a tag get a fallback verdict whose side comes from
// coin (RandomCoin when nil).
func ParseVerdicts(text string, panel []persona.Persona, coin Coin) []Verdict {
	if coin == nil {
		coin = RandomCoin
	}

	byName := make(map[string]string, len(panel))
	for _, p := range panel {
		byName[p.Name] = p.ID
	}

	found := make(map[string]Verdict, len(panel))
	for _, m := range judgeTag.FindAllStringSubmatch(text, -1) {
		id, ok := byName[strings.TrimSpace(m[1])]
		if !ok {
			continue
		}
		if _, seen := found[id]; seen {
			continue
		}
		found[id] = Verdict{
			JudgeID: id,
			Winner:  Side(strings.TrimSpace(m[2])),
			Reason:  strings.TrimSpace(m[3]),
		}
	}

	verdicts := make([]Verdict, 0, len(panel))
	for _, p := range panel {
		if v, ok := found[p.ID]; ok {
			verdicts = append(verdicts, v)
			continue
		}
		verdicts = append(verdicts, Verdict{
			JudgeID:  p.ID,
			Winner:   coin(),
			Reason:   FallbackReason,
			Fallback: true,
		})
	}
	return verdicts
}

// Tally counts votes per side.
func Tally(verdicts []Verdict) (attacker, defender int) {
	for _, v := range verdicts {
		switch v.Winner {
		case SideAttacker:
			attacker++
		case SideDefender:
			defender++
		}
	}
	return attacker, defender
}

// Winner returns the id of the winning debater. A tied vote goes to the
// attacker.
func Winner(attackerID, defenderID string, verdicts []Verdict) string {
	a, d := Tally(verdicts)
	if a >= d {
		return attackerID
	}
	return defenderID
}

// CountFallbacks returns how many verdicts were synthesized.
func CountFallbacks(verdicts []Verdict) int {
	n := 0
	for _, v := range verdicts {
		if v.Fallback {
			n++
		}
	}
	return n
}

// Round is one completed attacker/defender exchange.
type Round struct {
	Number          int    `json:"roundNumber"`
	AttackerContent string `json:"attackerContent"`
	DefenderContent string `json:"defenderContent"`
}
