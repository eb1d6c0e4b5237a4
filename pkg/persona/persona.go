// Package persona holds the fixed roster of meeting participants.
package persona

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rank is a corporate title. Ranks are totally ordered by seniority.
type Rank string

// Known ranks, most senior first.
const (
	RankChairman                Rank = "Chairman"
	RankViceChairman            Rank = "Vice Chairman"
	RankExecutiveManagingDirect Rank = "Executive Managing Director"
	RankManagingDirector        Rank = "Managing Director"
	RankDepartmentHead          Rank = "Department Head"
	RankDeputyGeneralManager    Rank = "Deputy General Manager"
	RankManager                 Rank = "Manager"
	RankAssistantManager        Rank = "Assistant Manager"
	RankJuniorStaff             Rank = "Junior Staff"
)

//nolint:gochecknoglobals // immutable ordering table
var rankOrder = []Rank{
	RankChairman,
	RankViceChairman,
	RankExecutiveManagingDirect,
	RankManagingDirector,
	RankDepartmentHead,
	RankDeputyGeneralManager,
	RankManager,
	RankAssistantManager,
	RankJuniorStaff,
}

// Seniority returns the position of r in the rank order; lower is more
// senior. Unknown ranks sort after every known rank.
func (r Rank) Seniority() int {
	for i, known := range rankOrder {
		if known == r {
			return i
		}
	}
	return len(rankOrder)
}

// Short returns the last word of the rank ("Director", "Staff").
func (r Rank) Short() string {
	fields := strings.Fields(string(r))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// Persona is one simulated employee.
type Persona struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Rank         Rank   `yaml:"rank" json:"rank"`
	Role         string `yaml:"role" json:"role"`
	Personality  string `yaml:"personality" json:"personality"`
	AvatarColor  string `yaml:"avatar_color" json:"avatarColor"`
	Instructions string `yaml:"instructions" json:"-"`
}

// ShortName is the abbreviated form used when personas address each other:
// the first rune of the name followed by the last word of the rank.
func (p Persona) ShortName() string {
	for _, r := range p.Name {
		return string(r) + p.Rank.Short()
	}
	return p.Rank.Short()
}

// Label renders "이름(직급)".
func (p Persona) Label() string {
	return fmt.Sprintf("%s(%s)", p.Name, p.Rank)
}

// Roster is an ordered, read-only set of personas.
type Roster struct {
	personas []Persona
	byID     map[string]int
}

//go:embed roster.yaml
var defaultRoster []byte

type rosterFile struct {
	Personas []Persona `yaml:"personas"`
}

// Default parses the embedded roster.
func Default() (*Roster, error) {
	return Parse(defaultRoster)
}

// MustDefault is Default for process start, where a broken embedded file is a
// build defect.
func MustDefault() *Roster {
	r, err := Default()
	if err != nil {
		panic(err)
	}
	return r
}

// Parse decodes a YAML roster document.
func Parse(data []byte) (*Roster, error) {
	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	return New(file.Personas)
}

// New builds a roster, rejecting missing fields and duplicate ids or names.
func New(personas []Persona) (*Roster, error) {
	if len(personas) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}
	r := &Roster{
		personas: make([]Persona, len(personas)),
		byID:     make(map[string]int, len(personas)),
	}
	names := make(map[string]bool, len(personas))
	for i, p := range personas {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("persona %d: id and name are required", i)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona id %q", p.ID)
		}
		if names[p.Name] {
			return nil, fmt.Errorf("duplicate persona name %q", p.Name)
		}
		names[p.Name] = true
		r.byID[p.ID] = i
		r.personas[i] = p
	}
	return r, nil
}

// All returns the personas in roster order.
func (r *Roster) All() []Persona {
	out := make([]Persona, len(r.personas))
	copy(out, r.personas)
	return out
}

// Len returns the roster size.
func (r *Roster) Len() int {
	return len(r.personas)
}

// Get looks a persona up by id.
func (r *Roster) Get(id string) (Persona, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Persona{}, false
	}
	return r.personas[i], true
}

// Contains reports whether id belongs to the roster.
func (r *Roster) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// SortedByRank returns the personas ordered by seniority; equal ranks keep
// roster order.
func (r *Roster) SortedByRank() []Persona {
	out := r.All()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rank.Seniority() < out[j].Rank.Seniority()
	})
	return out
}

// Except returns the personas in roster order, skipping the given ids.
func (r *Roster) Except(ids ...string) []Persona {
	skip := make(map[string]bool, len(ids))
	for _, id := range ids {
		skip[id] = true
	}
	out := make([]Persona, 0, len(r.personas))
	for _, p := range r.personas {
		if !skip[p.ID] {
			out = append(out, p)
		}
	}
	return out
}
