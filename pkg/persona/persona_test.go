package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRoster(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	require.Equal(t, 9, r.Len())

	p, ok := r.Get("agent-2")
	require.True(t, ok)
	assert.Equal(t, "이전무", p.Name)
	assert.Equal(t, RankExecutiveManagingDirect, p.Rank)
	assert.Contains(t, p.Instructions, "[NAME] 이전무")
	assert.Equal(t, "bg-stone-700", p.AvatarColor)

	_, ok = r.Get("agent-10")
	assert.False(t, ok)
}

func TestSeniority(t *testing.T) {
	assert.Less(t, RankChairman.Seniority(), RankViceChairman.Seniority())
	assert.Less(t, RankManager.Seniority(), RankJuniorStaff.Seniority())
	assert.Equal(t, len(rankOrder), Rank("Intern").Seniority())
}

func TestSortedByRankIsStable(t *testing.T) {
	r, err := New([]Persona{
		{ID: "a", Name: "A", Rank: RankJuniorStaff},
		{ID: "b", Name: "B", Rank: RankViceChairman},
		{ID: "c", Name: "C", Rank: RankJuniorStaff},
		{ID: "d", Name: "D", Rank: RankManager},
	})
	require.NoError(t, err)

	var ids []string
	for _, p := range r.SortedByRank() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
}

func TestDefaultOrderMatchesRoster(t *testing.T) {
	r := MustDefault()
	sorted := r.SortedByRank()
	for i, p := range sorted {
		assert.Equal(t, r.All()[i].ID, p.ID, "roster is already in seniority order")
	}
	assert.Equal(t, "agent-8", sorted[7].ID)
	assert.Equal(t, "agent-9", sorted[8].ID)
}

func TestShortName(t *testing.T) {
	r := MustDefault()
	cases := map[string]string{
		"agent-1": "김Chairman",
		"agent-2": "이Director",
		"agent-9": "윤Staff",
	}
	for id, want := range cases {
		p, _ := r.Get(id)
		assert.Equal(t, want, p.ShortName(), id)
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]Persona{{ID: "a", Name: "A"}, {ID: "a", Name: "B"}})
	assert.Error(t, err)
	_, err = New([]Persona{{ID: "a", Name: "A"}, {ID: "b", Name: "A"}})
	assert.Error(t, err)
	_, err = New(nil)
	assert.Error(t, err)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("personas: [unterminated"))
	assert.Error(t, err)
}

func TestExcept(t *testing.T) {
	r := MustDefault()
	rest := r.Except("agent-1", "agent-9")
	assert.Len(t, rest, 7)
	assert.Equal(t, "agent-2", rest[0].ID)
}
