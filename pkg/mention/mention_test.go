package mention

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardroom/pkg/chat"
	"boardroom/pkg/persona"
	"boardroom/pkg/protocol"
)

func msg(sender, content string, stance protocol.Stance) chat.Message {
	return chat.Message{SenderID: sender, Content: content, Stance: stance}
}

func TestConnectionsDedupAndStance(t *testing.T) {
	roster := persona.MustDefault()
	messages := []chat.Message{
		msg(chat.SenderUser, "김부회장 의견은?", ""),
		msg("agent-2", "김부회장님 말씀에 반대합니다.", protocol.StanceDisagree),
		msg("agent-1", "이전무 의견도 일리가 있습니다.", ""),
		msg("agent-3", "박상무로서 이Director 말씀과 김Chairman 말씀 모두 검토하겠습니다.", protocol.StanceCautious),
		msg(chat.SenderSystem, "[System Error] 최부장: 한사원 timeout", ""),
		msg("agent-4", "", ""),
	}

	got := Connections(messages, roster, 0)
	want := []Connection{
		{ID: "agent-2-agent-1", From: "agent-2", To: "agent-1", Stance: protocol.StanceDisagree},
		{ID: "agent-3-agent-1", From: "agent-3", To: "agent-1", Stance: protocol.StanceCautious},
		{ID: "agent-3-agent-2", From: "agent-3", To: "agent-2", Stance: protocol.StanceCautious},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Connections mismatch (-want +got):\n%s", diff)
	}
}

func TestConnectionsWindow(t *testing.T) {
	roster := persona.MustDefault()
	messages := []chat.Message{msg("agent-2", "김부회장님 의견에 동의합니다.", protocol.StanceAgree)}
	for i := 0; i < DefaultWindow; i++ {
		messages = append(messages, msg("agent-5", fmt.Sprintf("정리하겠습니다 %d", i), ""))
	}
	assert.Empty(t, Connections(messages, roster, 0))
	assert.Len(t, Connections(messages, roster, DefaultWindow+1), 1)
}

func TestConnectionsDefaultNeutral(t *testing.T) {
	roster := persona.MustDefault()
	got := Connections([]chat.Message{msg("agent-8", "윤사원님 같이 해봅시다!!", "")}, roster, 0)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.StanceNeutral, got[0].Stance)
}

func TestMentionsSkipsSelf(t *testing.T) {
	roster := persona.MustDefault()
	assert.Empty(t, Mentions(roster, "agent-1", "김부회장으로서 말씀드립니다."))
}

func TestMajorityStance(t *testing.T) {
	_, ok := MajorityStance(nil)
	assert.False(t, ok)

	got, ok := MajorityStance(map[string]protocol.Stance{
		"a": protocol.StanceCautious, "b": protocol.StanceDisagree,
		"c": protocol.StanceCautious, "d": protocol.StanceDisagree,
	})
	require.True(t, ok)
	assert.Equal(t, protocol.StanceDisagree, got, "ties resolve to the earlier stance")
}

func TestKeyPoints(t *testing.T) {
	messages := []chat.Message{
		msg("agent-1", "좋습니다. 이 안건은 장기적으로 그룹에 큰 도움이 될 것입니다. 추진하시지요.", protocol.StanceAgree),
		msg("agent-2", "안됩니다!", protocol.StanceDisagree),
		msg("agent-3", strings.Repeat("가", 100), protocol.StanceCautious),
		msg("agent-4", "스탠스 없는 발언입니다. 무시됩니다.", ""),
		msg(chat.SenderUser, "회장 발언입니다. 무시됩니다.", protocol.StanceAgree),
	}
	got := KeyPoints(messages)
	require.Len(t, got, 3)
	assert.Equal(t, "이 안건은 장기적으로 그룹에 큰 도움이 될 것입니다", got[0].Point)
	assert.Equal(t, "안됩니다", got[1].Point)
	assert.Equal(t, strings.Repeat("가", 80)+"...", got[2].Point)
}

func TestSummarize(t *testing.T) {
	stances := map[string]protocol.Stance{
		"agent-1": protocol.StanceAgree,
		"agent-2": protocol.StanceAgree,
		"agent-3": protocol.StanceNeutral,
		"agent-4": protocol.StanceDisagree,
	}
	s := Summarize("주 4일제", stances, nil)
	assert.Equal(t, protocol.StanceAgree, s.Majority)
	assert.Equal(t, 4, s.Total)
	require.Len(t, s.Segments, 3)
	assert.Equal(t, protocol.StanceAgree, s.Segments[0].Stance)
	assert.InDelta(t, 50.0, s.Segments[0].Percent, 0.001)
	assert.Equal(t, protocol.StanceNeutral, s.Segments[2].Stance)

	empty := Summarize("x", nil, nil)
	assert.Equal(t, protocol.StanceNeutral, empty.Majority)
	assert.Empty(t, empty.Segments)
}

func TestRaceScores(t *testing.T) {
	roster := persona.MustDefault()
	order := make([]string, 0, roster.Len())
	for _, p := range roster.SortedByRank() {
		order = append(order, p.ID)
	}

	messages := []chat.Message{
		msg("agent-1", strings.Repeat("가", 120), protocol.StanceAgree),
		msg("agent-2", "김부회장님 말씀에 동의합니다.", protocol.StanceAgree),
		msg("agent-3", "김부회장님, 이전무님 모두 리스크를 보셔야 합니다.", protocol.StanceCautious),
	}
	stances := map[string]protocol.Stance{
		"agent-1": protocol.StanceAgree,
		"agent-2": protocol.StanceAgree,
		"agent-3": protocol.StanceCautious,
	}

	scores := RaceScores(roster, RaceInput{
		Stances:      stances,
		Messages:     messages,
		SpeakerOrder: order,
		CurrentIndex: 3,
		InProgress:   true,
	})
	require.Len(t, scores, 9)

	byID := map[string]RaceScore{}
	for _, s := range scores {
		byID[s.AgentID] = s
	}

	// spoke 30 + two mentions 30 + majority 10 + 120/50=2
	assert.Equal(t, 72, byID["agent-1"].Score)
	assert.Equal(t, 2, byID["agent-1"].MentionCount)
	// spoke 30 + one mention 15 + majority 10 + 0
	assert.Equal(t, 55, byID["agent-2"].Score)
	// spoke 30, minority stance
	assert.Equal(t, 30, byID["agent-3"].Score)
	// current speaker
	assert.Equal(t, 30, byID["agent-4"].Score)
	assert.True(t, byID["agent-4"].Spoke)
	assert.Zero(t, byID["agent-5"].Score)
	assert.False(t, byID["agent-5"].Spoke)
}

func TestRaceScoreCap(t *testing.T) {
	roster := persona.MustDefault()
	var messages []chat.Message
	for _, p := range roster.Except("agent-1") {
		messages = append(messages, msg(p.ID, "김부회장님", protocol.StanceAgree))
	}
	scores := RaceScores(roster, RaceInput{
		Stances:      map[string]protocol.Stance{"agent-1": protocol.StanceAgree},
		Messages:     messages,
		SpeakerOrder: []string{"agent-1"},
		CurrentIndex: 1,
		Window:       20,
	})
	assert.Equal(t, MaxRaceScore, scores[0].Score)
}
