package meeting

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardroom/pkg/chat"
	"boardroom/pkg/llm"
	"boardroom/pkg/llm/llmerrors"
	"boardroom/pkg/persona"
	"boardroom/pkg/protocol"
)

func rosterIDs(r *persona.Roster) []string {
	var ids []string
	for _, p := range r.SortedByRank() {
		ids = append(ids, p.ID)
	}
	return ids
}

func discussionReplies(n int) []llm.MockResponse {
	tags := []string{"[STANCE:찬성]", "[STANCE:반대]", "[STANCE:중립]", "[STANCE:신중]"}
	out := make([]llm.MockResponse, n)
	for i := range out {
		out[i] = reply(tags[i%len(tags)], fmt.Sprintf(" 의견 %d입니다.", i+1))
	}
	return out
}

func TestDiscussionEveryPersonaSpeaksInRankOrder(t *testing.T) {
	client := llm.NewMockLLMClient(discussionReplies(9)...)
	deps := newDeps(t, client, nil)
	orch := NewDiscussionOrchestrator(deps, Delay{})

	require.NoError(t, orch.Start(context.Background(), "  주 4일제 도입  "))

	st := orch.State()
	assert.Equal(t, DiscussionCompleted, st.Status)
	assert.Equal(t, "주 4일제 도입", st.Topic)
	assert.Equal(t, len(st.SpeakerOrder), st.CurrentSpeakerIndex)
	if diff := cmp.Diff(rosterIDs(deps.Roster), st.SpeakerOrder); diff != "" {
		t.Errorf("speaker order mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, st.Stances, deps.Roster.Len())
	for _, id := range st.SpeakerOrder {
		assert.True(t, st.Stances[id].Valid(), "stance for %s", id)
	}
	assert.Equal(t, protocol.StanceAgree, st.Stances["agent-1"])
	assert.Equal(t, protocol.StanceDisagree, st.Stances["agent-2"])

	msgs := deps.Transcript.Snapshot()
	require.Len(t, msgs, 9)
	for i, m := range msgs {
		assert.Equal(t, st.SpeakerOrder[i], m.SenderID)
		assert.Equal(t, fmt.Sprintf("의견 %d입니다.", i+1), m.Content, "tag must be stripped")
		assert.Equal(t, st.Stances[m.SenderID], m.Stance)
	}

	reqs := client.Requests()
	require.Len(t, reqs, 9)
	assert.Equal(t, ModeDiscussion, reqs[0].Kind)
	assert.Contains(t, reqs[8].Messages[0].Content, "의견 1입니다.")
}

func TestDiscussionFailedTurnIsSkipped(t *testing.T) {
	replies := discussionReplies(9)
	replies[2] = llm.MockResponse{Err: llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadStatus, 500, "Internal Server Error")}
	deps := newDeps(t, llm.NewMockLLMClient(replies...), nil)
	orch := NewDiscussionOrchestrator(deps, Delay{})

	require.NoError(t, orch.Start(context.Background(), "예산 삭감"))

	st := orch.State()
	assert.Equal(t, DiscussionCompleted, st.Status)
	assert.Len(t, st.Stances, 8)
	assert.NotContains(t, st.Stances, "agent-3")

	system := bySender(deps.Transcript.Snapshot(), chat.SenderSystem)
	require.Len(t, system, 1)
	assert.Equal(t, "박상무: Failed to fetch from Ollama: Internal Server Error", system[0].Content)
	assert.Empty(t, bySender(deps.Transcript.Snapshot(), "agent-3"))
}

func TestDiscussionCancelMidway(t *testing.T) {
	replies := discussionReplies(3)
	replies = append(replies, llm.MockResponse{Chunks: []string{"[STANCE:찬성] 그런데"}, Hang: true})
	client := llm.NewMockLLMClient(replies...)
	deps := newDeps(t, client, nil)
	orch := NewDiscussionOrchestrator(deps, Delay{})

	done := make(chan error, 1)
	go func() { done <- orch.Start(context.Background(), "사무실 이전") }()

	require.Eventually(t, func() bool {
		return len(client.Requests()) == 4 && deps.Transcript.Len() == 4
	}, testWait, testTick)
	orch.Cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	st := orch.State()
	assert.Equal(t, DiscussionIdle, st.Status)
	assert.Equal(t, -1, st.CurrentSpeakerIndex)
	assert.Len(t, st.Stances, 3)
	assert.Len(t, client.Requests(), 4, "no request after cancel")
}

func TestDiscussionBeginValidation(t *testing.T) {
	deps := newDeps(t, llm.NewMockLLMClient(), nil)
	orch := NewDiscussionOrchestrator(deps, Delay{})

	assert.ErrorIs(t, orch.Begin("  "), ErrEmptyTopic)
	assert.ErrorIs(t, orch.Run(context.Background()), ErrInvalidPhase)
	assert.Equal(t, DiscussionIdle, orch.State().Status)
}

func TestDiscussionParentContextCancel(t *testing.T) {
	client := llm.NewMockLLMClient(llm.MockResponse{Hang: true})
	deps := newDeps(t, client, nil)
	orch := NewDiscussionOrchestrator(deps, Delay{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, orch.Begin("회식 장소"))
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	require.Eventually(t, func() bool { return len(client.Requests()) == 1 }, testWait, testTick)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	st := orch.State()
	assert.Equal(t, DiscussionIdle, st.Status)
	assert.Equal(t, -1, st.CurrentSpeakerIndex)
	assert.Empty(t, st.Stances)
	assert.Zero(t, deps.Transcript.Len(), "empty placeholder removed")
}
