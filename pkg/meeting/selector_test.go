package meeting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardroom/pkg/chat"
	"boardroom/pkg/llm"
	"boardroom/pkg/persona"
)

const selectorTrials = 500

func TestDefaultSelectorPicksTwoOrThreeDistinct(t *testing.T) {
	roster := persona.MustDefault()
	sel := DefaultSelector()
	sizes := map[int]int{}
	firstSeen := map[string]bool{}

	for range selectorTrials {
		picked := sel.Select(roster.All(), "")
		require.GreaterOrEqual(t, len(picked), 2)
		require.LessOrEqual(t, len(picked), 3)
		sizes[len(picked)]++

		ids := map[string]bool{}
		for _, p := range picked {
			assert.True(t, roster.Contains(p.ID), "unknown persona %s", p.ID)
			assert.False(t, ids[p.ID], "duplicate persona %s", p.ID)
			ids[p.ID] = true
		}
		firstSeen[picked[0].ID] = true
	}

	assert.Positive(t, sizes[2], "two speakers never chosen")
	assert.Positive(t, sizes[3], "three speakers never chosen")
	assert.Len(t, firstSeen, roster.Len(), "every persona should lead at some point")
}

func TestDefaultSelectorTarget(t *testing.T) {
	roster := persona.MustDefault()
	sel := DefaultSelector()

	for range 20 {
		picked := sel.Select(roster.All(), "agent-7")
		require.Len(t, picked, 1)
		assert.Equal(t, "agent-7", picked[0].ID)
	}
}

func TestDefaultSelectorUnknownTargetFallsBack(t *testing.T) {
	roster := persona.MustDefault()
	picked := DefaultSelector().Select(roster.All(), "agent-99")
	assert.GreaterOrEqual(t, len(picked), 2)
	assert.LessOrEqual(t, len(picked), 3)
}

func TestDefaultSelectorDoesNotReorderRoster(t *testing.T) {
	roster := persona.MustDefault()
	all := roster.All()
	before := make([]string, len(all))
	for i, p := range all {
		before[i] = p.ID
	}

	DefaultSelector().Select(all, "")
	for i, p := range all {
		assert.Equal(t, before[i], p.ID)
	}
}

func TestRandomSelectorSmallRoster(t *testing.T) {
	roster := persona.MustDefault().All()[:1]
	picked := DefaultSelector().Select(roster, "")
	assert.Len(t, picked, 1)
}

func TestChatWithDefaultSelector(t *testing.T) {
	client := llm.NewMockLLMClient(reply("첫째"), reply("둘째"), reply("셋째"))
	deps := newDeps(t, client, nil)
	orch := NewChatOrchestrator(deps, nil, Delay{})

	require.NoError(t, orch.Send(context.Background(), "하반기 전략은?"))

	msgs := deps.Transcript.Snapshot()
	replies := len(msgs) - 1
	assert.GreaterOrEqual(t, replies, 2)
	assert.LessOrEqual(t, replies, 3)
	assert.Equal(t, chat.SenderUser, msgs[0].SenderID)
	assert.Len(t, client.Requests(), replies)
}

func TestRandomPacerStaysWithinBounds(t *testing.T) {
	d := Delay{Min: 5 * time.Millisecond, Max: 15 * time.Millisecond}
	for range 5 {
		start := time.Now()
		require.NoError(t, RandomPacer{}.Pause(context.Background(), d))
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, d.Min)
		assert.Less(t, elapsed, d.Max+time.Second)
	}
}

func TestRandomPacerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := RandomPacer{}.Pause(ctx, Fixed(time.Minute))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRandomPacerZeroDelay(t *testing.T) {
	assert.NoError(t, RandomPacer{}.Pause(context.Background(), Delay{}))
}
