package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/medseek/internal/types"
)

func TestSessionSendRendersBothTransitions(t *testing.T) {
	var sentID types.SessionID
	var sentText string
	var typingDuringCall bool

	var sess *Session
	agent := types.AgentFunc(func(_ context.Context, id types.SessionID, text string) types.AgentResult {
		sentID, sentText = id, text
		typingDuringCall = sess.State.IsTyping()
		return types.AgentResult{Reply: "Please call 111 immediately"}
	})
	sess = NewSession("tui", agent)

	var renders []Snapshot
	result, err := sess.Send(context.Background(), "I can't breathe", func(s Snapshot) {
		renders = append(renders, s)
	})
	require.NoError(t, err)

	assert.Equal(t, "Please call 111 immediately", result.Reply)
	assert.Equal(t, sess.ID, sentID)
	assert.Equal(t, "I can't breathe", sentText)
	assert.True(t, typingDuringCall)

	require.Len(t, renders, 2)
	assert.True(t, renders[0].IsTyping)
	assert.Len(t, renders[0].Messages, 1)
	assert.False(t, renders[1].IsTyping)
	assert.Len(t, renders[1].Messages, 2)
	assert.True(t, renders[1].CriticalDetected)
}

func TestSessionIDStableAcrossTurns(t *testing.T) {
	var seen []types.SessionID
	agent := types.AgentFunc(func(_ context.Context, id types.SessionID, _ string) types.AgentResult {
		seen = append(seen, id)
		return types.AgentResult{Reply: "ok"}
	})
	sess := NewSession("tui", agent)

	for _, text := range []string{"one", "two", "three"} {
		_, err := sess.Send(context.Background(), text, nil)
		require.NoError(t, err)
	}

	require.Len(t, seen, 3)
	for _, id := range seen {
		assert.Equal(t, sess.ID, id)
	}
	assert.Equal(t, 6, sess.State.Len())
}

func TestSessionSendRejectsEmptyWithoutCallingAgent(t *testing.T) {
	called := false
	sess := NewSession("tui", types.AgentFunc(func(context.Context, types.SessionID, string) types.AgentResult {
		called = true
		return types.AgentResult{}
	}))

	_, err := sess.Send(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.False(t, called)
}

func TestSessionReplyWithoutSubmit(t *testing.T) {
	sess := NewSession("tui", types.AgentFunc(func(context.Context, types.SessionID, string) types.AgentResult {
		t.Fatal("agent must not be called")
		return types.AgentResult{}
	}))

	_, err := sess.Reply(context.Background())
	assert.ErrorIs(t, err, ErrNoTurnInProgress)
}

func TestSessionErrorResultKeepsSessionUsable(t *testing.T) {
	calls := 0
	sess := NewSession("tui", types.AgentFunc(func(context.Context, types.SessionID, string) types.AgentResult {
		calls++
		if calls == 1 {
			return types.AgentResult{Reply: "Request timed out. Please try again.", IsError: true}
		}
		return types.AgentResult{Reply: "Back online"}
	}))

	_, err := sess.Send(context.Background(), "hello", nil)
	require.NoError(t, err)
	snap := sess.State.Snapshot()
	assert.False(t, snap.IsTyping)
	assert.Equal(t, "Request timed out. Please try again.", snap.LastError)

	_, err = sess.Send(context.Background(), "hello again", nil)
	require.NoError(t, err)
	snap = sess.State.Snapshot()
	assert.Empty(t, snap.LastError)
	assert.Equal(t, "Back online", snap.Messages[3].Content)
}
