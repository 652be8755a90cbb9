package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/medseek/internal/conversation"
	"github.com/user/medseek/internal/render"
	"github.com/user/medseek/internal/types"
)

func newTestModel(reply types.AgentResult) Model {
	agent := types.AgentFunc(func(ctx context.Context, _ types.SessionID, text string) types.AgentResult {
		return reply
	})
	m := New(context.Background(), conversation.NewSession("cli:test", agent))
	m.markdown = func(s string) string { return s }
	return m
}

func typeAndSubmit(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestSubmitStartsTurn(t *testing.T) {
	m := newTestModel(types.AgentResult{Reply: "Take paracetamol."})

	m, cmd := typeAndSubmit(t, m, "I have a headache")
	require.NotNil(t, cmd)
	assert.True(t, m.session.State.IsTyping())
	assert.Equal(t, "", m.input.Value())
	assert.Contains(t, m.View(), "MedSeek is typing")

	msg := m.replyCmd()()
	next, _ := m.Update(msg)
	m = next.(Model)

	snap := m.session.State.Snapshot()
	assert.False(t, snap.IsTyping)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Take paracetamol.", snap.Messages[1].Content)
	assert.Contains(t, m.View(), "Take paracetamol.")
}

func TestSubmitIgnoredWhileTyping(t *testing.T) {
	m := newTestModel(types.AgentResult{Reply: "ok"})

	m, _ = typeAndSubmit(t, m, "first")
	m, cmd := typeAndSubmit(t, m, "second")

	assert.Nil(t, cmd)
	assert.Equal(t, 1, m.session.State.Len())
}

func TestBlankSubmitIgnored(t *testing.T) {
	m := newTestModel(types.AgentResult{Reply: "ok"})

	m, cmd := typeAndSubmit(t, m, "   ")
	assert.Nil(t, cmd)
	assert.False(t, m.session.State.IsTyping())
	assert.Equal(t, 0, m.session.State.Len())
}

func TestBannersRendered(t *testing.T) {
	m := newTestModel(types.AgentResult{Reply: "This is an emergency, call 111."})
	m, _ = typeAndSubmit(t, m, "chest pain")
	next, _ := m.Update(m.replyCmd()())
	m = next.(Model)
	assert.Contains(t, m.View(), render.CriticalBanner)

	e := newTestModel(types.AgentResult{Reply: "Request timed out. Please try again.", IsError: true})
	e, _ = typeAndSubmit(t, e, "hello")
	next, _ = e.Update(e.replyCmd()())
	e = next.(Model)
	view := e.View()
	assert.Contains(t, view, "Request timed out. Please try again.")
	assert.False(t, strings.Contains(view, render.CriticalBanner))
}

func TestQuitKeys(t *testing.T) {
	m := newTestModel(types.AgentResult{})
	for _, key := range []tea.KeyType{tea.KeyCtrlC, tea.KeyEsc} {
		_, cmd := m.Update(tea.KeyMsg{Type: key})
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	}
}

func TestWindowResize(t *testing.T) {
	m := newTestModel(types.AgentResult{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = next.(Model)
	assert.True(t, m.ready)
	assert.Equal(t, 100, m.viewport.Width)
	assert.Equal(t, 32, m.viewport.Height)
}
