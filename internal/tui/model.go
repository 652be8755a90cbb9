// Package tui is the interactive terminal chat.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/medseek/internal/conversation"
	"github.com/user/medseek/internal/render"
	"github.com/user/medseek/internal/types"
)

// replyMsg carries the outcome of the network half of a turn.
type replyMsg struct {
	result types.AgentResult
	err    error
}

// Model is the Bubble Tea model of one chat session.
type Model struct {
	ctx     context.Context
	session *conversation.Session

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	width  int
	height int
	ready  bool

	// markdown renders assistant replies for the terminal.
	markdown func(string) string
}

// New creates a Model over sess. Turns run under ctx.
func New(ctx context.Context, sess *conversation.Session) Model {
	ti := textinput.New()
	ti.Placeholder = render.Placeholder
	ti.Prompt = "> "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)

	return Model{
		ctx:      ctx,
		session:  sess,
		input:    ti,
		spinner:  sp,
		viewport: viewport.New(80, 20),
		markdown: glamourMarkdown,
	}
}

// Run starts the terminal program and blocks until the user quits.
func Run(ctx context.Context, sess *conversation.Session) error {
	p := tea.NewProgram(New(ctx, sess), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func glamourMarkdown(s string) string {
	out, err := glamour.Render(render.Markdown(s), "dark")
	if err != nil {
		slog.Debug("glamour render failed", "error", err)
		return s
	}
	return strings.TrimRight(out, "\n")
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		m.viewport.Width = msg.Width
		m.viewport.Height = m.transcriptHeight()
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case replyMsg:
		if msg.err != nil {
			slog.Error("complete turn", "session_id", string(m.session.ID), "error", msg.err)
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.session.State.IsTyping() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if !m.session.State.IsTyping() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// submit starts a turn with the current input. Input is ignored while a
// reply is pending.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.session.State.IsTyping() {
		return m, nil
	}
	if err := m.session.Submit(m.input.Value()); err != nil {
		if !errors.Is(err, conversation.ErrEmptyMessage) {
			slog.Warn("submit rejected", "session_id", string(m.session.ID), "error", err)
		}
		return m, nil
	}
	m.input.Reset()
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, m.replyCmd())
}

func (m Model) replyCmd() tea.Cmd {
	ctx, sess := m.ctx, m.session
	return func() tea.Msg {
		result, err := sess.Reply(ctx)
		return replyMsg{result: result, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m Model) transcriptHeight() int {
	// title, banners, spinner line, input and help
	h := m.height - 8
	if h < 3 {
		h = 3
	}
	return h
}

func (m Model) transcript() string {
	snap := m.session.State.Snapshot()
	var b strings.Builder
	for i, msg := range snap.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch msg.Role {
		case types.RoleUser:
			b.WriteString(userLabel + "\n" + msg.Content)
		case types.RoleAssistant:
			b.WriteString(assistantLabel + "\n" + m.markdown(msg.Content))
		}
	}
	return b.String()
}

func (m Model) View() string {
	snap := m.session.State.Snapshot()

	var b strings.Builder
	b.WriteString(titleStyle.Render(render.Title))
	b.WriteString("\n")
	if snap.CriticalDetected {
		b.WriteString(criticalStyle.Render(render.CriticalBanner))
		b.WriteString("\n")
	}
	if snap.LastError != "" {
		b.WriteString(errorStyle.Render(render.ErrorBanner(snap.LastError)))
		b.WriteString("\n")
	}
	if m.ready {
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(m.transcript())
	}
	b.WriteString("\n")
	if snap.IsTyping {
		b.WriteString(m.spinner.View() + " MedSeek is typing…\n")
	} else {
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: send • ↑/↓: scroll • esc: quit"))
	return b.String()
}
