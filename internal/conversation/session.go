package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/user/medseek/internal/types"
)

// RenderFunc repaints a front end from a snapshot. It is called after each
// state transition of a turn.
type RenderFunc func(Snapshot)

// Session binds one conversation state to its identity and to the agent that
// answers it.
type Session struct {
	ID        types.SessionID
	Key       types.SessionKey
	State     *State
	CreatedAt time.Time

	agent types.Agent

	mu         sync.Mutex
	lastActive time.Time
}

// NewSession starts a session with a fresh SessionID.
func NewSession(key types.SessionKey, agent types.Agent) *Session {
	now := time.Now()
	return &Session{
		ID:         types.NewSessionID(),
		Key:        key,
		State:      NewState(),
		CreatedAt:  now,
		agent:      agent,
		lastActive: now,
	}
}

// Submit performs the optimistic half of a turn.
func (s *Session) Submit(text string) error {
	if err := s.State.SubmitUserMessage(text); err != nil {
		return err
	}
	s.Touch()
	return nil
}

// Reply performs the network half of a turn: it sends the pending user
// message and records the result. It blocks until the agent answers or
// times out.
func (s *Session) Reply(ctx context.Context) (types.AgentResult, error) {
	text, ok := s.State.LastUserMessage()
	if !ok {
		return types.AgentResult{}, ErrNoTurnInProgress
	}

	result := s.agent.Send(ctx, s.ID, text)
	if err := s.State.CompleteTurn(result); err != nil {
		return result, err
	}
	s.Touch()

	if result.IsError {
		slog.Warn("turn completed with error", "session_id", string(s.ID), "reply", result.Reply)
	} else {
		slog.Debug("turn completed", "session_id", string(s.ID), "reply_len", len(result.Reply))
	}
	return result, nil
}

// Send runs a whole turn, calling render after the submit and after the reply.
// render may be nil.
func (s *Session) Send(ctx context.Context, text string, render RenderFunc) (types.AgentResult, error) {
	if err := s.Submit(text); err != nil {
		return types.AgentResult{}, err
	}
	if render != nil {
		render(s.State.Snapshot())
	}

	result, err := s.Reply(ctx)
	if err != nil {
		return result, err
	}
	if render != nil {
		render(s.State.Snapshot())
	}
	return result, nil
}

// Touch marks the session as active now.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns when the session last saw a turn transition.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
