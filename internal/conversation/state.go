// Package conversation holds the single-session chat state machine and the
// turn sequence that drives it.
package conversation

import (
	"errors"
	"strings"
	"sync"

	"github.com/user/medseek/internal/types"
)

var (
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrTurnInProgress   = errors.New("a reply is still pending")
	ErrNoTurnInProgress = errors.New("no reply is pending")
)

// criticalMarkers are matched case-insensitively against assistant replies.
var criticalMarkers = []string{"call 111", "emergency"}

// State is the single source of truth for what a front end renders.
//
// It moves Idle -> AwaitingReply on SubmitUserMessage and back on
// CompleteTurn. IsTyping doubles as the guard against overlapping turns.
type State struct {
	mu sync.RWMutex

	messages         []types.Message
	isTyping         bool
	criticalDetected bool
	lastError        string
}

// Snapshot is an immutable copy of State for renderers.
type Snapshot struct {
	Messages         []types.Message `json:"messages"`
	IsTyping         bool            `json:"is_typing"`
	CriticalDetected bool            `json:"critical_detected"`
	LastError        string          `json:"last_error,omitempty"`
}

// NewState returns an empty, idle state.
func NewState() *State {
	return &State{}
}

// SubmitUserMessage is the optimistic half of a turn: the user's message and
// the typing flag become visible before any network call.
func (s *State) SubmitUserMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isTyping {
		return ErrTurnInProgress
	}
	s.lastError = ""
	s.messages = append(s.messages, types.Message{Role: types.RoleUser, Content: text})
	s.isTyping = true
	return nil
}

// CompleteTurn records the reply to the pending user message.
func (s *State) CompleteTurn(result types.AgentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isTyping || len(s.messages) == 0 {
		return ErrNoTurnInProgress
	}
	if result.IsError {
		s.lastError = result.Reply
	}
	s.messages = append(s.messages, types.Message{Role: types.RoleAssistant, Content: result.Reply})
	if IsCritical(result.Reply) {
		s.criticalDetected = true
	}
	s.isTyping = false
	return nil
}

// LastUserMessage returns the text awaiting a reply. ok is false when the
// state is idle.
func (s *State) LastUserMessage() (text string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isTyping || len(s.messages) == 0 {
		return "", false
	}
	return s.messages[len(s.messages)-1].Content, true
}

func (s *State) IsTyping() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isTyping
}

func (s *State) CriticalDetected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.criticalDetected
}

func (s *State) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]types.Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{
		Messages:         msgs,
		IsTyping:         s.isTyping,
		CriticalDetected: s.criticalDetected,
		LastError:        s.lastError,
	}
}

// IsCritical reports whether a reply suggests emergency-level guidance.
func IsCritical(reply string) bool {
	lower := strings.ToLower(reply)
	for _, marker := range criticalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
