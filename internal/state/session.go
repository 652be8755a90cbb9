// internal/state/session.go
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/user/medseek/internal/conversation"
	"github.com/user/medseek/internal/types"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps live conversation sessions in memory, keyed by the
// front-end session key. Nothing outlives the process.
type SessionStore struct {
	agent types.Agent

	mu       sync.RWMutex
	sessions map[types.SessionKey]*conversation.Session
}

// NewSessionStore creates an empty store whose sessions are answered by agent.
func NewSessionStore(agent types.Agent) *SessionStore {
	return &SessionStore{
		agent:    agent,
		sessions: make(map[types.SessionKey]*conversation.Session),
	}
}

// ResolveOrCreate returns the session for key, starting one if needed.
func (s *SessionStore) ResolveOrCreate(key types.SessionKey) (sess *conversation.Session, created bool) {
	s.mu.RLock()
	existing, ok := s.sessions[key]
	s.mu.RUnlock()
	if ok {
		return existing, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have won the race.
	if existing, ok := s.sessions[key]; ok {
		return existing, false
	}
	sess = conversation.NewSession(key, s.agent)
	s.sessions[key] = sess
	return sess, true
}

// Submit resolves or creates the session for key and records text as its
// pending user message. Both happen under the store lock, so Sweep cannot end
// the session in between; once submitted it is awaiting a reply and exempt
// from sweeping. The session is returned even when the submission fails.
func (s *SessionStore) Submit(key types.SessionKey, text string) (sess *conversation.Session, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		sess = conversation.NewSession(key, s.agent)
		s.sessions[key] = sess
	}
	return sess, !ok, sess.Submit(text)
}

// Contains reports whether sess is still the live session for its key.
func (s *SessionStore) Contains(sess *conversation.Session) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sess.Key] == sess
}

// Get returns the session with the given SessionID.
func (s *SessionStore) Get(id types.SessionID) (*conversation.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// GetByKey returns the session addressed by key.
func (s *SessionStore) GetByKey(key types.SessionKey) (*conversation.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return sess, nil
}

// List returns all sessions, most recently active first.
func (s *SessionStore) List() []*conversation.Session {
	s.mu.RLock()
	sessions := make([]*conversation.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActive().After(sessions[j].LastActive())
	})
	return sessions
}

// Remove ends the session addressed by key and returns it.
func (s *SessionStore) Remove(key types.SessionKey) (*conversation.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	delete(s.sessions, key)
	return sess, nil
}

// Sweep ends every session idle for longer than idle and returns them.
// A session awaiting a reply is never swept.
func (s *SessionStore) Sweep(idle time.Duration) []*conversation.Session {
	cutoff := time.Now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*conversation.Session
	for key, sess := range s.sessions {
		if sess.State.IsTyping() || sess.LastActive().After(cutoff) {
			continue
		}
		delete(s.sessions, key)
		removed = append(removed, sess)
	}
	return removed
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
