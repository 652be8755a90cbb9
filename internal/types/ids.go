// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

// SessionID is the opaque token the webhook sees. It correlates every call
// made during one conversation.
type SessionID string

// SessionKey addresses a session from a front end, e.g. "telegram:1:2".
type SessionKey string

// RunID identifies one queued turn.
type RunID string

// NewSessionID returns 32 lowercase hex characters from a random UUID.
func NewSessionID() SessionID {
	return SessionID(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}

// Prefix returns the front-end part of the key ("web", "telegram", ...).
func (k SessionKey) Prefix() string {
	p, _, _ := strings.Cut(string(k), ":")
	return p
}
