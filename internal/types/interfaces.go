// internal/types/interfaces.go
package types

import "context"

// Agent turns one user utterance into one AgentResult. Implementations never
// fail past their own boundary.
type Agent interface {
	Send(ctx context.Context, sessionID SessionID, text string) AgentResult
}

// AgentFunc adapts a plain function to Agent.
type AgentFunc func(ctx context.Context, sessionID SessionID, text string) AgentResult

func (f AgentFunc) Send(ctx context.Context, sessionID SessionID, text string) AgentResult {
	return f(ctx, sessionID, text)
}
