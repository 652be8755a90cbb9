package gateway

import (
	"context"
	"time"

	"github.com/user/medseek/internal/conversation"
	"github.com/user/medseek/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// CompleteFunc receives the state after a turn finished and the agent's result.
type CompleteFunc func(snapshot conversation.Snapshot, result types.AgentResult)

// Run tracks the network half of one turn. The user message is already
// recorded in the session when a Run is created.
type Run struct {
	ID         types.RunID
	Session    *conversation.Session
	Event      *types.InboundEvent
	Status     RunStatus
	CreatedAt  time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
	Result     types.AgentResult
	Error      error
	Ctx        context.Context
	OnComplete CompleteFunc
}

// NewRun creates a Run in the Queued state for the given session and event.
func NewRun(sess *conversation.Session, event *types.InboundEvent) *Run {
	return &Run{
		ID:        types.NewRunID(),
		Session:   sess,
		Event:     event,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
	}
}

// SessionID is the lane key of the run.
func (r *Run) SessionID() types.SessionID {
	return r.Session.ID
}
