package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/medseek/internal/conversation"
	"github.com/user/medseek/internal/state"
	"github.com/user/medseek/internal/types"
)

// Gateway turns inbound events from server front ends into conversation
// turns. The optimistic half of a turn runs on the caller's goroutine; the
// webhook call runs on the session's lane.
type Gateway struct {
	sessions *state.SessionStore
	Queue    *Queue

	onExpire func(*conversation.Session)
}

// New creates a Gateway over the session store with the given concurrency
// limit for simultaneous webhook calls.
func New(sessions *state.SessionStore, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 4
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	g := &Gateway{
		sessions: sessions,
		Queue:    NewQueue(concurrency),
	}
	g.Queue.SetProcessor(g.processRun)
	return g
}

// Start starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.Queue.Start(ctx)
}

// Stop stops the queue and waits for in-flight turns to finish.
func (g *Gateway) Stop() {
	g.Queue.Stop()
}

// Sessions exposes the underlying store to front ends.
func (g *Gateway) Sessions() *state.SessionStore {
	return g.sessions
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked when the turn has finished.
func WithOnComplete(fn CompleteFunc) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// HandleInbound resolves or creates the session for the event, records the
// user message, and enqueues the webhook call. The returned snapshot shows
// the optimistic state. Submission errors (blank text, turn in progress)
// are returned unchanged so callers can match them with errors.Is.
func (g *Gateway) HandleInbound(ctx context.Context, event *types.InboundEvent, opts ...RunOption) (conversation.Snapshot, error) {
	sess, created, err := g.sessions.Submit(event.SessionKey, event.Text)
	if created {
		slog.Info("session started", "session_key", string(event.SessionKey), "session_id", string(sess.ID), "source", event.Source)
	}
	if err != nil {
		return sess.State.Snapshot(), err
	}

	run := NewRun(sess, event)
	for _, opt := range opts {
		opt(run)
	}
	if err := g.Queue.Enqueue(run); err != nil {
		// Leave the session usable: the turn ends here as a failed one.
		result := types.AgentResult{Reply: "An error occurred: " + err.Error(), IsError: true}
		if cerr := sess.State.CompleteTurn(result); cerr != nil {
			slog.Error("abandon turn", "session_id", string(sess.ID), "error", cerr)
		}
		return sess.State.Snapshot(), fmt.Errorf("enqueue turn: %w", err)
	}
	// EndSession may have removed the session before its lane existed. The
	// queued turn still runs; the lane closes behind it.
	if !g.sessions.Contains(sess) {
		g.Queue.Release(sess.ID)
	}
	return sess.State.Snapshot(), nil
}

// EndSession removes the session addressed by key and closes its lane.
func (g *Gateway) EndSession(key types.SessionKey) error {
	sess, err := g.sessions.Remove(key)
	if err != nil {
		return err
	}
	g.Queue.Release(sess.ID)
	slog.Info("session ended", "session_key", string(key), "session_id", string(sess.ID))
	return nil
}

// SetOnExpire registers fn to be called for every session ended by Sweep.
func (g *Gateway) SetOnExpire(fn func(*conversation.Session)) {
	g.onExpire = fn
}

// Sweep ends sessions idle for longer than idle.
func (g *Gateway) Sweep(idle time.Duration) int {
	removed := g.sessions.Sweep(idle)
	for _, sess := range removed {
		g.Queue.Release(sess.ID)
		slog.Info("session expired", "session_key", string(sess.Key), "session_id", string(sess.ID))
		if g.onExpire != nil {
			g.onExpire(sess)
		}
	}
	return len(removed)
}

// processRun is the queue processor: it performs the webhook call and
// records the reply.
func (g *Gateway) processRun(run *Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	started := time.Now()
	run.StartedAt = &started
	run.Status = RunStatusRunning

	result, err := run.Session.Reply(ctx)
	ended := time.Now()
	run.EndedAt = &ended
	run.Result = result
	if err != nil {
		run.Status = RunStatusFailed
		run.Error = err
		return fmt.Errorf("complete turn: %w", err)
	}
	run.Status = RunStatusComplete

	slog.Debug("turn finished",
		"run_id", string(run.ID),
		"session_id", string(run.Session.ID),
		"duration", ended.Sub(started),
		"is_error", result.IsError,
	)

	if run.OnComplete != nil {
		run.OnComplete(run.Session.State.Snapshot(), result)
	}
	return nil
}
