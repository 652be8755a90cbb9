package web

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/user/medseek/internal/conversation"
	"github.com/user/medseek/internal/gateway"
	"github.com/user/medseek/internal/render"
	"github.com/user/medseek/internal/state"
	"github.com/user/medseek/internal/types"
)

// Source identifies inbound events from the browser front end.
const Source = "web"

// Server is the browser front end: a JSON session API plus the embedded
// single-page chat.
type Server struct {
	gw     *gateway.Gateway
	router chi.Router
}

// NewServer builds the router over the given gateway.
func NewServer(gw *gateway.Gateway) *Server {
	s := &Server{gw: gw}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Get("/{key}", s.handleGetSession)
		r.Delete("/{key}", s.handleDeleteSession)
		r.Post("/{key}/messages", s.handlePostMessage)
	})
	r.Handle("/*", staticHandler())

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("http server stopped")
	return nil
}

// sessionResponse is the wire form of a live session.
type sessionResponse struct {
	SessionKey string `json:"session_key"`
	SessionID  string `json:"session_id"`
	CreatedAt  string `json:"created_at"`
	LastActive string `json:"last_active"`
	conversation.Snapshot
}

// sessionSummary is one entry of the session list.
type sessionSummary struct {
	SessionKey       string `json:"session_key"`
	SessionID        string `json:"session_id"`
	MessageCount     int    `json:"message_count"`
	IsTyping         bool   `json:"is_typing"`
	CriticalDetected bool   `json:"critical_detected"`
	LastActive       string `json:"last_active"`
}

type messageRequest struct {
	Text string `json:"text"`
}

// newSessionResponse serves assistant replies as Markdown text. The page
// never interprets message content as HTML.
func newSessionResponse(sess *conversation.Session, snap conversation.Snapshot) sessionResponse {
	for i, m := range snap.Messages {
		if m.Role == types.RoleAssistant {
			snap.Messages[i].Content = render.Markdown(m.Content)
		}
	}
	return sessionResponse{
		SessionKey: string(sess.Key),
		SessionID:  string(sess.ID),
		CreatedAt:  sess.CreatedAt.Format(time.RFC3339),
		LastActive: sess.LastActive().Format(time.RFC3339),
		Snapshot:   snap,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	key := types.NewSessionKey(Source, string(types.NewSessionID()))
	sess, _ := s.gw.Sessions().ResolveOrCreate(key)
	slog.Info("session started", "session_key", string(key), "session_id", string(sess.ID), "source", Source)
	writeJSON(w, http.StatusCreated, newSessionResponse(sess, sess.State.Snapshot()))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.gw.Sessions().List()
	result := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		snap := sess.State.Snapshot()
		result = append(result, sessionSummary{
			SessionKey:       string(sess.Key),
			SessionID:        string(sess.ID),
			MessageCount:     len(snap.Messages),
			IsTyping:         snap.IsTyping,
			CriticalDetected: snap.CriticalDetected,
			LastActive:       sess.LastActive().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess, sess.State.Snapshot()))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKeyParam(w, r)
	if !ok {
		return
	}
	if err := s.gw.EndSession(key); err != nil {
		if errors.Is(err, state.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("end session failed", "session_key", string(key), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	event := &types.InboundEvent{
		Source:     Source,
		SessionKey: sess.Key,
		Text:       req.Text,
	}
	// The turn outlives the request; the gateway's own context governs it.
	snap, err := s.gw.HandleInbound(context.WithoutCancel(r.Context()), event)
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "text is required")
	case errors.Is(err, conversation.ErrTurnInProgress):
		writeError(w, http.StatusConflict, "a reply is still pending")
	case err != nil:
		slog.Error("handle inbound failed", "session_key", string(sess.Key), "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		// A sweep between lookup and submit starts a fresh session under the key.
		if cur, err := s.gw.Sessions().GetByKey(sess.Key); err == nil {
			sess = cur
		}
		writeJSON(w, http.StatusAccepted, newSessionResponse(sess, snap))
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*conversation.Session, bool) {
	key, ok := sessionKeyParam(w, r)
	if !ok {
		return nil, false
	}
	sess, err := s.gw.Sessions().GetByKey(key)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// sessionKeyParam returns the {key} path parameter. chi routes on the raw
// path, so a browser-escaped key ("web%3A...") arrives still escaped.
func sessionKeyParam(w http.ResponseWriter, r *http.Request) (types.SessionKey, bool) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session key")
		return "", false
	}
	return types.SessionKey(key), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return http.FileServer(http.FS(sub))
}
