package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/user/medseek/internal/gateway"
	"github.com/user/medseek/internal/state"
	"github.com/user/medseek/internal/types"
)

// gatedAgent answers with reply once release is closed.
type gatedAgent struct {
	reply   string
	release chan struct{}
}

func (a *gatedAgent) Send(ctx context.Context, _ types.SessionID, text string) types.AgentResult {
	select {
	case <-a.release:
	case <-ctx.Done():
		return types.AgentResult{Reply: "Request timed out. Please try again.", IsError: true}
	}
	return types.AgentResult{Reply: a.reply}
}

func setupServer(t *testing.T, agent types.Agent) (*Server, *gateway.Gateway) {
	t.Helper()
	gw := gateway.New(state.NewSessionStore(agent), 2)
	gw.Start(context.Background())
	t.Cleanup(gw.Stop)
	return NewServer(gw), gw
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func createSession(t *testing.T, srv http.Handler) sessionResponse {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/api/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	return decode[sessionResponse](t, w)
}

func sessionPath(key string) string {
	return "/api/sessions/" + url.PathEscape(key)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := setupServer(t, &gatedAgent{release: make(chan struct{})})

	w := do(t, srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	resp := decode[map[string]string](t, w)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestCreateSession(t *testing.T) {
	srv, _ := setupServer(t, &gatedAgent{release: make(chan struct{})})

	sess := createSession(t, srv)
	if !strings.HasPrefix(sess.SessionKey, "web:") {
		t.Errorf("expected web: key, got %q", sess.SessionKey)
	}
	if len(sess.SessionID) != 32 {
		t.Errorf("expected 32-char session id, got %q", sess.SessionID)
	}
	if len(sess.Messages) != 0 || sess.IsTyping || sess.CriticalDetected {
		t.Errorf("expected initial state, got %+v", sess.Snapshot)
	}
}

func TestPostMessageRoundTrip(t *testing.T) {
	agent := &gatedAgent{reply: "Rest and drink fluids.", release: make(chan struct{})}
	srv, gw := setupServer(t, agent)
	sess := createSession(t, srv)

	w := do(t, srv, http.MethodPost, sessionPath(sess.SessionKey)+"/messages", `{"text":"I have a cold"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	optimistic := decode[sessionResponse](t, w)
	if !optimistic.IsTyping || len(optimistic.Messages) != 1 {
		t.Fatalf("expected optimistic typing snapshot, got %+v", optimistic.Snapshot)
	}

	// A second message while the first is pending is a conflict.
	w = do(t, srv, http.MethodPost, sessionPath(sess.SessionKey)+"/messages", `{"text":"hello?"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	close(agent.release)
	if !gw.Queue.WaitIdle(2 * time.Second) {
		t.Fatal("turn did not finish")
	}

	deadline := time.Now().Add(2 * time.Second)
	var final sessionResponse
	for time.Now().Before(deadline) {
		final = decode[sessionResponse](t, do(t, srv, http.MethodGet, sessionPath(sess.SessionKey), ""))
		if !final.IsTyping {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if final.IsTyping {
		t.Fatal("session still typing")
	}
	if len(final.Messages) != 2 || final.Messages[1].Content != "Rest and drink fluids." {
		t.Errorf("unexpected transcript: %+v", final.Messages)
	}
}

func TestPostMessageBadRequests(t *testing.T) {
	srv, _ := setupServer(t, &gatedAgent{release: make(chan struct{})})
	sess := createSession(t, srv)

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"blank text", sessionPath(sess.SessionKey) + "/messages", `{"text":"   "}`, http.StatusBadRequest},
		{"invalid json", sessionPath(sess.SessionKey) + "/messages", `{not json`, http.StatusBadRequest},
		{"unknown session", sessionPath("web:missing") + "/messages", `{"text":"hi"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, tc.path, tc.body)
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestGetUnknownSession(t *testing.T) {
	srv, _ := setupServer(t, &gatedAgent{release: make(chan struct{})})
	w := do(t, srv, http.MethodGet, sessionPath("web:nope"), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListAndDeleteSessions(t *testing.T) {
	srv, _ := setupServer(t, &gatedAgent{release: make(chan struct{})})
	first := createSession(t, srv)
	createSession(t, srv)

	list := decode[[]sessionSummary](t, do(t, srv, http.MethodGet, "/api/sessions", ""))
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}

	w := do(t, srv, http.MethodDelete, sessionPath(first.SessionKey), "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	w = do(t, srv, http.MethodDelete, sessionPath(first.SessionKey), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", w.Code)
	}

	list = decode[[]sessionSummary](t, do(t, srv, http.MethodGet, "/api/sessions", ""))
	if len(list) != 1 {
		t.Fatalf("expected 1 session after delete, got %d", len(list))
	}
}

func TestIndexServed(t *testing.T) {
	srv, _ := setupServer(t, &gatedAgent{release: make(chan struct{})})
	w := do(t, srv, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "MedSeek") {
		t.Error("expected chat page")
	}
	if strings.Contains(w.Body.String(), "div.innerHTML") {
		t.Error("message content must be set as text")
	}
}

// escapedSessionPath escapes the key the way the browser page does.
func escapedSessionPath(key string) string {
	return "/api/sessions/" + url.QueryEscape(key)
}

func waitForReply(t *testing.T, srv http.Handler, path string) sessionResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp := decode[sessionResponse](t, do(t, srv, http.MethodGet, path, ""))
		if !resp.IsTyping {
			return resp
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session still typing")
	return sessionResponse{}
}

func TestEscapedSessionKeyRoutes(t *testing.T) {
	agent := &gatedAgent{reply: "Noted.", release: make(chan struct{})}
	close(agent.release)
	srv, _ := setupServer(t, agent)
	sess := createSession(t, srv)

	path := escapedSessionPath(sess.SessionKey)
	if !strings.Contains(path, "%3A") {
		t.Fatalf("expected escaped colon in %q", path)
	}

	w := do(t, srv, http.MethodGet, path, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[sessionResponse](t, w); got.SessionID != sess.SessionID {
		t.Errorf("GET: expected session %s, got %s", sess.SessionID, got.SessionID)
	}

	w = do(t, srv, http.MethodPost, path+"/messages", `{"text":"hello"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST: expected 202, got %d: %s", w.Code, w.Body.String())
	}
	final := waitForReply(t, srv, path)
	if len(final.Messages) != 2 || final.Messages[1].Content != "Noted." {
		t.Errorf("unexpected transcript: %+v", final.Messages)
	}

	w = do(t, srv, http.MethodDelete, path, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE: expected 204, got %d", w.Code)
	}
}

func TestHTMLReplyServedAsText(t *testing.T) {
	agent := &gatedAgent{
		reply:   `<p>Drink <b>water</b></p><script>alert(1)</script>`,
		release: make(chan struct{}),
	}
	close(agent.release)
	srv, _ := setupServer(t, agent)
	sess := createSession(t, srv)

	w := do(t, srv, http.MethodPost, sessionPath(sess.SessionKey)+"/messages", `{"text":"thirsty"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	final := waitForReply(t, srv, sessionPath(sess.SessionKey))
	if len(final.Messages) != 2 {
		t.Fatalf("unexpected transcript: %+v", final.Messages)
	}
	reply := final.Messages[1].Content
	if strings.Contains(reply, "<") || strings.Contains(reply, "alert") {
		t.Errorf("expected markup stripped, got %q", reply)
	}
	if !strings.Contains(reply, "**water**") {
		t.Errorf("expected markdown emphasis, got %q", reply)
	}
}
