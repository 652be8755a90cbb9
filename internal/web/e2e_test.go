package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/user/medseek/internal/agent"
	"github.com/user/medseek/internal/gateway"
	"github.com/user/medseek/internal/state"
)

// TestEndToEnd drives the browser API against a fake workflow webhook
// through the real client, gateway and queue.
func TestEndToEnd(t *testing.T) {
	var mu sync.Mutex
	var seen []map[string]string

	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		mu.Lock()
		seen = append(seen, body)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if body["chatInput"] == "crash" {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"message":"Unused Respond to Webhook node found in the workflow"}`))
			return
		}
		w.Write([]byte(`{"output":"Echo: ` + body["chatInput"] + `"}`))
	}))
	defer hook.Close()

	client := agent.New(agent.Config{URL: hook.URL, Timeout: 2 * time.Second})
	gw := gateway.New(state.NewSessionStore(client), 2)
	gw.Start(context.Background())
	defer gw.Stop()
	srv := NewServer(gw)

	sess := createSession(t, srv)

	waitIdle := func() sessionResponse {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			got := decode[sessionResponse](t, do(t, srv, http.MethodGet, sessionPath(sess.SessionKey), ""))
			if !got.IsTyping {
				return got
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatal("turn did not complete")
		return sessionResponse{}
	}

	w := do(t, srv, http.MethodPost, sessionPath(sess.SessionKey)+"/messages", `{"text":"hello"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	got := waitIdle()
	if len(got.Messages) != 2 || got.Messages[1].Content != "Echo: hello" {
		t.Fatalf("unexpected transcript %+v", got.Messages)
	}
	if got.LastError != "" {
		t.Errorf("unexpected error %q", got.LastError)
	}

	w = do(t, srv, http.MethodPost, sessionPath(sess.SessionKey)+"/messages", `{"text":"crash"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	got = waitIdle()
	want := "⚠️ The workflow is not configured correctly. Please check the n8n workflow."
	if got.LastError != want {
		t.Errorf("expected misconfiguration error, got %q", got.LastError)
	}
	if len(got.Messages) != 4 {
		t.Errorf("expected 4 messages, got %d", len(got.Messages))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 webhook calls, got %d", len(seen))
	}
	for _, body := range seen {
		if body["sessionId"] != sess.SessionID {
			t.Errorf("expected sessionId %s, got %s", sess.SessionID, body["sessionId"])
		}
		if body["action"] != "sendMessage" {
			t.Errorf("expected action sendMessage, got %s", body["action"])
		}
	}
}
