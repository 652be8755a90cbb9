// Package agent relays user utterances to the n8n chat webhook and folds
// every possible answer into a types.AgentResult.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/medseek/internal/types"
)

// DefaultTimeout bounds a whole webhook round trip.
const DefaultTimeout = 60 * time.Second

// Config configures a Client.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client implements types.Agent against an HTTP webhook.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a webhook client. A zero Timeout means DefaultTimeout.
func New(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// sendRequest is the webhook request body.
type sendRequest struct {
	SessionID types.SessionID `json:"sessionId"`
	Action    string          `json:"action"`
	ChatInput string          `json:"chatInput"`
}

const actionSendMessage = "sendMessage"

// Send posts one utterance and classifies the outcome. It never returns an
// error: failures come back as results with IsError set.
func (c *Client) Send(ctx context.Context, sessionID types.SessionID, text string) types.AgentResult {
	status, body, err := c.post(ctx, sendRequest{
		SessionID: sessionID,
		Action:    actionSendMessage,
		ChatInput: text,
	})
	if err != nil {
		slog.Warn("webhook call failed", "session_id", string(sessionID), "error", err)
		return classifyTransport(err)
	}

	slog.Debug("webhook replied", "session_id", string(sessionID), "status", status, "bytes", len(body))
	return classifyResponse(status, body)
}

func (c *Client) post(ctx context.Context, payload sendRequest) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// classifyResponse maps an HTTP status and body to a result.
func classifyResponse(status int, body []byte) types.AgentResult {
	switch {
	case status == http.StatusInternalServerError:
		return classifyWorkflowError(body)
	case status != http.StatusOK:
		return types.AgentResult{
			Reply:   fmt.Sprintf("Server returned error code %d.", status),
			IsError: true,
		}
	default:
		return Normalize(body)
	}
}
