// internal/types/models.go
package types

// Role tags who authored a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a transcript. Index in the transcript is display order.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AgentResult is the uniform outcome of one webhook call. Every failure mode
// is folded into it with IsError set.
type AgentResult struct {
	Reply   string `json:"reply"`
	IsError bool   `json:"is_error"`
}

// InboundEvent is a user utterance arriving from a server front end.
type InboundEvent struct {
	Source     string     `json:"source"`
	SessionKey SessionKey `json:"session_key"`
	UserID     string     `json:"user_id"`
	Text       string     `json:"text"`
}
