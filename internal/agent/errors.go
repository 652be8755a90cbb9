package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/buger/jsonparser"

	"github.com/user/medseek/internal/types"
)

const (
	MsgTimeout           = "Request timed out. Please try again."
	MsgUnreachable       = "Could not connect to the medical assistant. Please check your connection."
	MsgWorkflowMisconfig = "⚠️ The workflow is not configured correctly. Please check the n8n workflow."
	MsgWorkflowGeneric   = "The workflow encountered an error. Please check n8n."

	unusedRespondNode     = "Unused Respond to Webhook"
	defaultWorkflowReason = "Internal server error"
)

// classifyTransport turns a failed round trip into a fixed user-facing message.
func classifyTransport(err error) types.AgentResult {
	switch {
	case isTimeout(err):
		return types.AgentResult{Reply: MsgTimeout, IsError: true}
	case isUnreachable(err):
		return types.AgentResult{Reply: MsgUnreachable, IsError: true}
	default:
		return types.AgentResult{Reply: "An error occurred: " + err.Error(), IsError: true}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isUnreachable(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr), errors.As(err, &opErr):
		return true
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// Server hung up before sending a response.
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}

// classifyWorkflowError handles a 500 from the workflow engine.
func classifyWorkflowError(body []byte) types.AgentResult {
	generic := types.AgentResult{Reply: MsgWorkflowGeneric, IsError: true}

	data := bytes.TrimSpace(body)
	if len(data) == 0 || data[0] != '{' || !json.Valid(data) {
		return generic
	}

	reason := defaultWorkflowReason
	value, dataType, _, err := jsonparser.Get(data, "message")
	if err == nil {
		if dataType != jsonparser.String {
			return generic
		}
		if reason, err = jsonparser.ParseString(value); err != nil {
			return generic
		}
	}

	if strings.Contains(reason, unusedRespondNode) {
		return types.AgentResult{Reply: MsgWorkflowMisconfig, IsError: true}
	}
	return types.AgentResult{Reply: "Workflow error: " + reason, IsError: true}
}
