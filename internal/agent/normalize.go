package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/buger/jsonparser"

	"github.com/user/medseek/internal/types"
)

// FallbackReply stands in for a reply field that is present but null.
const FallbackReply = "I couldn't process the request."

// replyKeys are tried in order on a successful object response.
var replyKeys = []string{"reply", "output", "message"}

var errStop = errors.New("stop")

// Normalize maps a 200 response body to a result. It applies, in order:
//
//  1. a body that is not JSON is the reply, verbatim;
//  2. a non-object value is rendered as text;
//  3. an object's "reply", "output" or "message" field;
//  4. an object's first field (document order) holding a non-empty string;
//  5. the whole object rendered as text.
//
// Only the "reply" shape can carry an error flag, in a top-level "error"
// field. Nothing nested under "reply" is inspected.
func Normalize(body []byte) types.AgentResult {
	data := bytes.TrimSpace(body)
	if len(data) == 0 || !json.Valid(data) {
		return types.AgentResult{Reply: string(body)}
	}
	if data[0] != '{' {
		return types.AgentResult{Reply: renderText(data, valueType(data))}
	}
	return normalizeObject(data)
}

func normalizeObject(data []byte) types.AgentResult {
	for _, key := range replyKeys {
		value, dataType, _, err := jsonparser.Get(data, key)
		if err != nil {
			continue
		}
		result := types.AgentResult{Reply: renderReply(value, dataType)}
		if key == "reply" {
			if flag, flagType, _, err := jsonparser.Get(data, "error"); err == nil {
				result.IsError = truthy(flag, flagType)
			}
		}
		return result
	}

	var first string
	err := jsonparser.ObjectEach(data, func(_ []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		if dataType != jsonparser.String {
			return nil
		}
		s, err := jsonparser.ParseString(value)
		if err != nil || s == "" {
			return nil
		}
		first = s
		return errStop
	})
	if errors.Is(err, errStop) {
		return types.AgentResult{Reply: first}
	}

	return types.AgentResult{Reply: renderText(data, jsonparser.Object)}
}

// renderReply renders a reply-like field; null falls back to FallbackReply.
func renderReply(value []byte, dataType jsonparser.ValueType) string {
	if dataType == jsonparser.Null {
		return FallbackReply
	}
	return renderText(value, dataType)
}

// renderText renders a JSON value for display: strings unescaped, anything
// else as compact JSON. value is what jsonparser yields, so strings arrive
// without their quotes.
func renderText(value []byte, dataType jsonparser.ValueType) string {
	if dataType == jsonparser.String {
		if len(value) > 0 && value[0] == '"' {
			var s string
			if err := json.Unmarshal(value, &s); err == nil {
				return s
			}
		}
		if s, err := jsonparser.ParseString(value); err == nil {
			return s
		}
		return string(value)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return string(value)
	}
	return buf.String()
}

// valueType reports the JSON type of a complete, valid document.
func valueType(data []byte) jsonparser.ValueType {
	switch data[0] {
	case '"':
		return jsonparser.String
	case '{':
		return jsonparser.Object
	case '[':
		return jsonparser.Array
	case 't', 'f':
		return jsonparser.Boolean
	case 'n':
		return jsonparser.Null
	default:
		return jsonparser.Number
	}
}

// truthy follows the usual loose-typing rules for an "error" flag.
func truthy(value []byte, dataType jsonparser.ValueType) bool {
	switch dataType {
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(value)
		return err == nil && b
	case jsonparser.Number:
		f, err := strconv.ParseFloat(string(value), 64)
		return err == nil && f != 0
	case jsonparser.String:
		return len(value) > 0
	case jsonparser.Array:
		var nonEmpty bool
		_, _ = jsonparser.ArrayEach(value, func(_ []byte, _ jsonparser.ValueType, _ int, _ error) {
			nonEmpty = true
		})
		return nonEmpty
	case jsonparser.Object:
		err := jsonparser.ObjectEach(value, func(_, _ []byte, _ jsonparser.ValueType, _ int) error {
			return errStop
		})
		return errors.Is(err, errStop)
	default:
		return false
	}
}
