package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrSkipLine reports a line that carries no protocol event: blank lines,
// non-JSON noise, and unrecognized tags.
var ErrSkipLine = errors.New("protocol: skip line")

// Event is one decoded protocol event. The set of variants is closed; see
// DecodeLine for the dispatch.
type Event interface {
	event()
}

// ResponseEvent is the correlated reply to a prior outgoing command.
type ResponseEvent struct {
	ID      int64
	Success bool
	Error   string
}

// UpdateKind discriminates message_update payloads.
type UpdateKind string

const (
	UpdateTextDelta     UpdateKind = "text_delta"
	UpdateThinkingDelta UpdateKind = "thinking_delta"
	UpdateError         UpdateKind = "error"
	UpdateOther         UpdateKind = "other"
)

// MessageUpdateEvent is a streaming delta during the assistant turn.
type MessageUpdateEvent struct {
	Kind  UpdateKind
	Text  string
	Error string
}

// MessageEndEvent marks the end of one streamed message.
type MessageEndEvent struct {
	Error string
}

// ToolStartEvent reports the beginning of a tool execution.
type ToolStartEvent struct {
	ToolName string
	Args     json.RawMessage
}

// ToolUpdateEvent reports intermediate tool output. Only its arrival matters;
// the payload is ignored.
type ToolUpdateEvent struct{}

// ToolEndEvent reports tool completion. Only its arrival matters.
type ToolEndEvent struct{}

// AgentEndEvent is the terminal success event carrying the full message list.
type AgentEndEvent struct {
	Messages []Message
}

// HookErrorEvent reports a fatal hook failure; it aborts the turn regardless
// of stage.
type HookErrorEvent struct {
	Error string
}

func (ResponseEvent) event()      {}
func (MessageUpdateEvent) event() {}
func (MessageEndEvent) event()    {}
func (ToolStartEvent) event()     {}
func (ToolUpdateEvent) event()    {}
func (ToolEndEvent) event()       {}
func (AgentEndEvent) event()      {}
func (HookErrorEvent) event()     {}

type rawEvent struct {
	Type     string          `json:"type"`
	ID       int64           `json:"id"`
	Success  *bool           `json:"success"`
	Error    string          `json:"error"`
	Update   *rawUpdate      `json:"update"`
	Message  *Message        `json:"message"`
	Messages []Message       `json:"messages"`
	ToolName string          `json:"tool_name"`
	Args     json.RawMessage `json:"args"`
}

type rawUpdate struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

// DecodeLine parses one stdout line into an event. It returns ErrSkipLine for
// blank lines, lines that are not JSON objects, and unrecognized tags.
func DecodeLine(line []byte) (Event, error) {
	if len(strings.TrimSpace(string(line))) == 0 {
		return nil, ErrSkipLine
	}
	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, ErrSkipLine
	}

	switch raw.Type {
	case "response":
		success := raw.Success == nil || *raw.Success
		if raw.Error != "" {
			success = false
		}
		return ResponseEvent{ID: raw.ID, Success: success, Error: raw.Error}, nil
	case "message_update":
		if raw.Update == nil {
			return MessageUpdateEvent{Kind: UpdateOther}, nil
		}
		switch raw.Update.Type {
		case "text_delta":
			return MessageUpdateEvent{Kind: UpdateTextDelta, Text: raw.Update.Text}, nil
		case "thinking_delta":
			return MessageUpdateEvent{Kind: UpdateThinkingDelta}, nil
		case "error":
			message := raw.Update.Error
			if message == "" {
				message = raw.Update.Text
			}
			return MessageUpdateEvent{Kind: UpdateError, Error: message}, nil
		default:
			return MessageUpdateEvent{Kind: UpdateOther}, nil
		}
	case "message_end":
		var errMsg string
		if raw.Message != nil {
			errMsg = raw.Message.Error
		}
		if errMsg == "" {
			errMsg = raw.Error
		}
		return MessageEndEvent{Error: errMsg}, nil
	case "tool_execution_start":
		return ToolStartEvent{ToolName: raw.ToolName, Args: raw.Args}, nil
	case "tool_execution_update":
		return ToolUpdateEvent{}, nil
	case "tool_execution_end":
		return ToolEndEvent{}, nil
	case "agent_end":
		return AgentEndEvent{Messages: raw.Messages}, nil
	case "hook_error":
		return HookErrorEvent{Error: raw.Error}, nil
	default:
		return nil, ErrSkipLine
	}
}
