// Package message defines the canonical stream and session log types used across the codebase.
// All packages import from here to avoid circular dependencies.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// WaitingForInput is the synthesized placeholder appended when a turn ends
// waiting on the user. It stays in the log but never reaches the timeline.
const WaitingForInput = "Waiting for your input…"

// isoLayout is fixed width so that lexical order equals chronological order.
const isoLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t as a fixed-width ISO-8601 UTC string with millisecond precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// Message is one entry in a session's conversation log.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"timestamp"`
	Internal  bool   `json:"internal,omitempty"`
}

// ToolStatus is the lifecycle status of a tool call.
type ToolStatus string

const (
	ToolRunning ToolStatus = "running"
	ToolDone    ToolStatus = "done"
	ToolFailed  ToolStatus = "failed"
)

// ToolCall is one tool invocation made by the agent, correlated with its
// result through ToolCallID.
type ToolCall struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Status     ToolStatus      `json:"status"`
	Args       json.RawMessage `json:"args,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	Seq        uint64          `json:"seq"`
	Timestamp  string          `json:"timestamp"`
}

// Finish moves a running call to done or failed. It reports false when the
// call already finished; a finished call never transitions again.
func (tc *ToolCall) Finish(output json.RawMessage, errText string, failed bool) bool {
	if tc.Status != ToolRunning {
		return false
	}
	tc.Output = output
	if failed {
		tc.Status = ToolFailed
		tc.Error = errText
	} else {
		tc.Status = ToolDone
	}
	return true
}

// EventType discriminates the stream event union.
type EventType string

const (
	EventTextDelta      EventType = "text-delta"
	EventReasoningDelta EventType = "reasoning-delta"
	EventToolCall       EventType = "tool-call"
	EventToolResult     EventType = "tool-result"
	EventComplete       EventType = "complete"
	EventError          EventType = "error"
	EventStepFinish     EventType = "step-finish"
	EventFinish         EventType = "finish"
)

// Event is one decoded frame of the tool-calling stream.
type Event struct {
	Type       EventType       `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
	Message    string          `json:"message,omitempty"`

	// Synthesized marks a complete event produced by the client because
	// the stream ended without one.
	Synthesized bool `json:"-"`
}

// IsTerminal reports whether the event ends a turn.
func (e Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// IsHousekeeping reports whether the event carries no actionable payload.
func (e Event) IsHousekeeping() bool {
	return e.Type == EventStepFinish || e.Type == EventFinish
}

// wireEvent accepts the field aliases different stream producers use.
type wireEvent struct {
	Type       EventType       `json:"type"`
	Text       *string         `json:"text"`
	TextDelta  *string         `json:"textDelta"`
	Delta      *string         `json:"delta"`
	Content    *string         `json:"content"`
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
	Input      json.RawMessage `json:"input"`
	Result     json.RawMessage `json:"result"`
	Output     json.RawMessage `json:"output"`
	IsError    bool            `json:"isError"`
	Message    string          `json:"message"`
	Error      json.RawMessage `json:"error"`
}

// Decode parses one JSON frame into an Event.
func Decode(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if w.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}

	ev := Event{
		Type:       w.Type,
		ToolCallID: w.ToolCallID,
		ToolName:   w.ToolName,
		Args:       firstRaw(w.Args, w.Input),
		Result:     firstRaw(w.Result, w.Output),
		IsError:    w.IsError,
		Message:    w.Message,
	}
	for _, s := range []*string{w.Text, w.TextDelta, w.Delta, w.Content} {
		if s != nil {
			ev.Text = *s
			break
		}
	}
	if ev.Type == EventError && ev.Message == "" {
		ev.Message = errorText(w.Error)
	}
	return ev, nil
}

func firstRaw(vals ...json.RawMessage) json.RawMessage {
	for _, v := range vals {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}

// errorText extracts a message from an error field that may be a string or an object.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return strings.TrimSpace(string(raw))
}

// TurnMessage is the role/content pair sent as conversation history.
type TurnMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History converts a session log to outgoing conversation history,
// dropping internal messages.
func History(msgs []Message) []TurnMessage {
	out := make([]TurnMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Internal || m.Content == "" {
			continue
		}
		out = append(out, TurnMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// TodoStatus is the progress of one execution step.
type TodoStatus string

const (
	TodoPending TodoStatus = "pending"
	TodoActive  TodoStatus = "active"
	TodoDone    TodoStatus = "done"
)

func (s TodoStatus) rank() int {
	switch s {
	case TodoActive:
		return 1
	case TodoDone:
		return 2
	default:
		return 0
	}
}

// Todo is one unit of execution work the agent reports progress on.
type Todo struct {
	ID     string     `json:"id"`
	Label  string     `json:"label"`
	Status TodoStatus `json:"status"`
}

// Advance moves the todo to status if that is forward progress.
// Regressions (done→active, active→pending, …) are refused.
func (t *Todo) Advance(status TodoStatus) bool {
	if status.rank() <= t.Status.rank() {
		return false
	}
	t.Status = status
	return true
}
