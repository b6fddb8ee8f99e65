package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yanmxa/genmotion/internal/message"
)

// eventMarshaler wraps an Event for zap logging
type eventMarshaler message.Event

func (e eventMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("type", string(e.Type))
	if e.Text != "" {
		enc.AddString("text", escapeForLog(e.Text))
	}
	if e.ToolCallID != "" {
		enc.AddString("tool_call_id", e.ToolCallID)
		enc.AddString("tool_name", e.ToolName)
	}
	if len(e.Args) > 0 {
		enc.AddString("args", string(e.Args))
	}
	if len(e.Result) > 0 {
		enc.AddString("result", string(e.Result))
	}
	if e.IsError {
		enc.AddBool("is_error", true)
	}
	if e.Message != "" {
		enc.AddString("message", e.Message)
	}
	if e.Synthesized {
		enc.AddBool("synthesized", true)
	}
	return nil
}

// EventField creates a zap field for a stream event
func EventField(ev message.Event) zap.Field {
	return zap.Object("event", eventMarshaler(ev))
}

// toolCallMarshaler wraps a ToolCall for zap logging
type toolCallMarshaler message.ToolCall

func (tc toolCallMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", tc.ToolCallID)
	enc.AddString("name", tc.ToolName)
	enc.AddString("status", string(tc.Status))
	enc.AddUint64("seq", tc.Seq)
	if tc.Error != "" {
		enc.AddString("error", tc.Error)
	}
	return nil
}

// toolCallsMarshaler wraps a slice of ToolCalls for zap logging
type toolCallsMarshaler []message.ToolCall

func (tc toolCallsMarshaler) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, call := range tc {
		_ = enc.AppendObject(toolCallMarshaler(call))
	}
	return nil
}

// ToolCallsField creates a zap field for tool calls
func ToolCallsField(toolCalls []message.ToolCall) zap.Field {
	return zap.Array("tool_calls", toolCallsMarshaler(toolCalls))
}
