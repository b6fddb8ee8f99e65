package fakeserver

import "encoding/json"

// Frame marshals v into one SSE data payload.
func Frame(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// Text is a text-delta frame.
func Text(s string) string {
	return Frame(map[string]any{"type": "text-delta", "text": s})
}

// Reasoning is a reasoning-delta frame.
func Reasoning(s string) string {
	return Frame(map[string]any{"type": "reasoning-delta", "text": s})
}

// Call is a tool-call frame.
func Call(id, name string, args any) string {
	return Frame(map[string]any{"type": "tool-call", "toolCallId": id, "toolName": name, "args": args})
}

// Result is a successful tool-result frame.
func Result(id, name string, result any) string {
	return Frame(map[string]any{"type": "tool-result", "toolCallId": id, "toolName": name, "result": result})
}

// Failure is a tool-result frame flagged as an error.
func Failure(id, name string, result any) string {
	return Frame(map[string]any{"type": "tool-result", "toolCallId": id, "toolName": name, "result": result, "isError": true})
}

// Complete is the terminal success frame.
func Complete(text string) string {
	return Frame(map[string]any{"type": "complete", "text": text})
}

// Error is the terminal failure frame.
func Error(msg string) string {
	return Frame(map[string]any{"type": "error", "message": msg})
}

// StepFinish is a housekeeping frame.
func StepFinish() string {
	return Frame(map[string]any{"type": "step-finish"})
}
