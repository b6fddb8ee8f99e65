// Package toolevent maps raw agent tool calls and tool results to typed
// application events.
//
// Mapping is a pure function of (tool name, payload). No session state is
// consulted, so the same frame always yields the same event.
package toolevent

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/yanmxa/genmotion/internal/message"
	"github.com/yanmxa/genmotion/internal/plan"
)

// Tool names understood by the mapper.
const (
	ToolUpdateTodo      = "update_todo"
	ToolSetThinking     = "set_thinking"
	ToolAddMessage      = "add_message"
	ToolRequestApproval = "request_approval"

	ToolAnalyzePrompt = "analyze_prompt"
	ToolGeneratePlan  = "generate_plan"

	ToolSandboxCreate = "sandbox_create"
	ToolWriteFile     = "sandbox_write_file"
	ToolReadFile      = "sandbox_read_file"
	ToolRunCommand    = "sandbox_run_command"
	ToolStartPreview  = "sandbox_start_preview"
	ToolRenderPreview = "render_preview"
	ToolRenderFinal   = "render_final"
	ToolGenerateCode  = "generate_code"
)

// Category is the fixed partition of tool names.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryUIControl
	CategoryPlanning
	CategorySandbox
	CategoryCodeGen
)

var categories = map[string]Category{
	ToolUpdateTodo:      CategoryUIControl,
	ToolSetThinking:     CategoryUIControl,
	ToolAddMessage:      CategoryUIControl,
	ToolRequestApproval: CategoryUIControl,
	ToolAnalyzePrompt:   CategoryPlanning,
	ToolGeneratePlan:    CategoryPlanning,
	ToolSandboxCreate:   CategorySandbox,
	ToolWriteFile:       CategorySandbox,
	ToolReadFile:        CategorySandbox,
	ToolRunCommand:      CategorySandbox,
	ToolStartPreview:    CategorySandbox,
	ToolRenderPreview:   CategorySandbox,
	ToolRenderFinal:     CategorySandbox,
	ToolGenerateCode:    CategoryCodeGen,
}

// CategoryOf returns the partition a tool belongs to.
func CategoryOf(name string) Category {
	return categories[name]
}

// IsUIControl reports whether a tool only drives UI state. Such calls never
// appear as their own timeline item.
func IsUIControl(name string) bool {
	return categories[name] == CategoryUIControl
}

// Event is a typed application event. The set of implementations is closed.
type Event interface {
	event()
}

// TodoUpdated changes one todo, or replaces the whole list when Todos is set.
type TodoUpdated struct {
	ID     string
	Label  string
	Status message.TodoStatus
	Remove bool
	Todos  []message.Todo
}

// ThinkingSet labels the current thinking block, opening one if none is open.
type ThinkingSet struct {
	Label string
}

// MessageAdded is an assistant message posted through a tool.
type MessageAdded struct {
	Content string
}

// ApprovalRequested asks the user to confirm before continuing.
type ApprovalRequested struct {
	Message string
}

// QuestionAsked is a clarifying question from prompt analysis.
type QuestionAsked struct {
	Question string
	Options  []string
}

// PlanGenerated carries a freshly generated plan.
type PlanGenerated struct {
	Plan *plan.Plan
}

// SandboxCreated carries the id of a newly provisioned sandbox.
type SandboxCreated struct {
	SandboxID string
}

// FileWritten reports a file written into the sandbox.
type FileWritten struct {
	Path string
}

// CommandRan reports a command run in the sandbox.
type CommandRan struct {
	Command  string
	ExitCode int
}

// PreviewReady carries the live preview url of the sandbox.
type PreviewReady struct {
	URL string
}

// RenderComplete carries a rendered video.
type RenderComplete struct {
	VideoURL     string
	ThumbnailURL string
	FilePath     string
	Duration     float64
	Final        bool
}

// CodeGenerated reports the outcome of a code-generation call.
type CodeGenerated struct {
	Files   []string
	Summary string
	Failed  bool
}

// ToolFailed reports a failed sandbox or planning tool. Status is the
// friendly line for users; Detail is for the diagnostic log only.
type ToolFailed struct {
	Tool   string
	Status string
	Detail string
}

func (TodoUpdated) event()       {}
func (ThinkingSet) event()       {}
func (MessageAdded) event()      {}
func (ApprovalRequested) event() {}
func (QuestionAsked) event()     {}
func (PlanGenerated) event()     {}
func (SandboxCreated) event()    {}
func (FileWritten) event()       {}
func (CommandRan) event()        {}
func (PreviewReady) event()      {}
func (RenderComplete) event()    {}
func (CodeGenerated) event()     {}
func (ToolFailed) event()        {}

// FromCall maps a tool call. Only UI-control tools act on call.
func FromCall(name string, args json.RawMessage) (Event, bool) {
	a := gjson.ParseBytes(args)
	switch name {
	case ToolUpdateTodo:
		return todoFromArgs(a)
	case ToolSetThinking:
		label := first(a, "label", "thinking", "text")
		if label == "" {
			return nil, false
		}
		return ThinkingSet{Label: label}, true
	case ToolAddMessage:
		content := first(a, "content", "message", "text")
		if content == "" {
			return nil, false
		}
		return MessageAdded{Content: content}, true
	case ToolRequestApproval:
		return ApprovalRequested{Message: first(a, "message", "question", "text")}, true
	}
	return nil, false
}

func todoFromArgs(a gjson.Result) (Event, bool) {
	if list := a.Get("todos"); list.IsArray() {
		var todos []message.Todo
		list.ForEach(func(_, v gjson.Result) bool {
			id := v.Get("id").String()
			if id == "" {
				return true
			}
			todos = append(todos, message.Todo{
				ID:     id,
				Label:  v.Get("label").String(),
				Status: todoStatus(v.Get("status").String()),
			})
			return true
		})
		return TodoUpdated{Todos: todos}, true
	}

	id := first(a, "id", "todoId")
	if id == "" {
		return nil, false
	}
	return TodoUpdated{
		ID:     id,
		Label:  a.Get("label").String(),
		Status: todoStatus(a.Get("status").String()),
		Remove: a.Get("remove").Bool() || a.Get("action").String() == "remove",
	}, true
}

func todoStatus(s string) message.TodoStatus {
	switch strings.ToLower(s) {
	case "active", "in_progress", "running":
		return message.TodoActive
	case "done", "completed", "complete":
		return message.TodoDone
	default:
		return message.TodoPending
	}
}

// FromResult maps a tool result. UI-control tools and unknown tools yield
// no event.
func FromResult(name string, result json.RawMessage, isError bool) (Event, bool) {
	r := unwrap(gjson.ParseBytes(result))

	switch CategoryOf(name) {
	case CategoryPlanning:
		if isError || r.Get("success").Exists() && !r.Get("success").Bool() {
			return failed(name, r), true
		}
		return planningResult(name, r)
	case CategorySandbox:
		if isError || r.Get("success").Exists() && !r.Get("success").Bool() {
			return failed(name, r), true
		}
		return sandboxResult(name, r)
	case CategoryCodeGen:
		return codeResult(r, isError), true
	}
	return nil, false
}

// unwrap returns the object under "output" or "result" when the payload is
// wrapped, so flat and nested shapes are read alike.
func unwrap(r gjson.Result) gjson.Result {
	for _, key := range []string{"output", "result"} {
		if inner := r.Get(key); inner.IsObject() {
			return inner
		}
	}
	return r
}

func planningResult(name string, r gjson.Result) (Event, bool) {
	if name == ToolAnalyzePrompt && r.Get("needsClarification").Bool() {
		var opts []string
		r.Get("options").ForEach(func(_, v gjson.Result) bool {
			if s := first(v, "label", "value"); s != "" {
				opts = append(opts, s)
			} else if v.Type == gjson.String {
				opts = append(opts, v.String())
			}
			return true
		})
		return QuestionAsked{Question: r.Get("question").String(), Options: opts}, true
	}

	raw := r.Get("plan")
	if !raw.IsObject() {
		if name != ToolGeneratePlan {
			return nil, false
		}
		raw = r
	}
	p, err := plan.Parse(json.RawMessage(raw.Raw))
	if err != nil {
		return nil, false
	}
	return PlanGenerated{Plan: p}, true
}

func sandboxResult(name string, r gjson.Result) (Event, bool) {
	switch name {
	case ToolSandboxCreate:
		id := first(r, "sandboxId", "id")
		if id == "" {
			return nil, false
		}
		return SandboxCreated{SandboxID: id}, true
	case ToolWriteFile:
		return FileWritten{Path: first(r, "path", "filePath")}, true
	case ToolRunCommand:
		return CommandRan{Command: r.Get("command").String(), ExitCode: int(r.Get("exitCode").Int())}, true
	case ToolStartPreview:
		url := first(r, "previewUrl", "url")
		if url == "" {
			return nil, false
		}
		return PreviewReady{URL: url}, true
	case ToolRenderPreview, ToolRenderFinal:
		url := first(r, "videoUrl", "url")
		if url == "" {
			return ToolFailed{Tool: name, Status: FriendlyStatus(name), Detail: "render returned no video url: " + r.Raw}, true
		}
		return RenderComplete{
			VideoURL:     url,
			ThumbnailURL: r.Get("thumbnailUrl").String(),
			FilePath:     first(r, "filePath", "path"),
			Duration:     r.Get("duration").Float(),
			Final:        name == ToolRenderFinal,
		}, true
	}
	return nil, false
}

func codeResult(r gjson.Result, isError bool) Event {
	summary := r.Get("summary").String()
	if r.Type == gjson.String {
		summary = r.String()
	}
	var files []string
	r.Get("files").ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String {
			files = append(files, v.String())
		} else if p := first(v, "path", "name"); p != "" {
			files = append(files, p)
		}
		return true
	})
	failed := isError || SummaryFailed(summary) ||
		(r.Get("success").Exists() && !r.Get("success").Bool())
	return CodeGenerated{Files: files, Summary: summary, Failed: failed}
}

// SummaryFailed applies the summary-string failure convention used by
// code-generation tools that do not set isError.
func SummaryFailed(summary string) bool {
	s := strings.ToLower(strings.TrimSpace(summary))
	return strings.HasPrefix(s, "error") ||
		strings.HasPrefix(s, "failed") ||
		strings.Contains(s, "failed to")
}

func failed(name string, r gjson.Result) ToolFailed {
	detail := first(r, "error", "message", "stderr")
	if detail == "" {
		detail = r.Raw
	}
	return ToolFailed{Tool: name, Status: FriendlyStatus(name), Detail: detail}
}

// first returns the first non-empty string among keys.
func first(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		v := r.Get(k)
		if v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
		if v.IsObject() {
			if msg := v.Get("message").String(); msg != "" {
				return msg
			}
		}
	}
	return ""
}
