package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/yanmxa/genmotion/internal/media"
	"github.com/yanmxa/genmotion/internal/message"
	"github.com/yanmxa/genmotion/internal/toolevent"
	"github.com/yanmxa/genmotion/internal/transport"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMachine() *Machine {
	n := 0
	return NewMachine("node-1",
		WithClock(NewClock(func() time.Time { return fixedNow })),
		WithIDFunc(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}))
}

func feed(m *Machine, evs ...message.Event) []Effect {
	var effects []Effect
	for _, ev := range evs {
		effects = append(effects, m.Apply(StreamEvent{Turn: m.s.TurnID, Event: ev})...)
	}
	return effects
}

func call(id, name, args string) message.Event {
	return message.Event{Type: message.EventToolCall, ToolCallID: id, ToolName: name, Args: json.RawMessage(args)}
}

func result(id, name, res string) message.Event {
	return message.Event{Type: message.EventToolResult, ToolCallID: id, ToolName: name, Result: json.RawMessage(res)}
}

func complete() message.Event { return message.Event{Type: message.EventComplete} }

func findEffect[T Effect](effects []Effect) (T, bool) {
	for _, e := range effects {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// planned returns a machine sitting on a fallback plan.
func planned(t *testing.T) *Machine {
	t.Helper()
	m := newTestMachine()
	m.Apply(Submit{Text: "make a logo spin"})
	feed(m, complete())
	if _, ok := m.Phase().(PlanReview); !ok {
		t.Fatalf("phase = %T, want PlanReview", m.Phase())
	}
	return m
}

// executing returns a machine running the accepted plan with a sandbox.
func executing(t *testing.T) *Machine {
	t.Helper()
	m := planned(t)
	m.Apply(AcceptPlan{})
	feed(m,
		call("c1", toolevent.ToolSandboxCreate, `{}`),
		result("c1", toolevent.ToolSandboxCreate, `{"sandboxId":"sb-1"}`),
	)
	return m
}

func TestSubmitFromIdleStartsAnalysis(t *testing.T) {
	m := newTestMachine()
	effects := m.Apply(Submit{Text: "make a logo spin"})

	st, ok := findEffect[StartTurn](effects)
	if !ok {
		t.Fatal("expected StartTurn")
	}
	if st.Request.Context.Mode != transport.ModeAnalyze || st.Request.Context.Phase != string(PhaseIdle) {
		t.Errorf("unexpected context %+v", st.Request.Context)
	}
	if len(st.Request.Messages) != 1 || st.Request.Messages[0].Content != "make a logo spin" {
		t.Errorf("unexpected history %+v", st.Request.Messages)
	}

	s := m.State()
	if p, ok := s.Phase.(Executing); !ok || p.Purpose != PurposeAnalyze {
		t.Fatalf("phase = %#v", s.Phase)
	}
	if !s.Streaming || st.Turn != s.TurnID {
		t.Errorf("streaming = %v, turn = %d/%d", s.Streaming, st.Turn, s.TurnID)
	}
	if len(s.Thinking) != 1 || !s.Thinking[0].IsOpen() {
		t.Errorf("expected one open thinking block, got %+v", s.Thinking)
	}
	if len(s.Messages) != 1 || s.Messages[0].Role != message.RoleUser {
		t.Errorf("unexpected messages %+v", s.Messages)
	}
}

func TestToolCallClosesThinking(t *testing.T) {
	m := newTestMachine()
	m.Apply(Submit{Text: "make a logo spin"})
	feed(m,
		message.Event{Type: message.EventReasoningDelta, Text: "first"},
		call("a1", toolevent.ToolAnalyzePrompt, `{}`),
		message.Event{Type: message.EventReasoningDelta, Text: "second"},
	)

	var blocks []ThinkingBlock
	for _, b := range m.State().Thinking {
		if b.Content != "" {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) != 2 {
		t.Fatalf("expected two reasoning blocks, got %+v", m.State().Thinking)
	}
	if blocks[0].Content != "first" || blocks[0].IsOpen() || blocks[0].EndedAt == "" {
		t.Errorf("first block not closed: %+v", blocks[0])
	}
	if blocks[1].Content != "second" || !blocks[1].IsOpen() {
		t.Errorf("second block should be open: %+v", blocks[1])
	}
	if blocks[1].Seq <= blocks[0].Seq {
		t.Errorf("blocks out of order: %d then %d", blocks[0].Seq, blocks[1].Seq)
	}
}

func TestSetThinkingOpensLabelledBlock(t *testing.T) {
	m := newTestMachine()
	m.Apply(Submit{Text: "make a logo spin"})
	feed(m,
		message.Event{Type: message.EventReasoningDelta, Text: "planning"},
		call("t1", toolevent.ToolSetThinking, `{"label":"Sketching scenes"}`),
	)

	s := m.State()
	last := s.Thinking[len(s.Thinking)-1]
	if !last.IsOpen() || last.Label != "Sketching scenes" {
		t.Errorf("expected an open labelled block, got %+v", last)
	}
	if s.Thinking[0].IsOpen() || s.Thinking[0].Content != "planning" {
		t.Errorf("earlier block should be closed: %+v", s.Thinking[0])
	}

	feed(m, complete())
	for _, b := range m.State().Thinking {
		if b.IsOpen() || b.EndedAt != message.Timestamp(fixedNow) {
			t.Errorf("block %s not closed at turn end: %+v", b.ID, b)
		}
	}
}

func TestAnalysisWithoutToolsFallsBackToPlan(t *testing.T) {
	m := planned(t)
	s := m.State()

	if s.Plan == nil || !s.Plan.Fallback {
		t.Fatalf("expected fallback plan, got %+v", s.Plan)
	}
	if len(s.Plan.Scenes) != 3 || s.Plan.TotalDuration != 7 || s.Plan.FPS != 60 {
		t.Errorf("unexpected fallback plan %+v", s.Plan)
	}
	if s.Streaming || s.Thinking[0].IsOpen() {
		t.Error("turn should be closed")
	}
	last := s.Messages[len(s.Messages)-1]
	if !last.Internal || last.Content != message.WaitingForInput {
		t.Errorf("expected waiting placeholder, got %+v", last)
	}
}

func TestAnalysisWithActivityButNoPlanGoesIdle(t *testing.T) {
	m := newTestMachine()
	m.Apply(Submit{Text: "hello"})
	feed(m, call("c1", toolevent.ToolSetThinking, `{"label":"Reading"}`), complete())

	s := m.State()
	if _, ok := s.Phase.(Idle); !ok {
		t.Errorf("phase = %T, want Idle", s.Phase)
	}
	if s.Plan != nil {
		t.Error("no fallback plan expected when the agent used tools")
	}
}

func TestAffirmativeAcceptsPlan(t *testing.T) {
	m := planned(t)
	effects := m.Apply(Submit{Text: "Yes!"})

	s := m.State()
	if !s.PlanAccepted {
		t.Fatal("plan should be accepted")
	}
	p, ok := s.Phase.(Executing)
	if !ok || p.Purpose != PurposeExecute {
		t.Fatalf("phase = %#v", s.Phase)
	}
	todos := p.Execution.Todos
	if len(todos) != len(s.Plan.Scenes)+2 {
		t.Fatalf("todos = %d, want %d", len(todos), len(s.Plan.Scenes)+2)
	}
	for _, todo := range todos {
		if todo.Status != message.TodoPending {
			t.Errorf("todo %s is %s, want pending", todo.ID, todo.Status)
		}
	}
	if todos[0].ID != TodoSetup || todos[len(todos)-1].ID != TodoRender {
		t.Errorf("unexpected bookends %s..%s", todos[0].ID, todos[len(todos)-1].ID)
	}

	if _, ok := findEffect[SavePlan](effects); !ok {
		t.Error("expected SavePlan")
	}
	st, ok := findEffect[StartTurn](effects)
	if !ok || st.Request.Context.Mode != transport.ModeExecute || !st.Request.Context.PlanAccepted {
		t.Errorf("unexpected StartTurn %+v", st)
	}
	if len(st.Request.Context.Todos) != len(todos) {
		t.Error("todos must be sent with the execute turn")
	}
}

func TestNonAffirmativeRevisesPlan(t *testing.T) {
	m := planned(t)
	beforeSeq := m.State().PlanSeq

	effects := m.Apply(Submit{Text: "yes, but make it blue"})
	st, ok := findEffect[StartTurn](effects)
	if !ok || st.Request.Context.Mode != transport.ModeRevise {
		t.Fatalf("expected a revise turn, got %+v", effects)
	}
	if m.State().PlanAccepted {
		t.Fatal("revision must not accept the plan")
	}

	feed(m,
		call("p1", toolevent.ToolGeneratePlan, `{}`),
		result("p1", toolevent.ToolGeneratePlan, `{"plan":{"title":"Blue logo","scenes":[{"title":"Intro","duration":1},{"title":"Spin","duration":4}]}}`),
	)
	s := m.State()
	if _, ok := s.Phase.(PlanReview); !ok {
		t.Fatalf("plan result should move to review mid-stream, got %T", s.Phase)
	}
	if s.Plan.Title != "Blue logo" || s.Plan.TotalDuration != 5 {
		t.Errorf("plan not replaced: %+v", s.Plan)
	}
	if s.PlanDiff == "" {
		t.Error("expected a revision diff")
	}
	if s.PlanSeq <= beforeSeq {
		t.Error("a revised plan takes the seq of its generation")
	}
}

func TestReviseWithoutNewPlanKeepsPrevious(t *testing.T) {
	m := planned(t)
	before := m.State().Plan
	m.Apply(Submit{Text: "shorter please"})
	feed(m, complete())

	s := m.State()
	if _, ok := s.Phase.(PlanReview); !ok {
		t.Fatalf("phase = %T", s.Phase)
	}
	if s.Plan.Title != before.Title {
		t.Error("previous plan should be kept when no revision arrives")
	}
}

func TestRenderAppendsVersionAndPreviews(t *testing.T) {
	m := executing(t)
	effects := feed(m,
		call("r1", toolevent.ToolRenderPreview, `{}`),
		result("r1", toolevent.ToolRenderPreview, `{"videoUrl":"https://x/v1.mp4","duration":5,"filePath":"out/v1.mp4"}`),
	)

	s := m.State()
	if len(s.Versions) != 1 || s.Versions[0].Duration != 5 {
		t.Fatalf("unexpected versions %+v", s.Versions)
	}
	if s.ActiveVersionID != s.Versions[0].ID || s.PreviewURL != "https://x/v1.mp4" || s.PreviewState != PreviewActive {
		t.Errorf("preview not set: %+v", s)
	}
	p, ok := s.Phase.(Preview)
	if !ok {
		t.Fatalf("phase = %T, want Preview", s.Phase)
	}
	for _, todo := range p.Execution.Todos {
		if todo.ID == TodoRender && todo.Status != message.TodoDone {
			t.Errorf("render todo is %s", todo.Status)
		}
	}
	persist, ok := findEffect[Persist](effects)
	if !ok || persist.VersionID != s.Versions[0].ID || persist.SandboxID != "sb-1" || persist.FilePath != "out/v1.mp4" {
		t.Errorf("unexpected persist %+v", persist)
	}

	// A second render is appended, never overwriting the first.
	feed(m, result("r2", toolevent.ToolRenderPreview, `{"videoUrl":"https://x/v2.mp4"}`))
	s = m.State()
	if len(s.Versions) != 2 || s.Versions[0].VideoURL != "https://x/v1.mp4" || s.ActiveVersionID != s.Versions[1].ID {
		t.Errorf("unexpected versions %+v", s.Versions)
	}
}

func TestFeedbackMarksPreviewStale(t *testing.T) {
	m := executing(t)
	feed(m, result("r1", toolevent.ToolRenderPreview, `{"videoUrl":"https://x/v1.mp4"}`), complete())

	effects := m.Apply(Submit{Text: "make it faster"})
	s := m.State()
	if s.PreviewState != PreviewStale || s.PreviewURL != "https://x/v1.mp4" {
		t.Errorf("preview = %q/%q", s.PreviewURL, s.PreviewState)
	}
	st, ok := findEffect[StartTurn](effects)
	if !ok || st.Request.Context.Mode != transport.ModeRetry || st.Request.Context.SandboxID != "sb-1" {
		t.Errorf("expected retry turn carrying the sandbox, got %+v", st)
	}
}

func TestCancelStopsTurn(t *testing.T) {
	m := executing(t)
	feed(m, call("w1", toolevent.ToolWriteFile, `{"path":"a.tsx"}`))
	turn := m.s.TurnID

	effects := m.Apply(Cancel{})
	if _, ok := findEffect[AbortTurn](effects); !ok {
		t.Fatal("expected AbortTurn")
	}
	s := m.State()
	if s.Streaming {
		t.Error("streaming should stop immediately")
	}
	if _, ok := s.Phase.(PlanReview); !ok {
		t.Errorf("phase = %T, want PlanReview", s.Phase)
	}
	if tc := s.ToolCalls[len(s.ToolCalls)-1]; tc.Status != message.ToolFailed || tc.Error != "cancelled" {
		t.Errorf("running call should fail as cancelled, got %+v", tc)
	}

	// Late events of the cancelled turn are ignored.
	n := len(s.Messages)
	m.Apply(StreamEvent{Turn: turn, Event: message.Event{Type: message.EventTextDelta, Text: "late"}})
	if len(m.State().Messages) != n {
		t.Error("late delta was applied")
	}
}

func TestStaleTurnEventsIgnored(t *testing.T) {
	m := newTestMachine()
	m.Apply(Submit{Text: "first"})
	old := m.s.TurnID
	m.Apply(Submit{Text: "second"})

	m.Apply(StreamEvent{Turn: old, Event: message.Event{Type: message.EventTextDelta, Text: "stale"}})
	for _, msg := range m.State().Messages {
		if msg.Content == "stale" {
			t.Fatal("event from a superseded turn was applied")
		}
	}
}

func TestToolCallStatusIsMonotonic(t *testing.T) {
	m := executing(t)
	feed(m,
		call("w1", toolevent.ToolWriteFile, `{}`),
		result("w1", toolevent.ToolWriteFile, `{"path":"a.tsx"}`),
		message.Event{Type: message.EventToolResult, ToolCallID: "w1", ToolName: toolevent.ToolWriteFile, Result: json.RawMessage(`{"error":"late"}`), IsError: true},
		call("w1", toolevent.ToolWriteFile, `{}`),
	)
	var got []message.ToolCall
	for _, tc := range m.State().ToolCalls {
		if tc.ToolCallID == "w1" {
			got = append(got, tc)
		}
	}
	if len(got) != 1 || got[0].Status != message.ToolDone {
		t.Errorf("expected one done call, got %+v", got)
	}
}

func TestUIControlCallsFinishOnCall(t *testing.T) {
	m := executing(t)
	feed(m, call("t1", toolevent.ToolUpdateTodo, `{"id":"setup","status":"active"}`))

	s := m.State()
	tc := s.ToolCalls[len(s.ToolCalls)-1]
	if tc.Status != message.ToolDone {
		t.Errorf("ui-control call status = %s", tc.Status)
	}
	exec := ExecutionOf(s.Phase)
	if exec.Todos[0].Status != message.TodoActive || exec.Label != "Set up project" {
		t.Errorf("todo not applied: %+v", exec)
	}
}

func TestTodoStatusNeverRegresses(t *testing.T) {
	m := executing(t)
	feed(m,
		call("t1", toolevent.ToolUpdateTodo, `{"id":"setup","status":"done"}`),
		call("t2", toolevent.ToolUpdateTodo, `{"id":"setup","status":"active"}`),
		call("t3", toolevent.ToolUpdateTodo, `{"todos":[{"id":"setup","status":"pending"}]}`),
	)
	if got := ExecutionOf(m.Phase()).Todos[0].Status; got != message.TodoDone {
		t.Fatalf("setup = %s, want done", got)
	}

	// An explicit remove followed by an add resets it.
	feed(m,
		call("t4", toolevent.ToolUpdateTodo, `{"id":"setup","remove":true}`),
		call("t5", toolevent.ToolUpdateTodo, `{"id":"setup","label":"Set up again","status":"pending"}`),
	)
	todos := ExecutionOf(m.Phase()).Todos
	last := todos[len(todos)-1]
	if last.ID != "setup" || last.Status != message.TodoPending {
		t.Errorf("unexpected todo after remove+add: %+v", last)
	}
}

func TestToolFailureIsDiagnosedNotShown(t *testing.T) {
	m := executing(t)
	effects := feed(m, message.Event{
		Type:       message.EventToolResult,
		ToolCallID: "p1",
		ToolName:   toolevent.ToolStartPreview,
		Result:     json.RawMessage(`{"error":"EADDRINUSE: port 3000"}`),
		IsError:    true,
	})

	d, ok := findEffect[Diagnose](effects)
	if !ok || d.Detail != "EADDRINUSE: port 3000" || d.ToolCallID != "p1" {
		t.Fatalf("unexpected diagnose %+v", d)
	}
	s := m.State()
	tc := s.ToolCalls[len(s.ToolCalls)-1]
	if tc.Status != message.ToolFailed || tc.Error != toolevent.FriendlyStatus(toolevent.ToolStartPreview) {
		t.Errorf("user-facing error should be the friendly status, got %+v", tc)
	}
	if _, ok := s.Phase.(Executing); !ok {
		t.Error("a tool failure must not end the turn")
	}
}

func TestCodeGenFailureFromSummary(t *testing.T) {
	m := executing(t)
	effects := feed(m, result("g1", toolevent.ToolGenerateCode, `{"summary":"Failed to compile scene 2"}`))
	if _, ok := findEffect[Diagnose](effects); !ok {
		t.Error("expected Diagnose for failed code generation")
	}
	tc := m.State().ToolCalls[len(m.State().ToolCalls)-1]
	if tc.Status != message.ToolFailed {
		t.Errorf("status = %s", tc.Status)
	}
}

func TestSandboxIsSetOnce(t *testing.T) {
	m := executing(t)
	feed(m, result("c2", toolevent.ToolSandboxCreate, `{"sandboxId":"sb-2"}`))
	if got := m.State().SandboxID; got != "sb-1" {
		t.Errorf("sandbox = %q, want sb-1", got)
	}
}

func TestStreamErrorIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T) *Machine
		wantMode transport.Mode
		wantKind PhaseKind
	}{
		{"no plan", func(t *testing.T) *Machine {
			m := newTestMachine()
			m.Apply(Submit{Text: "make a logo spin"})
			return m
		}, transport.ModeAnalyze, PhaseExecuting},
		{"plan not accepted", func(t *testing.T) *Machine {
			m := planned(t)
			m.Apply(Submit{Text: "add a fourth scene"})
			return m
		}, "", PhasePlan},
		{"plan accepted", executing, transport.ModeRetry, PhaseExecuting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.setup(t)
			feed(m, call("x1", toolevent.ToolRunCommand, `{}`),
				message.Event{Type: message.EventError, Message: "stream request failed"})

			s := m.State()
			serr := s.Error()
			if serr == nil || !serr.CanRetry || serr.Code != CodeStream {
				t.Fatalf("unexpected error %+v", serr)
			}
			if s.Streaming {
				t.Error("streaming should stop")
			}
			for _, b := range s.Thinking {
				if b.IsOpen() {
					t.Error("thinking block left open")
				}
			}
			if tc := s.ToolCalls[len(s.ToolCalls)-1]; tc.Status != message.ToolFailed {
				t.Errorf("running call = %s", tc.Status)
			}

			effects := m.Apply(Retry{})
			if got := m.Phase().Kind(); got != tt.wantKind {
				t.Errorf("after retry phase = %s, want %s", got, tt.wantKind)
			}
			st, ok := findEffect[StartTurn](effects)
			if tt.wantMode == "" {
				if ok {
					t.Error("retry without an accepted plan should return to the plan")
				}
				return
			}
			if !ok || st.Request.Context.Mode != tt.wantMode {
				t.Errorf("unexpected retry turn %+v", st)
			}
		})
	}
}

func TestRetryWithoutPlan(t *testing.T) {
	m := newTestMachine()
	m.Apply(Submit{Text: "make a logo spin"})
	feed(m, message.Event{Type: message.EventError, Message: "stream request failed"})
	users := len(m.State().Messages)

	effects := m.Apply(Retry{})
	st, ok := findEffect[StartTurn](effects)
	if !ok || st.Request.Context.Mode != transport.ModeAnalyze {
		t.Fatalf("expected the last prompt to be analyzed again, got %+v", effects)
	}
	if !strings.Contains(st.Request.Prompt, "make a logo spin") {
		t.Errorf("retry prompt does not carry the last request: %q", st.Request.Prompt)
	}
	if got := len(m.State().Messages); got != users {
		t.Errorf("retry added messages: %d -> %d", users, got)
	}

	// Nothing to replay: back to idle.
	r := newTestMachine()
	r.Restore(State{NodeID: "node-1", Phase: Failed{Err: SessionError{Code: CodeStream, CanRetry: true}}})
	if effects := r.Apply(Retry{}); len(effects) != 0 || r.Phase().Kind() != PhaseIdle {
		t.Errorf("phase = %s, effects = %+v", r.Phase().Kind(), effects)
	}
}

func TestQuestionThenStyle(t *testing.T) {
	m := newTestMachine()
	m.Apply(Submit{Text: "animate my logo"})
	feed(m, result("a1", toolevent.ToolAnalyzePrompt,
		`{"needsClarification":true,"question":"Which style?","options":[{"label":"Neon"},"Minimal"]}`))

	q, ok := m.Phase().(Question)
	if !ok {
		t.Fatalf("phase = %T, want Question", m.Phase())
	}
	if q.Question != "Which style?" || len(q.Options) != 2 || q.Options[0] != "Neon" {
		t.Errorf("unexpected question %+v", q)
	}
	feed(m, complete())
	if _, ok := m.Phase().(Question); !ok {
		t.Fatal("question should survive the end of the turn")
	}

	effects := m.Apply(SelectStyle{Style: "Neon"})
	st, ok := findEffect[StartTurn](effects)
	if !ok || st.Request.Context.Style != "Neon" || st.Request.Context.Mode != transport.ModeAnalyze {
		t.Fatalf("unexpected turn %+v", st)
	}
	if m.State().LastPrompt != "animate my logo" {
		t.Error("answering a question must keep the original prompt")
	}
}

func TestQuestionTypedAnswer(t *testing.T) {
	m := newTestMachine()
	m.Apply(Submit{Text: "animate my logo"})
	feed(m, result("a1", toolevent.ToolAnalyzePrompt,
		`{"needsClarification":true,"question":"Which style?","options":["Neon","Minimal"]}`), complete())
	if _, ok := m.Phase().(Question); !ok {
		t.Fatalf("phase = %T, want Question", m.Phase())
	}

	effects := m.Apply(Submit{Text: "  hand-drawn  "})
	st, ok := findEffect[StartTurn](effects)
	if !ok || st.Request.Context.Style != "hand-drawn" || st.Request.Context.Mode != transport.ModeAnalyze {
		t.Fatalf("unexpected turn %+v", st)
	}
	s := m.State()
	if s.Style != "hand-drawn" || s.LastPrompt != "animate my logo" {
		t.Errorf("style = %q, last prompt = %q", s.Style, s.LastPrompt)
	}
	var sawPrompt bool
	for _, msg := range st.Request.Messages {
		if msg.Content == "animate my logo" {
			sawPrompt = true
		}
	}
	if !sawPrompt {
		t.Errorf("original request missing from history %+v", st.Request.Messages)
	}
	if last := s.Messages[len(s.Messages)-1]; last.Role != message.RoleUser || last.Content != "hand-drawn" {
		t.Errorf("answer not recorded: %+v", last)
	}
}

func TestAcceptPreview(t *testing.T) {
	t.Run("no sandbox completes immediately", func(t *testing.T) {
		m := planned(t)
		m.Apply(AcceptPlan{})
		feed(m, result("r1", toolevent.ToolRenderPreview, `{"videoUrl":"https://x/v1.mp4"}`), complete())
		if effects := m.Apply(AcceptPreview{}); len(effects) != 0 {
			t.Errorf("unexpected effects %+v", effects)
		}
		if c, ok := m.Phase().(Complete); !ok || c.VideoURL != "https://x/v1.mp4" {
			t.Errorf("phase = %#v", m.Phase())
		}
	})

	t.Run("finalize failure falls back to preview url", func(t *testing.T) {
		m := executing(t)
		feed(m, result("r1", toolevent.ToolRenderPreview, `{"videoUrl":"https://x/v1.mp4","filePath":"out/v1.mp4"}`), complete())
		effects := m.Apply(AcceptPreview{})
		f, ok := findEffect[Finalize](effects)
		if !ok || f.SandboxID != "sb-1" || f.FilePath != "out/v1.mp4" {
			t.Fatalf("unexpected finalize %+v", f)
		}
		if p, ok := m.Phase().(Preview); !ok || !p.Finalizing {
			t.Fatalf("phase = %#v", m.Phase())
		}
		if effects := m.Apply(Submit{Text: "wait"}); effects != nil {
			t.Error("input while finalizing should be ignored")
		}
		m.Apply(FinalizeDone{Err: errors.New("boom")})
		if c, ok := m.Phase().(Complete); !ok || c.VideoURL != "https://x/v1.mp4" {
			t.Errorf("phase = %#v", m.Phase())
		}
	})

	t.Run("finalize url wins", func(t *testing.T) {
		m := executing(t)
		feed(m, result("r1", toolevent.ToolRenderPreview, `{"videoUrl":"https://x/v1.mp4"}`), complete())
		m.Apply(AcceptPreview{})
		m.Apply(FinalizeDone{URL: "https://cdn/final.mp4"})
		if c, ok := m.Phase().(Complete); !ok || c.VideoURL != "https://cdn/final.mp4" {
			t.Errorf("phase = %#v", m.Phase())
		}
	})
}

func TestRegenerateReusesPlanAndSandbox(t *testing.T) {
	m := executing(t)
	feed(m, result("r1", toolevent.ToolRenderPreview, `{"videoUrl":"https://x/v1.mp4"}`), complete())

	effects := m.Apply(Regenerate{})
	st, ok := findEffect[StartTurn](effects)
	if !ok || st.Request.Context.Mode != transport.ModeRegen || st.Request.Context.SandboxID != "sb-1" {
		t.Fatalf("unexpected turn %+v", st)
	}
	s := m.State()
	if s.PreviewURL != "" || len(s.Versions) != 1 {
		t.Errorf("preview should clear but versions stay: %q %d", s.PreviewURL, len(s.Versions))
	}

	// A regenerate turn that renders nothing goes back to the last version.
	feed(m, complete())
	s = m.State()
	if _, ok := s.Phase.(Preview); !ok || s.PreviewURL != "https://x/v1.mp4" {
		t.Errorf("phase = %T, preview = %q", s.Phase, s.PreviewURL)
	}
}

func TestPersistDoneSwapsByVersionID(t *testing.T) {
	m := executing(t)
	feed(m,
		result("r1", toolevent.ToolRenderPreview, `{"videoUrl":"https://sb/v1.mp4","filePath":"v1.mp4"}`),
		result("r2", toolevent.ToolRenderPreview, `{"videoUrl":"https://sb/v2.mp4","filePath":"v2.mp4"}`),
	)
	s := m.State()
	v1, v2 := s.Versions[0].ID, s.Versions[1].ID

	// The newer hand-off finishes first.
	m.Apply(PersistDone{VersionID: v2, VideoURL: "https://store/v2.mp4"})
	m.Apply(PersistDone{VersionID: v1, VideoURL: "https://store/v1.mp4"})
	m.Apply(PersistDone{VersionID: v1, Err: errors.New("ignored")})

	s = m.State()
	if s.Versions[0].VideoURL != "https://store/v1.mp4" || s.Versions[1].VideoURL != "https://store/v2.mp4" {
		t.Errorf("unexpected versions %+v", s.Versions)
	}
	if s.PreviewURL != "https://store/v2.mp4" {
		t.Errorf("preview url = %q", s.PreviewURL)
	}
}

func TestSubmitAfterCompleteResets(t *testing.T) {
	m := executing(t)
	feed(m, result("r1", toolevent.ToolRenderPreview, `{"videoUrl":"https://x/v1.mp4"}`), complete())
	m.Apply(AcceptPreview{})
	m.Apply(FinalizeDone{URL: "https://cdn/final.mp4"})

	effects := m.Apply(Submit{Text: "now a bouncing ball"})
	if c, ok := findEffect[Cleanup](effects); !ok || c.SandboxID != "sb-1" {
		t.Errorf("expected sandbox cleanup, got %+v", effects)
	}
	st, ok := findEffect[StartTurn](effects)
	if !ok || st.Request.Context.Mode != transport.ModeAnalyze || st.Request.Context.SandboxID != "" {
		t.Errorf("expected a fresh analyze turn, got %+v", st)
	}
	s := m.State()
	if len(s.Versions) != 0 || s.Plan != nil || s.PlanAccepted || s.SandboxID != "" {
		t.Errorf("session not reset: %+v", s)
	}
	if len(s.Messages) != 1 || s.Messages[0].Content != "now a bouncing ball" {
		t.Errorf("unexpected messages %+v", s.Messages)
	}
}

func TestResetKeepsMediaAndClock(t *testing.T) {
	m := executing(t)
	m.Apply(AttachMedia{})
	seq := m.clock.Current()

	effects := m.Apply(Reset{})
	if _, ok := findEffect[AbortTurn](effects); !ok {
		t.Error("reset mid-stream should abort")
	}
	if _, ok := findEffect[Cleanup](effects); !ok {
		t.Error("reset should clean up the sandbox")
	}
	s := m.State()
	if _, ok := s.Phase.(Idle); !ok || len(s.Media) != 1 || s.NodeID != "node-1" {
		t.Errorf("unexpected state after reset %+v", s)
	}
	if m.clock.Current() < seq {
		t.Error("clock must not go backwards")
	}
}

func TestSequenceIsMonotonic(t *testing.T) {
	m := executing(t)
	feed(m,
		message.Event{Type: message.EventTextDelta, Text: "Writing scenes"},
		call("w1", toolevent.ToolWriteFile, `{}`),
		message.Event{Type: message.EventTextDelta, Text: "Rendering"},
		result("r1", toolevent.ToolRenderPreview, `{"videoUrl":"https://x/v1.mp4"}`),
	)
	s := m.State()

	var seqs []uint64
	for _, msg := range s.Messages {
		seqs = append(seqs, msg.Seq)
	}
	for _, tc := range s.ToolCalls {
		seqs = append(seqs, tc.Seq)
	}
	for _, b := range s.Thinking {
		seqs = append(seqs, b.Seq)
	}
	for _, v := range s.Versions {
		seqs = append(seqs, v.Seq)
	}
	seen := map[uint64]bool{}
	for _, q := range seqs {
		if seen[q] {
			t.Fatalf("seq %d handed out twice", q)
		}
		seen[q] = true
	}

	// Text after a tool call starts a new message.
	var texts []string
	for _, msg := range s.Messages {
		if msg.Role == message.RoleAssistant {
			texts = append(texts, msg.Content)
		}
	}
	if len(texts) != 2 {
		t.Errorf("assistant messages = %q", texts)
	}
}

func TestRestoreInterruptedExecution(t *testing.T) {
	m := executing(t)
	saved := m.State()
	data, err := json.Marshal(saved)
	if err != nil {
		t.Fatal(err)
	}
	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatal(err)
	}

	r := newTestMachine()
	r.Restore(loaded)
	s := r.State()
	serr := s.Error()
	if serr == nil || serr.Code != CodeInterrupted || !serr.CanRetry {
		t.Fatalf("expected interrupted error, got %#v", s.Phase)
	}
	if s.Streaming || s.Seq != saved.Seq {
		t.Errorf("streaming = %v, seq = %d want %d", s.Streaming, s.Seq, saved.Seq)
	}

	effects := r.Apply(Retry{})
	if st, ok := findEffect[StartTurn](effects); !ok || st.Request.Context.SandboxID != "sb-1" {
		t.Errorf("retry after restore should reuse the sandbox, got %+v", effects)
	}
}

func TestMediaInputs(t *testing.T) {
	m := newTestMachine()
	m.Apply(AttachMedia{Entry: media.Entry{Source: media.SourceUpload, Type: media.TypeImage, DataURL: "data:image/png;base64,AA=="}})
	m.Apply(SetMedia{Entries: append(m.State().Media, media.Entry{ID: "edge-entry", Source: media.SourceEdge, EdgeID: "e1"})})
	s := m.State()
	if len(s.Media) != 2 || s.Media[0].ID == "" {
		t.Fatalf("unexpected media %+v", s.Media)
	}

	effects := m.Apply(RemoveMedia{ID: "edge-entry"})
	if len(effects) != 0 {
		t.Error("edge entries follow the canvas and cannot be removed by hand")
	}
	effects = m.Apply(RemoveMedia{ID: s.Media[0].ID})
	if r, ok := findEffect[ReleaseMedia](effects); !ok || r.Entry.ID != s.Media[0].ID {
		t.Errorf("expected release of the upload, got %+v", effects)
	}

	effects = m.Apply(SetMedia{})
	if r, ok := findEffect[ReleaseMedia](effects); !ok || r.Entry.ID != "edge-entry" {
		t.Errorf("expected release of the dropped edge entry, got %+v", effects)
	}
	if len(m.State().Media) != 0 {
		t.Error("media should be empty")
	}
}

func TestBuildTodos(t *testing.T) {
	m := planned(t)
	todos := BuildTodos(m.State().Plan)
	want := []string{"setup", "scene-1", "scene-2", "scene-3", "render"}
	if len(todos) != len(want) {
		t.Fatalf("len = %d", len(todos))
	}
	for i, id := range want {
		if todos[i].ID != id {
			t.Errorf("todos[%d] = %s, want %s", i, todos[i].ID, id)
		}
	}
	if BuildTodos(nil) != nil {
		t.Error("nil plan has no todos")
	}
}

func TestIsAffirmative(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"yes", true},
		{"  YES!  ", true},
		{"y", true},
		{"ok.", true},
		{"Go ahead", true},
		{"looks  good", true},
		{"LGTM", true},
		{"👍", true},
		{"✅", true},
		{"approve", true},
		{"yes, but change the color", false},
		{"no", false},
		{"yesterday", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsAffirmative(tt.text); got != tt.want {
			t.Errorf("IsAffirmative(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
