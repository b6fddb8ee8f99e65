package session

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanmxa/genmotion/internal/log"
	"github.com/yanmxa/genmotion/internal/media"
	"github.com/yanmxa/genmotion/internal/message"
	"github.com/yanmxa/genmotion/internal/plan"
	"github.com/yanmxa/genmotion/internal/prompt"
	"github.com/yanmxa/genmotion/internal/toolevent"
	"github.com/yanmxa/genmotion/internal/transport"
)

// Todo ids that bracket the per-scene todos.
const (
	TodoSetup  = "setup"
	TodoRender = "render"
)

const retryNote = "The previous attempt stopped before it finished. Continue from where it stopped."

// BuildTodos returns the execution todo list for p: setup, one todo per
// scene, then post-processing and render.
func BuildTodos(p *plan.Plan) []message.Todo {
	if p == nil {
		return nil
	}
	todos := make([]message.Todo, 0, len(p.Scenes)+2)
	todos = append(todos, message.Todo{ID: TodoSetup, Label: "Set up project", Status: message.TodoPending})
	for i, sc := range p.Scenes {
		todos = append(todos, message.Todo{
			ID:     fmt.Sprintf("scene-%d", i+1),
			Label:  fmt.Sprintf("Scene %d: %s", i+1, sc.Title),
			Status: message.TodoPending,
		})
	}
	todos = append(todos, message.Todo{ID: TodoRender, Label: "Post-process & render", Status: message.TodoPending})
	return todos
}

// Machine is the session transition function: Apply folds one input into
// the state and returns the effects the caller must run. It does no I/O
// and is not safe for concurrent use.
type Machine struct {
	s     State
	clock *Clock
	newID func() string
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock sets the sequence clock.
func WithClock(c *Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithIDFunc sets the id generator for messages, blocks and versions.
func WithIDFunc(f func() string) Option {
	return func(m *Machine) { m.newID = f }
}

// NewMachine creates an idle session bound to nodeID.
func NewMachine(nodeID string, opts ...Option) *Machine {
	m := &Machine{clock: NewClock(nil), newID: uuid.NewString}
	for _, opt := range opts {
		opt(m)
	}
	m.s = State{NodeID: nodeID, Phase: Idle{}, streamMsgIdx: -1}
	return m
}

// State returns a deep copy of the current state.
func (m *Machine) State() State {
	s := m.s.Clone()
	s.Seq = m.clock.Current()
	return s
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.s.Phase }

// Restore loads a persisted state. A turn cannot survive a restart, so a
// session saved mid-execution comes back as a retryable failure.
func (m *Machine) Restore(s State) {
	m.s = s.Clone()
	m.s.streamMsgIdx = -1
	m.s.activity = 0
	m.s.turnText = false
	if m.s.Phase == nil {
		m.s.Phase = Idle{}
	}
	if m.s.Seq > m.clock.Current() {
		m.clock.Reset(m.s.Seq)
	}
	if m.s.Streaming {
		m.endTurn("interrupted")
		if _, ok := m.s.Phase.(Executing); ok {
			m.s.Phase = Failed{Err: SessionError{
				Message:  "The previous run was interrupted.",
				Code:     CodeInterrupted,
				CanRetry: true,
			}}
		}
	} else {
		m.closeThinking()
	}
	if p, ok := m.s.Phase.(Preview); ok {
		p.Finalizing = false
		m.s.Phase = p
	}
}

// Apply folds in into the state.
func (m *Machine) Apply(in Input) []Effect {
	switch in := in.(type) {
	case Submit:
		return m.submit(in.Text)
	case SelectStyle:
		return m.selectStyle(in.Style)
	case AcceptPlan:
		if _, ok := m.s.Phase.(PlanReview); !ok {
			return nil
		}
		return m.acceptPlan()
	case AcceptPreview:
		return m.acceptPreview()
	case Regenerate:
		return m.regenerate()
	case Retry:
		return m.retry()
	case Cancel:
		return m.cancel()
	case Reset:
		return m.reset()
	case StreamEvent:
		return m.streamEvent(in)
	case FinalizeDone:
		m.finalizeDone(in)
	case PersistDone:
		m.persistDone(in)
	case AttachMedia:
		m.attachMedia(in.Entry)
	case RemoveMedia:
		return m.removeMedia(in.ID)
	case SetMedia:
		return m.setMedia(in.Entries)
	}
	return nil
}

func (m *Machine) submit(text string) []Effect {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if p, ok := m.s.Phase.(Preview); ok && p.Finalizing {
		return nil
	}
	if _, ok := m.s.Phase.(Question); ok {
		return m.selectStyle(text)
	}

	var effects []Effect
	if _, ok := m.s.Phase.(Complete); ok {
		effects = m.reset()
	}
	if m.s.PreviewURL != "" {
		m.s.PreviewState = PreviewStale
	}
	m.s.LastPrompt = text
	m.addMessage(message.RoleUser, text, false)
	return append(effects, m.followUp(text)...)
}

// followUp routes user text by how far the plan has come: before a plan it
// is analyzed, against an open plan it accepts or revises, and after
// acceptance it is feedback for a retry. Accepted plans are never re-planned.
func (m *Machine) followUp(text string) []Effect {
	switch {
	case m.s.PlanAccepted:
		return m.startTurn(PurposeRetry, text)
	case m.s.Plan != nil:
		if IsAffirmative(text) {
			return m.acceptPlan()
		}
		return m.startTurn(PurposeRevise, text)
	default:
		return m.startTurn(PurposeAnalyze, text)
	}
}

func (m *Machine) selectStyle(style string) []Effect {
	style = strings.TrimSpace(style)
	if style == "" {
		return nil
	}
	m.s.Style = style
	if _, ok := m.s.Phase.(Question); !ok {
		return nil
	}
	m.addMessage(message.RoleUser, style, false)
	return m.startTurn(PurposeAnalyze, m.s.LastPrompt)
}

func (m *Machine) acceptPlan() []Effect {
	if m.s.Plan == nil || m.s.PlanAccepted {
		return nil
	}
	m.s.PlanAccepted = true
	effects := []Effect{SavePlan{Plan: m.s.Plan.Clone(), Task: m.s.LastPrompt}}
	return append(effects, m.startTurn(PurposeExecute, "")...)
}

func (m *Machine) acceptPreview() []Effect {
	p, ok := m.s.Phase.(Preview)
	if !ok || p.Finalizing {
		return nil
	}
	var effects []Effect
	if m.s.Streaming {
		m.endTurn("cancelled")
		effects = append(effects, AbortTurn{})
	}
	if m.s.SandboxID == "" {
		m.s.Phase = Complete{VideoURL: m.s.PreviewURL}
		return effects
	}
	p.Finalizing = true
	m.s.Phase = p
	v, _ := m.s.ActiveVersion()
	return append(effects, Finalize{SandboxID: m.s.SandboxID, FilePath: v.FilePath})
}

func (m *Machine) finalizeDone(in FinalizeDone) {
	p, ok := m.s.Phase.(Preview)
	if !ok || !p.Finalizing {
		return
	}
	url := in.URL
	if in.Err != nil || url == "" {
		url = m.s.PreviewURL
	}
	m.s.Phase = Complete{VideoURL: url}
}

func (m *Machine) regenerate() []Effect {
	p, ok := m.s.Phase.(Preview)
	if !ok || p.Finalizing || m.s.Plan == nil {
		return nil
	}
	m.s.PreviewURL = ""
	m.s.PreviewState = PreviewNone
	m.s.ActiveVersionID = ""
	return m.startTurn(PurposeRegenerate, "")
}

func (m *Machine) retry() []Effect {
	switch p := m.s.Phase.(type) {
	case Failed:
		if !p.Err.CanRetry {
			return nil
		}
	case Executing:
		if m.s.Streaming {
			return nil
		}
	default:
		return nil
	}

	switch {
	case m.s.PlanAccepted:
		return m.startTurn(PurposeRetry, retryNote)
	case m.s.Plan != nil:
		m.s.Phase = PlanReview{}
		return nil
	case m.s.LastPrompt != "":
		return m.startTurn(PurposeAnalyze, m.s.LastPrompt)
	}
	m.s.Phase = Idle{}
	return nil
}

func (m *Machine) cancel() []Effect {
	if !m.s.Streaming {
		return nil
	}
	m.endTurn("cancelled")
	if p, ok := m.s.Phase.(Executing); ok {
		switch {
		case m.s.PreviewURL != "":
			m.s.Phase = Preview{Execution: p.Execution}
		case m.s.Plan != nil:
			m.s.Phase = PlanReview{}
		default:
			m.s.Phase = Idle{}
		}
	}
	return []Effect{AbortTurn{}}
}

func (m *Machine) reset() []Effect {
	var effects []Effect
	if m.s.Streaming {
		effects = append(effects, AbortTurn{})
	}
	if m.s.SandboxID != "" {
		effects = append(effects, Cleanup{SandboxID: m.s.SandboxID})
	}
	m.s = State{
		NodeID:       m.s.NodeID,
		Phase:        Idle{},
		Media:        m.s.Media,
		Style:        m.s.Style,
		Engine:       m.s.Engine,
		TurnID:       m.s.TurnID,
		streamMsgIdx: -1,
	}
	return effects
}

// startTurn moves to executing and asks for a stream. A turn still in
// flight is aborted first.
func (m *Machine) startTurn(purpose Purpose, text string) []Effect {
	var effects []Effect
	if m.s.Streaming {
		m.endTurn("superseded")
		effects = append(effects, AbortTurn{})
	}
	from := m.s.Phase.Kind()

	exec := &Execution{Label: turnLabel(purpose)}
	switch purpose {
	case PurposeExecute, PurposeRegenerate:
		exec.Todos = BuildTodos(m.s.Plan)
	case PurposeRetry:
		if prev := ExecutionOf(m.s.Phase); prev != nil {
			c := prev.clone()
			c.Label = exec.Label
			exec = c
		} else {
			exec.Todos = BuildTodos(m.s.Plan)
		}
	}

	m.s.TurnID++
	m.s.Streaming = true
	m.s.activity = 0
	m.s.turnText = false
	m.s.streamMsgIdx = -1
	m.openThinking(exec.Label)
	m.s.Phase = Executing{Purpose: purpose, Execution: exec}

	return append(effects, StartTurn{Turn: m.s.TurnID, Request: m.request(from, purpose, text, exec.Todos)})
}

func turnLabel(p Purpose) string {
	switch p {
	case PurposeAnalyze:
		return "Analyzing your request"
	case PurposeRevise:
		return "Revising the plan"
	case PurposeExecute:
		return "Setting up"
	case PurposeRetry:
		return "Looking into it"
	case PurposeRegenerate:
		return "Rendering a new version"
	}
	return ""
}

func (m *Machine) request(from PhaseKind, purpose Purpose, text string, todos []message.Todo) transport.Request {
	data := prompt.Data{
		Prompt:    text,
		Style:     m.s.Style,
		SandboxID: m.s.SandboxID,
		Plan:      m.s.Plan,
		Todos:     todos,
	}
	var (
		instruction string
		mode        transport.Mode
	)
	switch purpose {
	case PurposeRevise:
		instruction, mode = prompt.Revise(data), transport.ModeRevise
	case PurposeExecute:
		instruction, mode = prompt.Execute(data), transport.ModeExecute
	case PurposeRetry:
		instruction, mode = prompt.Retry(data), transport.ModeRetry
	case PurposeRegenerate:
		instruction, mode = prompt.Regenerate(data), transport.ModeRegen
	default:
		instruction, mode = prompt.Analyze(data), transport.ModeAnalyze
	}
	return transport.Request{
		Prompt:   instruction,
		Messages: message.History(m.s.Messages),
		Context: transport.TurnContext{
			NodeID:       m.s.NodeID,
			Phase:        string(from),
			Mode:         mode,
			Plan:         m.s.Plan.Clone(),
			PlanAccepted: m.s.PlanAccepted,
			SandboxID:    m.s.SandboxID,
			Media:        media.Clone(m.s.Media),
			Engine:       m.s.Engine,
			Style:        m.s.Style,
			Todos:        append([]message.Todo(nil), todos...),
		},
	}
}

// endTurn closes the turn's thinking block and fails any tool call still
// running, since its result can no longer arrive.
func (m *Machine) endTurn(reason string) {
	m.closeThinking()
	for i := range m.s.ToolCalls {
		m.s.ToolCalls[i].Finish(nil, reason, true)
	}
	m.s.Streaming = false
	m.s.streamMsgIdx = -1
}

func (m *Machine) streamEvent(in StreamEvent) []Effect {
	if in.Turn != m.s.TurnID || !m.s.Streaming {
		return nil
	}
	ev := in.Event
	switch ev.Type {
	case message.EventTextDelta:
		m.appendText(ev.Text)
	case message.EventReasoningDelta:
		m.appendReasoning(ev.Text)
	case message.EventToolCall:
		return m.toolCall(ev)
	case message.EventToolResult:
		return m.toolResult(ev)
	case message.EventComplete:
		m.complete(ev)
	case message.EventError:
		m.fail(ev.Message)
	}
	return nil
}

func (m *Machine) appendText(text string) {
	if text == "" {
		return
	}
	m.s.turnText = true
	if m.s.streamMsgIdx < 0 {
		m.addMessage(message.RoleAssistant, text, false)
		m.s.streamMsgIdx = len(m.s.Messages) - 1
		return
	}
	m.s.Messages[m.s.streamMsgIdx].Content += text
}

func (m *Machine) appendReasoning(text string) {
	if text == "" {
		return
	}
	b := m.openBlock()
	if b == nil {
		m.openThinking("")
		b = m.openBlock()
	}
	b.Content += text
}

func (m *Machine) toolCall(ev message.Event) []Effect {
	m.s.activity++
	m.s.streamMsgIdx = -1
	m.closeThinking()
	if ev.ToolCallID != "" && m.findCall(ev.ToolCallID) >= 0 {
		return nil
	}
	id := ev.ToolCallID
	if id == "" {
		id = m.newID()
	}
	seq, ts := m.clock.Stamp()
	tc := message.ToolCall{
		ToolCallID: id,
		ToolName:   ev.ToolName,
		Status:     message.ToolRunning,
		Args:       ev.Args,
		Seq:        seq,
		Timestamp:  ts,
	}

	if !toolevent.IsUIControl(ev.ToolName) {
		m.s.ToolCalls = append(m.s.ToolCalls, tc)
		if exec := ExecutionOf(m.s.Phase); exec != nil {
			exec.Label = toolevent.RunningLabel(ev.ToolName)
		}
		return nil
	}

	// UI-control calls are complete as soon as they are made.
	tc.Finish(nil, "", false)
	m.s.ToolCalls = append(m.s.ToolCalls, tc)
	if app, ok := toolevent.FromCall(ev.ToolName, ev.Args); ok {
		return m.applyEvent(app, id)
	}
	return nil
}

func (m *Machine) toolResult(ev message.Event) []Effect {
	m.s.activity++
	m.s.streamMsgIdx = -1

	i := m.findCall(ev.ToolCallID)
	if i < 0 {
		seq, ts := m.clock.Stamp()
		id := ev.ToolCallID
		if id == "" {
			id = m.newID()
		}
		m.s.ToolCalls = append(m.s.ToolCalls, message.ToolCall{
			ToolCallID: id,
			ToolName:   ev.ToolName,
			Status:     message.ToolRunning,
			Seq:        seq,
			Timestamp:  ts,
		})
		i = len(m.s.ToolCalls) - 1
	}
	tc := &m.s.ToolCalls[i]
	if tc.ToolName == "" {
		tc.ToolName = ev.ToolName
	}
	name, id := tc.ToolName, tc.ToolCallID

	if toolevent.IsUIControl(name) {
		tc.Finish(ev.Result, "", ev.IsError)
		return nil
	}

	app, ok := toolevent.FromResult(name, ev.Result, ev.IsError)
	failed, errText := ev.IsError, ""
	switch a := app.(type) {
	case toolevent.ToolFailed:
		failed, errText = true, a.Status
	case toolevent.CodeGenerated:
		failed = failed || a.Failed
	}
	if failed && errText == "" {
		errText = toolevent.FriendlyStatus(name)
	}
	if !tc.Finish(ev.Result, errText, failed) {
		// Duplicate result for a call that already finished.
		return nil
	}
	if !ok {
		if failed {
			return []Effect{Diagnose{Tool: name, ToolCallID: id, Detail: string(ev.Result)}}
		}
		return nil
	}
	return m.applyEvent(app, id)
}

func (m *Machine) applyEvent(ev toolevent.Event, toolCallID string) []Effect {
	exec := ExecutionOf(m.s.Phase)
	switch e := ev.(type) {
	case toolevent.TodoUpdated:
		if exec != nil {
			updateTodos(exec, e)
		}
	case toolevent.ThinkingSet:
		if b := m.openBlock(); b != nil {
			b.Label = e.Label
		} else {
			m.openThinking(e.Label)
		}
		if exec != nil {
			exec.Label = e.Label
		}
	case toolevent.MessageAdded:
		m.addMessage(message.RoleAssistant, e.Content, false)
	case toolevent.ApprovalRequested:
		if e.Message != "" {
			m.addMessage(message.RoleAssistant, e.Message, false)
		}
	case toolevent.QuestionAsked:
		if m.s.PlanAccepted {
			return nil
		}
		if e.Question != "" {
			m.addMessage(message.RoleAssistant, e.Question, false)
		}
		m.s.Phase = Question{Question: e.Question, Options: e.Options}
	case toolevent.PlanGenerated:
		m.planGenerated(e.Plan)
	case toolevent.SandboxCreated:
		// One sandbox per session; later creates never replace it.
		if m.s.SandboxID == "" {
			m.s.SandboxID = e.SandboxID
		}
	case toolevent.FileWritten:
		if exec != nil && e.Path != "" {
			exec.Files = appendUnique(exec.Files, e.Path)
		}
	case toolevent.PreviewReady:
		if exec != nil {
			exec.LivePreview = e.URL
		}
	case toolevent.RenderComplete:
		return m.renderComplete(e)
	case toolevent.CodeGenerated:
		if exec != nil {
			for _, f := range e.Files {
				exec.Files = appendUnique(exec.Files, f)
			}
		}
		if e.Failed {
			if exec != nil {
				exec.Label = toolevent.FriendlyStatus(toolevent.ToolGenerateCode)
			}
			return []Effect{Diagnose{Tool: toolevent.ToolGenerateCode, ToolCallID: toolCallID, Detail: e.Summary}}
		}
	case toolevent.ToolFailed:
		if exec != nil {
			exec.Label = e.Status
		}
		return []Effect{Diagnose{Tool: e.Tool, ToolCallID: toolCallID, Detail: e.Detail}}
	}
	return nil
}

func updateTodos(exec *Execution, e toolevent.TodoUpdated) {
	if e.Todos != nil {
		for _, t := range e.Todos {
			upsertTodo(exec, t.ID, t.Label, t.Status)
		}
		return
	}
	if e.Remove {
		for i, t := range exec.Todos {
			if t.ID == e.ID {
				exec.Todos = append(exec.Todos[:i:i], exec.Todos[i+1:]...)
				return
			}
		}
		return
	}
	upsertTodo(exec, e.ID, e.Label, e.Status)
}

// upsertTodo adds a todo or advances an existing one. Status never moves
// backwards; only remove followed by add resets a todo.
func upsertTodo(exec *Execution, id, label string, status message.TodoStatus) {
	for i := range exec.Todos {
		t := &exec.Todos[i]
		if t.ID != id {
			continue
		}
		if label != "" {
			t.Label = label
		}
		if t.Advance(status) && status == message.TodoActive {
			exec.Label = t.Label
		}
		return
	}
	if label == "" {
		label = id
	}
	exec.Todos = append(exec.Todos, message.Todo{ID: id, Label: label, Status: status})
	if status == message.TodoActive {
		exec.Label = label
	}
}

func (m *Machine) planGenerated(p *plan.Plan) {
	if p == nil || m.s.PlanAccepted {
		return
	}
	m.s.PlanDiff = ""
	if m.s.Plan != nil {
		m.s.PlanDiff = plan.Diff(m.s.Plan, p)
	}
	m.s.Plan = p
	m.s.PlanSeq, m.s.PlanTimestamp = m.clock.Stamp()
	m.s.Phase = PlanReview{}
}

func (m *Machine) renderComplete(e toolevent.RenderComplete) []Effect {
	var exec *Execution
	switch p := m.s.Phase.(type) {
	case Executing:
		exec = p.Execution
	case Preview:
		exec = p.Execution
	default:
		return nil
	}

	seq, ts := m.clock.Stamp()
	v := Version{
		ID:           m.newID(),
		VideoURL:     e.VideoURL,
		ThumbnailURL: e.ThumbnailURL,
		FilePath:     e.FilePath,
		Duration:     e.Duration,
		Final:        e.Final,
		Seq:          seq,
		Timestamp:    ts,
	}
	m.s.Versions = append(m.s.Versions, v)
	m.s.ActiveVersionID = v.ID
	m.s.PreviewURL = v.VideoURL
	m.s.PreviewState = PreviewActive
	if exec != nil {
		upsertTodo(exec, TodoRender, "", message.TodoDone)
	}
	m.s.Phase = Preview{Execution: exec}

	if m.s.SandboxID == "" || v.FilePath == "" {
		return nil
	}
	return []Effect{Persist{VersionID: v.ID, SandboxID: m.s.SandboxID, FilePath: v.FilePath}}
}

func (m *Machine) complete(ev message.Event) {
	if ev.Text != "" && !m.s.turnText {
		m.addMessage(message.RoleAssistant, ev.Text, false)
	}
	activity := m.s.activity
	m.endTurn("did not finish")

	if p, ok := m.s.Phase.(Executing); ok {
		switch p.Purpose {
		case PurposeAnalyze, PurposeRevise:
			switch {
			case m.s.Plan != nil:
				m.s.Phase = PlanReview{}
			case activity == 0 && p.Purpose == PurposeAnalyze:
				m.useFallbackPlan()
			default:
				m.s.Phase = Idle{}
			}
		default:
			if n := len(m.s.Versions); n > 0 {
				last := m.s.Versions[n-1]
				if m.s.ActiveVersionID == "" {
					m.s.ActiveVersionID = last.ID
					m.s.PreviewURL = last.VideoURL
					m.s.PreviewState = PreviewActive
				}
				m.s.Phase = Preview{Execution: p.Execution}
			}
		}
	}

	switch m.s.Phase.(type) {
	case PlanReview, Question, Executing:
		m.addMessage(message.RoleSystem, message.WaitingForInput, true)
	}
}

// useFallbackPlan covers an analysis turn that produced no tool call at
// all. The plan is marked so the UI and logs can tell it apart.
func (m *Machine) useFallbackPlan() {
	log.Logger().Warn("analysis ended without tool calls, using fallback plan",
		zap.String("node", m.s.NodeID),
		zap.Uint64("turn", m.s.TurnID))
	m.s.Plan = plan.Fallback(m.s.LastPrompt)
	m.s.PlanDiff = ""
	m.s.PlanSeq, m.s.PlanTimestamp = m.clock.Stamp()
	m.s.Phase = PlanReview{}
}

func (m *Machine) fail(msg string) {
	m.endTurn("interrupted")
	if msg == "" {
		msg = "The connection to the agent was lost."
	}
	m.s.Phase = Failed{Err: SessionError{Message: msg, Code: CodeStream, CanRetry: true}}
}

// persistDone swaps a version's url by id. Hand-offs can finish in any
// order, so the target is looked up rather than assumed to be the latest.
func (m *Machine) persistDone(in PersistDone) {
	if in.Err != nil || in.VideoURL == "" {
		return
	}
	for i := range m.s.Versions {
		v := &m.s.Versions[i]
		if v.ID != in.VersionID {
			continue
		}
		old := v.VideoURL
		v.VideoURL = in.VideoURL
		if in.ThumbnailURL != "" {
			v.ThumbnailURL = in.ThumbnailURL
		}
		v.Persisted = true
		if m.s.PreviewURL == old {
			m.s.PreviewURL = in.VideoURL
		}
		if c, ok := m.s.Phase.(Complete); ok && c.VideoURL == old {
			m.s.Phase = Complete{VideoURL: in.VideoURL}
		}
		return
	}
}

func (m *Machine) attachMedia(e media.Entry) {
	if e.ID == "" {
		e.ID = m.newID()
	}
	for i := range m.s.Media {
		if m.s.Media[i].ID == e.ID {
			m.s.Media[i] = e
			return
		}
	}
	m.s.Media = append(m.s.Media, e)
}

func (m *Machine) removeMedia(id string) []Effect {
	var removed media.Entry
	for _, e := range m.s.Media {
		if e.ID == id {
			removed = e
		}
	}
	entries, ok := media.Remove(m.s.Media, id)
	if !ok {
		return nil
	}
	m.s.Media = entries
	return []Effect{ReleaseMedia{Entry: removed}}
}

func (m *Machine) setMedia(entries []media.Entry) []Effect {
	keep := make(map[string]bool, len(entries))
	for _, e := range entries {
		keep[e.ID] = true
	}
	var effects []Effect
	for _, e := range m.s.Media {
		if !keep[e.ID] {
			effects = append(effects, ReleaseMedia{Entry: e})
		}
	}
	m.s.Media = media.Clone(entries)
	return effects
}

func (m *Machine) addMessage(role message.Role, content string, internal bool) {
	seq, ts := m.clock.Stamp()
	m.s.Messages = append(m.s.Messages, message.Message{
		ID:        m.newID(),
		Role:      role,
		Content:   content,
		Seq:       seq,
		Timestamp: ts,
		Internal:  internal,
	})
}

func (m *Machine) openThinking(label string) {
	m.closeThinking()
	seq, ts := m.clock.Stamp()
	m.s.Thinking = append(m.s.Thinking, ThinkingBlock{
		ID:        m.newID(),
		Label:     label,
		Seq:       seq,
		Timestamp: ts,
	})
}

func (m *Machine) openBlock() *ThinkingBlock {
	for i := len(m.s.Thinking) - 1; i >= 0; i-- {
		if m.s.Thinking[i].IsOpen() {
			return &m.s.Thinking[i]
		}
	}
	return nil
}

func (m *Machine) closeThinking() {
	var now string
	for i := range m.s.Thinking {
		if !m.s.Thinking[i].IsOpen() {
			continue
		}
		if now == "" {
			now = m.clock.Now()
		}
		m.s.Thinking[i].EndedAt = now
	}
}

func (m *Machine) findCall(id string) int {
	if id == "" {
		return -1
	}
	for i := len(m.s.ToolCalls) - 1; i >= 0; i-- {
		if m.s.ToolCalls[i].ToolCallID == id {
			return i
		}
	}
	return -1
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
