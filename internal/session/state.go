package session

import (
	"encoding/json"
	"fmt"

	"github.com/yanmxa/genmotion/internal/media"
	"github.com/yanmxa/genmotion/internal/message"
	"github.com/yanmxa/genmotion/internal/plan"
)

// PreviewState tells whether the preview still reflects the latest request.
type PreviewState string

const (
	PreviewNone   PreviewState = ""
	PreviewActive PreviewState = "active"
	PreviewStale  PreviewState = "stale"
)

// Version is one rendered video. Versions are only ever appended.
type Version struct {
	ID           string  `json:"id"`
	VideoURL     string  `json:"videoUrl"`
	ThumbnailURL string  `json:"thumbnailUrl,omitempty"`
	FilePath     string  `json:"filePath,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	Final        bool    `json:"final,omitempty"`
	Persisted    bool    `json:"persisted,omitempty"`
	Seq          uint64  `json:"seq"`
	Timestamp    string  `json:"timestamp"`
}

// ThinkingBlock groups the agent's reasoning between tool calls. A block
// is open until EndedAt is stamped.
type ThinkingBlock struct {
	ID        string `json:"id"`
	Label     string `json:"label,omitempty"`
	Content   string `json:"content,omitempty"`
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"timestamp"`
	EndedAt   string `json:"endedAt,omitempty"`
}

// IsOpen reports whether the block still accepts reasoning.
func (b ThinkingBlock) IsOpen() bool { return b.EndedAt == "" }

// State is everything a session knows. Messages, ToolCalls, Thinking and
// Versions are append-only logs ordered by (Timestamp, Seq).
type State struct {
	NodeID string
	Phase  Phase

	Messages  []message.Message
	ToolCalls []message.ToolCall
	Thinking  []ThinkingBlock
	Versions  []Version

	Plan          *plan.Plan
	PlanSeq       uint64
	PlanTimestamp string
	PlanAccepted  bool
	// PlanDiff is the outline diff of the last revision, if any.
	PlanDiff string

	ActiveVersionID string
	PreviewURL      string
	PreviewState    PreviewState

	SandboxID string
	Media     []media.Entry
	Style     string
	Engine    string

	Streaming  bool
	TurnID     uint64
	LastPrompt string
	// Seq is the last clock value; restored sessions continue from it.
	Seq uint64

	// Per-turn bookkeeping, not persisted.
	activity     int
	turnText     bool
	streamMsgIdx int
}

// Error returns the failure of the session, if it is in the error phase.
func (s *State) Error() *SessionError {
	if f, ok := s.Phase.(Failed); ok {
		e := f.Err
		return &e
	}
	return nil
}

// ActiveVersion returns the version accept/regenerate apply to.
func (s *State) ActiveVersion() (Version, bool) {
	for i := len(s.Versions) - 1; i >= 0; i-- {
		if s.Versions[i].ID == s.ActiveVersionID {
			return s.Versions[i], true
		}
	}
	return Version{}, false
}

// Todos returns the todo list of the current or last execution.
func (s *State) Todos() []message.Todo {
	if exec := ExecutionOf(s.Phase); exec != nil {
		return exec.Todos
	}
	return nil
}

// Clone returns a deep copy that shares nothing mutable with s.
func (s State) Clone() State {
	c := s
	c.Phase = clonePhase(s.Phase)
	c.Messages = append([]message.Message(nil), s.Messages...)
	c.ToolCalls = append([]message.ToolCall(nil), s.ToolCalls...)
	c.Thinking = append([]ThinkingBlock(nil), s.Thinking...)
	c.Versions = append([]Version(nil), s.Versions...)
	c.Plan = s.Plan.Clone()
	c.Media = media.Clone(s.Media)
	return c
}

func clonePhase(p Phase) Phase {
	switch p := p.(type) {
	case Question:
		p.Options = append([]string(nil), p.Options...)
		return p
	case Executing:
		p.Execution = p.Execution.clone()
		return p
	case Preview:
		p.Execution = p.Execution.clone()
		return p
	case nil:
		return Idle{}
	}
	return p
}

// phaseJSON is the flat wire form of a Phase.
type phaseJSON struct {
	Kind       PhaseKind     `json:"kind"`
	Question   string        `json:"question,omitempty"`
	Options    []string      `json:"options,omitempty"`
	Purpose    Purpose       `json:"purpose,omitempty"`
	Execution  *Execution    `json:"execution,omitempty"`
	Finalizing bool          `json:"finalizing,omitempty"`
	VideoURL   string        `json:"videoUrl,omitempty"`
	Error      *SessionError `json:"error,omitempty"`
}

func encodePhase(p Phase) phaseJSON {
	switch p := p.(type) {
	case Question:
		return phaseJSON{Kind: PhaseQuestion, Question: p.Question, Options: p.Options}
	case PlanReview:
		return phaseJSON{Kind: PhasePlan}
	case Executing:
		return phaseJSON{Kind: PhaseExecuting, Purpose: p.Purpose, Execution: p.Execution}
	case Preview:
		return phaseJSON{Kind: PhasePreview, Execution: p.Execution, Finalizing: p.Finalizing}
	case Complete:
		return phaseJSON{Kind: PhaseComplete, VideoURL: p.VideoURL}
	case Failed:
		e := p.Err
		return phaseJSON{Kind: PhaseError, Error: &e}
	}
	return phaseJSON{Kind: PhaseIdle}
}

func decodePhase(j phaseJSON) (Phase, error) {
	switch j.Kind {
	case PhaseIdle, "":
		return Idle{}, nil
	case PhaseQuestion:
		return Question{Question: j.Question, Options: j.Options}, nil
	case PhasePlan:
		return PlanReview{}, nil
	case PhaseExecuting:
		return Executing{Purpose: j.Purpose, Execution: j.Execution}, nil
	case PhasePreview:
		return Preview{Execution: j.Execution, Finalizing: j.Finalizing}, nil
	case PhaseComplete:
		return Complete{VideoURL: j.VideoURL}, nil
	case PhaseError:
		var e SessionError
		if j.Error != nil {
			e = *j.Error
		}
		return Failed{Err: e}, nil
	}
	return nil, fmt.Errorf("unknown phase %q", j.Kind)
}

type stateJSON struct {
	NodeID          string             `json:"nodeId"`
	Phase           phaseJSON          `json:"phase"`
	Messages        []message.Message  `json:"messages,omitempty"`
	ToolCalls       []message.ToolCall `json:"toolCalls,omitempty"`
	Thinking        []ThinkingBlock    `json:"thinkingBlocks,omitempty"`
	Versions        []Version          `json:"versions,omitempty"`
	Plan            *plan.Plan         `json:"plan,omitempty"`
	PlanSeq         uint64             `json:"planSeq,omitempty"`
	PlanTimestamp   string             `json:"planTimestamp,omitempty"`
	PlanAccepted    bool               `json:"planAccepted,omitempty"`
	PlanDiff        string             `json:"planDiff,omitempty"`
	ActiveVersionID string             `json:"activeVersionId,omitempty"`
	PreviewURL      string             `json:"previewUrl,omitempty"`
	PreviewState    PreviewState       `json:"previewState,omitempty"`
	SandboxID       string             `json:"sandboxId,omitempty"`
	Media           []media.Entry      `json:"media,omitempty"`
	Style           string             `json:"style,omitempty"`
	Engine          string             `json:"engine,omitempty"`
	Streaming       bool               `json:"isStreaming,omitempty"`
	TurnID          uint64             `json:"turnId,omitempty"`
	LastPrompt      string             `json:"lastPrompt,omitempty"`
	Seq             uint64             `json:"seq"`
}

// MarshalJSON encodes the state with its phase flattened into a tagged record.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		NodeID:          s.NodeID,
		Phase:           encodePhase(s.Phase),
		Messages:        s.Messages,
		ToolCalls:       s.ToolCalls,
		Thinking:        s.Thinking,
		Versions:        s.Versions,
		Plan:            s.Plan,
		PlanSeq:         s.PlanSeq,
		PlanTimestamp:   s.PlanTimestamp,
		PlanAccepted:    s.PlanAccepted,
		PlanDiff:        s.PlanDiff,
		ActiveVersionID: s.ActiveVersionID,
		PreviewURL:      s.PreviewURL,
		PreviewState:    s.PreviewState,
		SandboxID:       s.SandboxID,
		Media:           s.Media,
		Style:           s.Style,
		Engine:          s.Engine,
		Streaming:       s.Streaming,
		TurnID:          s.TurnID,
		LastPrompt:      s.LastPrompt,
		Seq:             s.Seq,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *State) UnmarshalJSON(data []byte) error {
	var j stateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	phase, err := decodePhase(j.Phase)
	if err != nil {
		return err
	}
	*s = State{
		NodeID:          j.NodeID,
		Phase:           phase,
		Messages:        j.Messages,
		ToolCalls:       j.ToolCalls,
		Thinking:        j.Thinking,
		Versions:        j.Versions,
		Plan:            j.Plan,
		PlanSeq:         j.PlanSeq,
		PlanTimestamp:   j.PlanTimestamp,
		PlanAccepted:    j.PlanAccepted,
		PlanDiff:        j.PlanDiff,
		ActiveVersionID: j.ActiveVersionID,
		PreviewURL:      j.PreviewURL,
		PreviewState:    j.PreviewState,
		SandboxID:       j.SandboxID,
		Media:           j.Media,
		Style:           j.Style,
		Engine:          j.Engine,
		Streaming:       j.Streaming,
		TurnID:          j.TurnID,
		LastPrompt:      j.LastPrompt,
		Seq:             j.Seq,
		streamMsgIdx:    -1,
	}
	return nil
}
