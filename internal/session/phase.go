package session

import (
	"github.com/yanmxa/genmotion/internal/message"
)

// PhaseKind names a phase.
type PhaseKind string

const (
	PhaseIdle      PhaseKind = "idle"
	PhaseQuestion  PhaseKind = "question"
	PhasePlan      PhaseKind = "plan"
	PhaseExecuting PhaseKind = "executing"
	PhasePreview   PhaseKind = "preview"
	PhaseComplete  PhaseKind = "complete"
	PhaseError     PhaseKind = "error"
)

// Phase is the session's current mode. Exactly one is active; per-phase
// data only exists inside its phase value.
type Phase interface {
	Kind() PhaseKind
	phase()
}

// Idle waits for a first prompt.
type Idle struct{}

// Question waits for the user to answer a clarifying question.
type Question struct {
	Question string
	Options  []string
}

// PlanReview shows the plan for acceptance or revision.
type PlanReview struct{}

// Purpose is why a turn is running.
type Purpose string

const (
	PurposeAnalyze    Purpose = "analyze"
	PurposeRevise     Purpose = "revise"
	PurposeExecute    Purpose = "execute"
	PurposeRetry      Purpose = "retry"
	PurposeRegenerate Purpose = "regenerate"
)

// Executing runs an agent turn.
type Executing struct {
	Purpose   Purpose
	Execution *Execution
}

// Preview shows the latest rendered version.
type Preview struct {
	// Execution is the residual progress of the run that produced the preview.
	Execution *Execution
	// Finalizing is set while the accepted preview is being finalized.
	Finalizing bool
}

// Complete is the end of a generation pass.
type Complete struct {
	VideoURL string
}

// Failed records a turn-level failure the user can retry.
type Failed struct {
	Err SessionError
}

func (Idle) Kind() PhaseKind       { return PhaseIdle }
func (Question) Kind() PhaseKind   { return PhaseQuestion }
func (PlanReview) Kind() PhaseKind { return PhasePlan }
func (Executing) Kind() PhaseKind  { return PhaseExecuting }
func (Preview) Kind() PhaseKind    { return PhasePreview }
func (Complete) Kind() PhaseKind   { return PhaseComplete }
func (Failed) Kind() PhaseKind     { return PhaseError }

func (Idle) phase()       {}
func (Question) phase()   {}
func (PlanReview) phase() {}
func (Executing) phase()  {}
func (Preview) phase()    {}
func (Complete) phase()   {}
func (Failed) phase()     {}

// Execution is the transient progress of a run.
type Execution struct {
	Todos       []message.Todo `json:"todos,omitempty"`
	Label       string         `json:"label,omitempty"`
	Files       []string       `json:"files,omitempty"`
	LivePreview string         `json:"livePreview,omitempty"`
}

func (e *Execution) clone() *Execution {
	if e == nil {
		return nil
	}
	c := *e
	c.Todos = append([]message.Todo(nil), e.Todos...)
	c.Files = append([]string(nil), e.Files...)
	return &c
}

// SessionError is a failure shown to the user.
type SessionError struct {
	Message  string `json:"message"`
	Code     string `json:"code"`
	CanRetry bool   `json:"canRetry"`
}

// Error codes.
const (
	CodeStream      = "stream_error"
	CodeInterrupted = "interrupted"
)

// ExecutionOf returns the execution carried by p, if any.
func ExecutionOf(p Phase) *Execution {
	switch p := p.(type) {
	case Executing:
		return p.Execution
	case Preview:
		return p.Execution
	}
	return nil
}

// Placeholder is the input hint shown for a phase.
func Placeholder(p Phase, planAccepted bool) string {
	switch p.(type) {
	case Idle:
		return "Describe the animation you want…"
	case Question:
		return "Pick an option or type your answer…"
	case PlanReview:
		if planAccepted {
			return "Tell the agent what to change…"
		}
		return "Type \"yes\" to start, or describe changes…"
	case Executing:
		return "Send feedback to the agent…"
	case Preview:
		return "Accept, regenerate, or describe changes…"
	case Complete:
		return "Start a new animation…"
	case Failed:
		return "Retry, or send a new message…"
	}
	return ""
}
