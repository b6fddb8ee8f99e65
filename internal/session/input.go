package session

import (
	"github.com/yanmxa/genmotion/internal/media"
	"github.com/yanmxa/genmotion/internal/message"
	"github.com/yanmxa/genmotion/internal/plan"
	"github.com/yanmxa/genmotion/internal/transport"
)

// Input is something that happened to the session: a user action, a stream
// event or the completion of background work.
type Input interface {
	input()
}

// Submit is free text typed by the user.
type Submit struct{ Text string }

// SelectStyle picks a style, answering a clarifying question when one is open.
type SelectStyle struct{ Style string }

// AcceptPlan approves the proposed plan.
type AcceptPlan struct{}

// AcceptPreview approves the active version and finalizes it.
type AcceptPreview struct{}

// Regenerate re-runs every step of the accepted plan.
type Regenerate struct{}

// Retry replays from the last stable phase after a failure.
type Retry struct{}

// Cancel stops the running turn.
type Cancel struct{}

// Reset starts the session over.
type Reset struct{}

// StreamEvent is one event of turn Turn.
type StreamEvent struct {
	Turn  uint64
	Event message.Event
}

// FinalizeDone reports the finalize action. URL is empty on failure.
type FinalizeDone struct {
	URL string
	Err error
}

// PersistDone reports a durable-storage hand-off for one version.
type PersistDone struct {
	VersionID    string
	VideoURL     string
	ThumbnailURL string
	Err          error
}

// AttachMedia adds a user upload.
type AttachMedia struct{ Entry media.Entry }

// RemoveMedia removes a user upload.
type RemoveMedia struct{ ID string }

// SetMedia replaces the media list after edge reconciliation.
type SetMedia struct{ Entries []media.Entry }

func (Submit) input()        {}
func (SelectStyle) input()   {}
func (AcceptPlan) input()    {}
func (AcceptPreview) input() {}
func (Regenerate) input()    {}
func (Retry) input()         {}
func (Cancel) input()        {}
func (Reset) input()         {}
func (StreamEvent) input()   {}
func (FinalizeDone) input()  {}
func (PersistDone) input()   {}
func (AttachMedia) input()   {}
func (RemoveMedia) input()   {}
func (SetMedia) input()      {}

// Effect is work the machine asks its owner to perform.
type Effect interface {
	effect()
}

// StartTurn opens a stream for Request. Events must come back tagged Turn.
type StartTurn struct {
	Turn    uint64
	Request transport.Request
}

// AbortTurn stops the in-flight stream.
type AbortTurn struct{}

// Finalize asks the sandbox to finalize the accepted render.
type Finalize struct {
	SandboxID string
	FilePath  string
}

// Cleanup releases the sandbox, best effort.
type Cleanup struct{ SandboxID string }

// Persist copies a rendered version to durable storage.
type Persist struct {
	VersionID string
	SandboxID string
	FilePath  string
}

// Diagnose routes the technical detail of a failed tool to the log.
type Diagnose struct {
	Tool       string
	ToolCallID string
	Detail     string
}

// SavePlan exports an accepted plan.
type SavePlan struct {
	Plan *plan.Plan
	Task string
}

// ReleaseMedia frees what a removed entry held outside the session.
type ReleaseMedia struct{ Entry media.Entry }

func (StartTurn) effect()    {}
func (AbortTurn) effect()    {}
func (Finalize) effect()     {}
func (Cleanup) effect()      {}
func (Persist) effect()      {}
func (Diagnose) effect()     {}
func (SavePlan) effect()     {}
func (ReleaseMedia) effect() {}
