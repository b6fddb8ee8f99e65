package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/yanmxa/genmotion/internal/canvas"
	"github.com/yanmxa/genmotion/internal/log"
	"github.com/yanmxa/genmotion/internal/media"
	"github.com/yanmxa/genmotion/internal/message"
	"github.com/yanmxa/genmotion/internal/plan"
	"github.com/yanmxa/genmotion/internal/sandbox"
	"github.com/yanmxa/genmotion/internal/transport"
)

// ErrClosed is returned when sending to a closed engine.
var ErrClosed = errors.New("session closed")

// Config wires an Engine to its collaborators. Stream and Sandbox are
// required; the rest are optional.
type Config struct {
	NodeID  string
	Stream  *transport.Stream
	Sandbox *sandbox.Manager

	Canvas canvas.Store
	Store  *Store
	Plans  *plan.Store
	Cache  *media.Cache
	Blobs  *media.BlobStore

	// Engine and Style are defaults for a session without a snapshot.
	Engine string
	Style  string
}

// canvasChanged is queued when the canvas store reports a change.
type canvasChanged struct{}

func (canvasChanged) input() {}

// Engine runs one session as an actor: a single goroutine takes inputs off
// an unbounded queue, applies them to the Machine and carries out the
// resulting effects. Stream events, background completions and user
// actions all go through the same queue, so each one sees the state left
// by the one before it.
type Engine struct {
	cfg     Config
	machine *Machine

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	queue  []Input
	closed bool
	wake   chan struct{}

	snapMu   sync.RWMutex
	snap     State
	lastNode map[string]any

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int

	unsubscribe func()

	// turnStart is the clock value before the current turn began. Only the
	// actor goroutine touches it.
	turnStart uint64
}

// NewEngine creates an engine and starts its goroutine. A stored snapshot
// for cfg.NodeID is restored first.
func NewEngine(cfg Config, opts ...Option) *Engine {
	if cfg.Cache == nil {
		cfg.Cache = media.NewCache(nil)
	}
	if cfg.Blobs == nil {
		cfg.Blobs = media.NewBlobStore()
	}

	m := NewMachine(cfg.NodeID, opts...)
	m.s.Engine = cfg.Engine
	m.s.Style = cfg.Style
	if cfg.Store != nil {
		if snap, err := cfg.Store.Load(cfg.NodeID); err == nil {
			m.Restore(snap.State)
			m.s.NodeID = cfg.NodeID
			if cfg.Engine != "" {
				m.s.Engine = cfg.Engine
			}
			log.Logger().Info("restored session",
				zap.String("node", cfg.NodeID),
				zap.String("phase", string(m.s.Phase.Kind())))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:     cfg,
		machine: m,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
		snap:    m.State(),
		subs:    make(map[int]chan struct{}),
	}

	if cfg.Canvas != nil {
		e.unsubscribe = cfg.Canvas.Subscribe(func() {
			_ = e.Send(canvasChanged{})
		})
		e.enqueue(canvasChanged{})
	}

	go e.loop()
	return e
}

// --- Queue ---

// Send queues an input. It never blocks, so it is safe to call from
// stream handlers and background callbacks.
func (e *Engine) Send(in Input) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.queue = append(e.queue, in)
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

func (e *Engine) enqueue(in Input) {
	e.mu.Lock()
	e.queue = append(e.queue, in)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) pop() (Input, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil, false
	}
	in := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return in, true
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.wake:
		}
		for {
			in, ok := e.pop()
			if !ok {
				break
			}
			e.handle(in)
		}
	}
}

func (e *Engine) handle(in Input) {
	if _, ok := in.(canvasChanged); ok {
		entries, changed := media.SyncEdges(e.cfg.NodeID, e.cfg.Canvas, e.machine.s.Media, e.cfg.Blobs)
		if !changed {
			return
		}
		in = SetMedia{Entries: entries}
	}

	wasStreaming, turn := e.machine.s.Streaming, e.machine.s.TurnID
	seq := e.machine.clock.Current()
	for _, eff := range e.machine.Apply(in) {
		e.run(eff)
	}
	if e.machine.s.TurnID != turn {
		e.turnStart = seq
	}
	if wasStreaming && !e.machine.s.Streaming {
		e.logTurnEnd()
	}
	e.publish(in)
}

// logTurnEnd records the phase a turn left behind and the tool calls it made.
func (e *Engine) logTurnEnd() {
	if !log.IsEnabled() {
		return
	}
	s := &e.machine.s
	var calls []message.ToolCall
	for _, tc := range s.ToolCalls {
		if tc.Seq > e.turnStart {
			calls = append(calls, tc)
		}
	}
	log.Logger().Info("turn ended",
		zap.String("node", e.cfg.NodeID),
		zap.Uint64("turn", s.TurnID),
		zap.String("phase", string(s.Phase.Kind())),
		log.ToolCallsField(calls))
}

// --- Effects ---

func (e *Engine) run(eff Effect) {
	nodeID := e.cfg.NodeID
	switch eff := eff.(type) {
	case StartTurn:
		e.startTurn(eff)

	case AbortTurn:
		e.cfg.Stream.Abort()

	case Finalize:
		e.cfg.Sandbox.Go("finalize", func() {
			url, err := e.cfg.Sandbox.Finalize(e.ctx, nodeID, eff.SandboxID, eff.FilePath)
			if err != nil {
				log.Logger().Warn("finalize failed, keeping preview url",
					zap.String("node", nodeID), zap.Error(err))
			}
			_ = e.Send(FinalizeDone{URL: url, Err: err})
		})

	case Cleanup:
		e.cfg.Sandbox.Release(nodeID, eff.SandboxID)

	case Persist:
		req := sandbox.PersistRequest{
			NodeID:    nodeID,
			SandboxID: eff.SandboxID,
			FilePath:  eff.FilePath,
			VersionID: eff.VersionID,
		}
		e.cfg.Sandbox.Handoff(req, func(res sandbox.PersistResult, err error) {
			if err != nil {
				log.Logger().Warn("persist failed, keeping sandbox url",
					zap.String("node", nodeID),
					zap.String("version", eff.VersionID),
					zap.Error(err))
			}
			_ = e.Send(PersistDone{
				VersionID:    eff.VersionID,
				VideoURL:     res.VideoURL,
				ThumbnailURL: res.ThumbnailURL,
				Err:          err,
			})
		})

	case Diagnose:
		log.LogToolFailure(nodeID, eff.Tool, eff.ToolCallID, eff.Detail)

	case SavePlan:
		if e.cfg.Plans == nil {
			return
		}
		path, err := e.cfg.Plans.Save(&plan.Record{NodeID: nodeID, Task: eff.Task, Plan: *eff.Plan})
		if err != nil {
			log.LogError("save plan", err)
			return
		}
		log.Logger().Info("plan exported", zap.String("node", nodeID), zap.String("path", path))

	case ReleaseMedia:
		media.Release(e.ctx, e.cfg.Cache, e.cfg.Blobs, eff.Entry)
	}
}

// startTurn resolves media right before sending, so cached payloads and
// blob references are converted exactly once per turn.
func (e *Engine) startTurn(eff StartTurn) {
	req := eff.Request
	entries, err := media.Resolve(e.ctx, e.cfg.Cache, e.cfg.Blobs, req.Context.Media)
	if err != nil {
		log.LogError("resolve media", err)
		entries = nil
	}
	req.Context.Media = entries

	turn := eff.Turn
	_, aborted := e.cfg.Stream.Start(e.ctx, req, func(_ uint64, ev message.Event) {
		_ = e.Send(StreamEvent{Turn: turn, Event: ev})
	})
	if aborted > 0 {
		log.Logger().Debug("superseded in-flight turn", zap.String("node", e.cfg.NodeID))
	}
}

// --- Publishing ---

func (e *Engine) publish(in Input) {
	s := e.machine.State()

	// The canvas and the store are written before the snapshot is swapped,
	// so a reader that sees the new state also sees them.
	e.syncCanvas(s)
	if e.cfg.Store != nil && !isDelta(in) {
		if err := e.cfg.Store.Save(e.ctx, s); err != nil {
			log.LogError("save session", err)
		}
	}

	e.snapMu.Lock()
	e.snap = s
	e.snapMu.Unlock()
	e.notify()
}

// isDelta reports whether in only grows streamed text, which is not worth
// a snapshot write of its own.
func isDelta(in Input) bool {
	se, ok := in.(StreamEvent)
	return ok && (se.Event.Type == message.EventTextDelta || se.Event.Type == message.EventReasoningDelta)
}

// syncCanvas mirrors the node-facing fields into the canvas store. Writes
// are skipped when nothing changed, since every write notifies subscribers,
// this engine included.
func (e *Engine) syncCanvas(s State) {
	if e.cfg.Canvas == nil {
		return
	}
	data := NodeData(s)
	if reflect.DeepEqual(data, e.lastNode) {
		return
	}
	if err := e.cfg.Canvas.UpdateNodeData(e.cfg.NodeID, data); err != nil {
		log.Logger().Warn("failed to update canvas node", zap.String("node", e.cfg.NodeID), zap.Error(err))
		return
	}
	e.lastNode = data
}

// NodeData is the partial node update written to the canvas for s.
func NodeData(s State) map[string]any {
	data := map[string]any{
		"phase":        string(s.Phase.Kind()),
		"isStreaming":  s.Streaming,
		"planAccepted": s.PlanAccepted,
		"previewUrl":   s.PreviewURL,
		"previewState": string(s.PreviewState),
		"sandboxId":    s.SandboxID,
		"versions":     len(s.Versions),
	}
	if c, ok := s.Phase.(Complete); ok && c.VideoURL != "" {
		data["videoUrl"] = c.VideoURL
		data["mediaType"] = string(media.TypeVideo)
	}
	if v, ok := s.ActiveVersion(); ok && v.Duration > 0 {
		data["duration"] = v.Duration
	}
	if err := s.Error(); err != nil {
		data["error"] = err.Message
	}
	return data
}

func (e *Engine) notify() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// --- Reading ---

// Snapshot returns a deep copy of the latest state.
func (e *Engine) Snapshot() State {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap.Clone()
}

// Subscribe returns a channel that receives a signal after every state
// change, coalesced, and a function that stops the subscription.
func (e *Engine) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	e.subMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	e.subMu.Unlock()
	return ch, func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

// WaitFor blocks until cond holds for the latest state or ctx ends.
func (e *Engine) WaitFor(ctx context.Context, cond func(State) bool) (State, error) {
	ch, stop := e.Subscribe()
	defer stop()
	for {
		s := e.Snapshot()
		if cond(s) {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return s, fmt.Errorf("waiting for session %s: %w", e.cfg.NodeID, ctx.Err())
		case <-e.done:
			return e.Snapshot(), ErrClosed
		case <-ch:
		}
	}
}

// Blobs returns the blob registry used for transient media references.
func (e *Engine) Blobs() *media.BlobStore { return e.cfg.Blobs }

// --- Shutdown ---

// Close stops the engine. The in-flight turn is aborted and the sandbox is
// released without waiting; the final state is saved with the sandbox
// detached. Background work still running may finish after Close returns.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	e.mu.Unlock()

	e.cfg.Stream.Abort()
	e.cancel()
	<-e.done
	if e.unsubscribe != nil {
		e.unsubscribe()
	}

	m := e.machine
	if m.s.SandboxID != "" {
		e.cfg.Sandbox.Release(e.cfg.NodeID, m.s.SandboxID)
		m.s.SandboxID = ""
	}
	s := m.State()
	e.snapMu.Lock()
	e.snap = s
	e.snapMu.Unlock()
	if e.cfg.Store != nil {
		if err := e.cfg.Store.Save(context.Background(), s); err != nil {
			return fmt.Errorf("failed to save session on close: %w", err)
		}
	}
	return nil
}
