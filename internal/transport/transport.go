// Package transport opens one streaming request per user turn and turns
// the SSE body into an ordered sequence of typed events.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yanmxa/genmotion/internal/log"
	"github.com/yanmxa/genmotion/internal/media"
	"github.com/yanmxa/genmotion/internal/message"
	"github.com/yanmxa/genmotion/internal/plan"
)

// ErrStatus is wrapped by the error of a turn whose response was not 2xx.
var ErrStatus = errors.New("unexpected response status")

// Mode tells the agent what the turn is for.
type Mode string

const (
	ModeAnalyze Mode = "analyze"
	ModeRevise  Mode = "revise"
	ModeExecute Mode = "execute"
	ModeRetry   Mode = "retry"
	ModeRegen   Mode = "regenerate"
)

// TurnContext is the session context attached to every turn.
type TurnContext struct {
	NodeID       string         `json:"nodeId"`
	Phase        string         `json:"phase"`
	Mode         Mode           `json:"mode"`
	Plan         *plan.Plan     `json:"plan,omitempty"`
	PlanAccepted bool           `json:"planAccepted"`
	SandboxID    string         `json:"sandboxId,omitempty"`
	Media        []media.Entry  `json:"media,omitempty"`
	Engine       string         `json:"engine,omitempty"`
	Style        string         `json:"style,omitempty"`
	Todos        []message.Todo `json:"todos,omitempty"`
}

// Request is the body of one stream request.
type Request struct {
	Prompt   string                `json:"prompt,omitempty"`
	Messages []message.TurnMessage `json:"messages,omitempty"`
	Context  TurnContext           `json:"context"`
}

// Handler receives the events of one turn, in order, on a single goroutine.
// A handler must not call Abort on the turn that is delivering to it.
type Handler func(turnID uint64, ev message.Event)

// Client posts turns to the stream endpoint.
type Client struct {
	StreamURL string
	HTTP      *http.Client
	Headers   map[string]string

	turnSeq atomic.Uint64
}

// NewClient creates a stream client. SSE bodies are long-lived so the
// HTTP client carries no overall timeout.
func NewClient(streamURL string) *Client {
	return &Client{
		StreamURL: streamURL,
		HTTP: &http.Client{
			Timeout: 0, // No timeout for SSE
		},
	}
}

// Turn is one in-flight streaming request.
type Turn struct {
	ID uint64

	client  *Client
	req     Request
	handler Handler
	cancel  context.CancelFunc
	done    chan struct{}

	// mu is held while an event is being handed to the handler, so Abort
	// can wait out an in-flight delivery.
	mu       sync.Mutex
	aborted  atomic.Bool
	finished atomic.Bool
	err      error

	text    strings.Builder
	frames  []string
	skipped int
}

// Start opens the stream request for req and delivers its events to h.
func (c *Client) Start(ctx context.Context, req Request, h Handler) *Turn {
	ctx, cancel := context.WithCancel(ctx)
	t := &Turn{
		ID:      c.turnSeq.Add(1),
		client:  c,
		req:     req,
		handler: h,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go t.run(ctx)
	return t
}

// Abort stops the turn. Once Abort returns no further event reaches the
// handler. It reports whether the turn was still in flight.
func (t *Turn) Abort() bool {
	if t.aborted.Swap(true) {
		return false
	}
	t.cancel()
	// Wait for any delivery that started before the flag flipped.
	t.mu.Lock()
	t.mu.Unlock()
	return !t.finished.Load()
}

// Done is closed when the turn's goroutine exits.
func (t *Turn) Done() <-chan struct{} { return t.done }

// Aborted reports whether Abort was called.
func (t *Turn) Aborted() bool { return t.aborted.Load() }

// Finished reports whether a terminal event was delivered.
func (t *Turn) Finished() bool { return t.finished.Load() }

// Err returns the transport failure of the turn, if any. Valid after Done.
func (t *Turn) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Turn) run(ctx context.Context) {
	defer close(t.done)
	defer t.cancel()

	nodeID := t.req.Context.NodeID
	turnNum := log.NextTurn()
	log.LogRequest(turnNum, log.RequestSummary{
		NodeID:    nodeID,
		Phase:     t.req.Context.Phase,
		Prompt:    t.req.Prompt,
		History:   len(t.req.Messages),
		Media:     len(t.req.Context.Media),
		SandboxID: t.req.Context.SandboxID,
		Todos:     len(t.req.Context.Todos),
	})
	start := time.Now()
	synthesized := false
	defer func() {
		log.LogStreamDone(nodeID, time.Since(start), len(t.frames), synthesized)
		if log.DevEnabled() {
			log.WriteDevTurn(nodeID, turnNum, t.req, t.frames, t.skipped)
		}
	}()

	body, err := t.open(ctx)
	if err != nil {
		t.fail(err)
		return
	}
	defer body.Close()

	frames := newFrameReader(body)
	for {
		payload, err := frames.Next()
		if err != nil {
			if t.aborted.Load() {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				synthesized = true
				t.deliver(message.Event{
					Type:        message.EventComplete,
					Text:        t.text.String(),
					Synthesized: true,
				})
				return
			}
			t.fail(fmt.Errorf("stream interrupted: %w", err))
			return
		}

		if log.DevEnabled() {
			t.frames = append(t.frames, payload)
		}
		ev, err := message.Decode([]byte(payload))
		if err != nil {
			t.skipped++
			log.Logger().Warn("skipping malformed frame",
				zap.String("node", nodeID),
				zap.Uint64("turn", t.ID),
				zap.String("frame", payload),
				zap.Error(err))
			continue
		}
		if ev.IsHousekeeping() {
			continue
		}
		if log.IsEnabled() {
			log.Logger().Debug("stream event",
				zap.String("node", nodeID),
				zap.Uint64("turn", t.ID),
				log.EventField(ev))
		}
		if ev.Type == message.EventTextDelta {
			t.text.WriteString(ev.Text)
		}
		if ev.Type == message.EventComplete && ev.Text == "" {
			ev.Text = t.text.String()
		}

		if !t.deliver(ev) || ev.IsTerminal() {
			return
		}
	}
}

func (t *Turn) open(ctx context.Context) (io.ReadCloser, error) {
	data, err := json.Marshal(t.req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.client.StreamURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.client.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp.Body, nil
}

// fail records err and delivers it as the terminal event, unless the turn
// was aborted, in which case the failure is the abort itself.
func (t *Turn) fail(err error) {
	if t.aborted.Load() {
		return
	}
	t.err = err
	log.LogError("stream", err)
	t.deliver(message.Event{Type: message.EventError, Message: err.Error()})
}

// deliver hands ev to the handler unless the turn was aborted.
func (t *Turn) deliver(ev message.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.aborted.Load() {
		return false
	}
	if ev.IsTerminal() {
		t.finished.Store(true)
	}
	t.handler(t.ID, ev)
	return true
}

// Stream enforces at most one in-flight turn per session.
type Stream struct {
	client *Client

	mu      sync.Mutex
	current *Turn
}

// NewStream creates a per-session stream over client.
func NewStream(client *Client) *Stream {
	return &Stream{client: client}
}

// Start aborts the in-flight turn, if any, then starts a new one.
// It returns the new turn and the number of turns it aborted (0 or 1).
func (s *Stream) Start(ctx context.Context, req Request, h Handler) (*Turn, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	aborted := 0
	if s.current != nil && s.current.Abort() {
		aborted = 1
	}
	s.current = s.client.Start(ctx, req, h)
	return s.current, aborted
}

// Abort stops the in-flight turn and reports whether there was one.
func (s *Stream) Abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	ok := s.current.Abort()
	s.current = nil
	return ok
}

// Busy reports whether a turn is still streaming.
func (s *Stream) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !s.current.Finished() && !s.current.Aborted()
}

// Current returns the latest turn, or nil.
func (s *Stream) Current() *Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
