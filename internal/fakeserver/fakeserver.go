// Package fakeserver is an in-process stand-in for the generation backend.
// It scripts SSE turns on the stream endpoint and records sandbox action
// and durable-storage requests, so tests can drive a session end to end.
//
// Usage:
//
//	srv := fakeserver.New()
//	defer srv.Close()
//	srv.Script(fakeserver.Turn{Frames: []string{
//	    fakeserver.Text("hello"),
//	    fakeserver.Complete("hello"),
//	}})
package fakeserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	StreamPath  = "/api/agent/stream"
	SandboxPath = "/api/agent/sandbox"
	PersistPath = "/api/agent/persist"
)

// Turn is one scripted response of the stream endpoint.
type Turn struct {
	// Frames are written as "data: <frame>\n\n", in order.
	Frames []string

	// Raw, when set, is written verbatim instead of Frames.
	Raw string

	// Status overrides the 200 response code; the body is Raw or a JSON error.
	Status int

	// Gate, when set, pauses the turn after GateAfter frames until the gate
	// is closed or the client goes away.
	Gate      <-chan struct{}
	GateAfter int
}

// ActionRequest is a recorded sandbox action call.
type ActionRequest struct {
	NodeID    string `json:"nodeId"`
	Action    string `json:"action"`
	SandboxID string `json:"sandboxId"`
	FilePath  string `json:"filePath,omitempty"`
}

// PersistRequest is a recorded durable-storage hand-off call.
type PersistRequest struct {
	NodeID    string `json:"nodeId"`
	SandboxID string `json:"sandboxId"`
	FilePath  string `json:"filePath"`
	VersionID string `json:"versionId,omitempty"`
}

// Server is the fake backend.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	turns         []Turn
	requests      [][]byte
	actions       []ActionRequest
	persists      []PersistRequest
	actionStatus  int
	finalizeURL   string
	persistStatus int
	persistGate   <-chan struct{}
}

// New starts a fake backend on a loopback port.
func New() *Server {
	s := &Server{}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post(StreamPath, s.handleStream)
	r.Post(SandboxPath, s.handleSandbox)
	r.Post(PersistPath, s.handlePersist)
	return r
}

// StreamURL returns the stream endpoint URL.
func (s *Server) StreamURL() string { return s.URL + StreamPath }

// SandboxURL returns the sandbox action endpoint URL.
func (s *Server) SandboxURL() string { return s.URL + SandboxPath }

// PersistURL returns the durable-storage endpoint URL.
func (s *Server) PersistURL() string { return s.URL + PersistPath }

// SetActionStatus makes the sandbox endpoint answer with status.
func (s *Server) SetActionStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionStatus = status
}

// SetFinalizeURL sets the url returned by a successful finalize action.
func (s *Server) SetFinalizeURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizeURL = url
}

// SetPersistStatus makes the persist endpoint answer with status.
func (s *Server) SetPersistStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistStatus = status
}

// SetPersistGate holds persist responses until gate is closed.
func (s *Server) SetPersistGate(gate <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistGate = gate
}

// Script queues turns; each stream request consumes one.
func (s *Server) Script(turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
}

// Requests returns the raw bodies of stream requests received so far.
func (s *Server) Requests() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.requests...)
}

// Actions returns the sandbox action calls received so far.
func (s *Server) Actions() []ActionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ActionRequest(nil), s.actions...)
}

// Persists returns the persist calls received so far.
func (s *Server) Persists() []PersistRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PersistRequest(nil), s.persists...)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, body)
	var turn Turn
	if len(s.turns) > 0 {
		turn = s.turns[0]
		s.turns = s.turns[1:]
	} else {
		turn = Turn{Frames: []string{Complete("")}}
	}
	s.mu.Unlock()

	if turn.Status != 0 && turn.Status != http.StatusOK {
		if turn.Raw != "" {
			w.WriteHeader(turn.Status)
			_, _ = io.WriteString(w, turn.Raw)
			return
		}
		respondJSON(w, turn.Status, map[string]string{"error": http.StatusText(turn.Status)})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	if turn.Raw != "" {
		_, _ = io.WriteString(w, turn.Raw)
		flush()
		return
	}

	for i, frame := range turn.Frames {
		if turn.Gate != nil && i == turn.GateAfter {
			flush()
			select {
			case <-turn.Gate:
			case <-r.Context().Done():
				return
			}
		}
		fmt.Fprintf(w, "data: %s\n\n", frame)
		flush()
	}
	if turn.Gate != nil && turn.GateAfter >= len(turn.Frames) {
		select {
		case <-turn.Gate:
		case <-r.Context().Done():
		}
	}
}

func (s *Server) handleSandbox(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.mu.Lock()
	s.actions = append(s.actions, req)
	status := s.actionStatus
	finalURL := s.finalizeURL
	s.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		respondJSON(w, status, map[string]any{"success": false, "error": "action failed"})
		return
	}
	resp := map[string]any{"success": true}
	if req.Action == "finalize" && finalURL != "" {
		resp["videoUrl"] = finalURL
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	var req PersistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.mu.Lock()
	s.persists = append(s.persists, req)
	status := s.persistStatus
	gate := s.persistGate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 && status != http.StatusOK {
		respondJSON(w, status, map[string]any{"success": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"videoUrl":     "https://storage.example/" + req.NodeID + "/" + req.VersionID + ".mp4",
		"thumbnailUrl": "https://storage.example/" + req.NodeID + "/" + req.VersionID + ".jpg",
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
