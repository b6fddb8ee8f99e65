// Package canvas is the narrow view of the node-graph editor the session
// engine needs: node data keyed by id, the edge list, and change
// notifications.
package canvas

import (
	"fmt"
	"maps"
	"sync"
)

// Node is one canvas node. Data is an opaque key-value bag.
type Node struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Edge connects the output of Source to an input of Target.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Store is the canvas state as seen by a session. Reads observe every
// write that returned before them.
type Store interface {
	UpdateNodeData(nodeID string, partial map[string]any) error
	Node(id string) (Node, bool)
	Nodes() []Node
	Edges() []Edge
	// Subscribe registers fn to run after every change and returns a
	// function that removes it. fn must not block.
	Subscribe(fn func()) (cancel func())
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	nodes  map[string]*Node
	order  []string
	edges  []Edge
	subs   map[int]func()
	nextID int
}

// NewMemoryStore creates an empty canvas.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]*Node),
		subs:  make(map[int]func()),
	}
}

// AddNode inserts or replaces a node.
func (s *MemoryStore) AddNode(n Node) {
	s.mu.Lock()
	if _, ok := s.nodes[n.ID]; !ok {
		s.order = append(s.order, n.ID)
	}
	if n.Data == nil {
		n.Data = map[string]any{}
	}
	cp := n
	cp.Data = maps.Clone(n.Data)
	s.nodes[n.ID] = &cp
	s.mu.Unlock()
	s.notify()
}

// Connect adds an edge.
func (s *MemoryStore) Connect(e Edge) {
	s.mu.Lock()
	s.edges = append(s.edges, e)
	s.mu.Unlock()
	s.notify()
}

// Disconnect removes the edge with the given id.
func (s *MemoryStore) Disconnect(edgeID string) {
	s.mu.Lock()
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.ID != edgeID {
			kept = append(kept, e)
		}
	}
	s.edges = kept
	s.mu.Unlock()
	s.notify()
}

// UpdateNodeData merges partial into the node's data. A nil value deletes the key.
func (s *MemoryStore) UpdateNodeData(nodeID string, partial map[string]any) error {
	s.mu.Lock()
	n, ok := s.nodes[nodeID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("node %s not found", nodeID)
	}
	for k, v := range partial {
		if v == nil {
			delete(n.Data, k)
			continue
		}
		n.Data[k] = v
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Node returns a copy of the node with the given id.
func (s *MemoryStore) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	cp := *n
	cp.Data = maps.Clone(n.Data)
	return cp, true
}

// Nodes returns copies of all nodes in insertion order.
func (s *MemoryStore) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.order))
	for _, id := range s.order {
		n := *s.nodes[id]
		n.Data = maps.Clone(n.Data)
		out = append(out, n)
	}
	return out
}

// Edges returns a copy of the edge list.
func (s *MemoryStore) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Edge(nil), s.edges...)
}

// Subscribe registers a change callback.
func (s *MemoryStore) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *MemoryStore) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// Incoming returns the edges that target nodeID, in edge order.
func Incoming(s Store, nodeID string) []Edge {
	var out []Edge
	for _, e := range s.Edges() {
		if e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Output describes the media a node currently produces.
type Output struct {
	URL      string
	Type     string
	Duration float64
}

// OutputOf reads a node's current media output from its data bag.
func OutputOf(n Node) (Output, bool) {
	for _, key := range []string{"videoUrl", "outputUrl", "imageUrl", "url"} {
		url, _ := n.Data[key].(string)
		if url == "" {
			continue
		}
		out := Output{URL: url, Type: "image"}
		if key == "videoUrl" || n.Type == "video" || n.Type == "animation" {
			out.Type = "video"
		}
		if t, ok := n.Data["mediaType"].(string); ok && t != "" {
			out.Type = t
		}
		if d, ok := n.Data["duration"].(float64); ok {
			out.Duration = d
		}
		return out, true
	}
	return Output{}, false
}
