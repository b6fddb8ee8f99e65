package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yanmxa/genmotion/internal/media"
)

const (
	// SessionRetentionDays is how long sessions are kept before cleanup
	SessionRetentionDays = 30
)

// Metadata describes a stored session without its logs.
type Metadata struct {
	NodeID       string    `json:"nodeId"`
	Title        string    `json:"title"`
	Phase        PhaseKind `json:"phase"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
	VersionCount int       `json:"versionCount"`
}

// Snapshot is the on-disk form of a session.
type Snapshot struct {
	Metadata Metadata `json:"metadata"`
	State    State    `json:"state"`
}

// Store manages session snapshot files, one per canvas node.
type Store struct {
	mu      sync.RWMutex
	baseDir string
	cache   *media.Cache
	blobs   *media.BlobStore
}

// NewStore creates a snapshot store rooted at dir. An empty dir means
// ~/.motion/sessions/. Large media payloads are offloaded to cache before
// a snapshot is written; blobs resolves transient references.
func NewStore(dir string, cache *media.Cache, blobs *media.BlobStore) (*Store, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".motion", "sessions")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	if cache == nil {
		cache = media.NewCache(nil)
	}

	store := &Store{baseDir: dir, cache: cache, blobs: blobs}

	// Run cleanup on startup
	go store.Cleanup()

	return store, nil
}

// Save writes the snapshot of state, keeping the original creation time.
func (s *Store) Save(ctx context.Context, state State) error {
	entries, err := media.Offload(ctx, s.cache, s.blobs, state.Media)
	if err != nil {
		return fmt.Errorf("failed to offload media: %w", err)
	}
	state.Media = entries

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	meta := Metadata{
		NodeID:       state.NodeID,
		Title:        GenerateTitle(state),
		Phase:        encodePhase(state.Phase).Kind,
		CreatedAt:    now,
		UpdatedAt:    now,
		MessageCount: len(state.Messages),
		VersionCount: len(state.Versions),
	}
	if prev, err := s.loadWithoutLock(state.NodeID); err == nil && !prev.Metadata.CreatedAt.IsZero() {
		meta.CreatedAt = prev.Metadata.CreatedAt
	}

	data, err := json.MarshalIndent(Snapshot{Metadata: meta, State: state}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Write then rename so a crash never leaves a truncated snapshot.
	filePath := s.path(state.NodeID)
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Load loads the snapshot of a node.
func (s *Store) Load(nodeID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, err := s.loadWithoutLock(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", nodeID, err)
	}
	return snap, nil
}

// List returns all session metadata sorted by update time (newest first)
func (s *Store) List() ([]*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Metadata{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	sessions := make([]*Metadata, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		snap, err := s.readFile(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			continue // Skip invalid session files
		}
		sessions = append(sessions, &snap.Metadata)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	return sessions, nil
}

// GetLatest returns the most recently updated session
func (s *Store) GetLatest() (*Snapshot, error) {
	sessions, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no sessions found")
	}
	return s.Load(sessions[0].NodeID)
}

// Delete removes a node's snapshot and the cached media it referenced.
func (s *Store) Delete(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap, err := s.loadWithoutLock(nodeID); err == nil {
		for _, e := range snap.State.Media {
			media.Release(ctx, s.cache, s.blobs, e)
		}
	}
	if err := os.Remove(s.path(nodeID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Cleanup removes sessions older than SessionRetentionDays
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read sessions directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -SessionRetentionDays)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		filePath := filepath.Join(s.baseDir, entry.Name())
		snap, err := s.readFile(filePath)
		if err != nil {
			continue
		}
		if snap.Metadata.UpdatedAt.Before(cutoff) {
			_ = os.Remove(filePath)
		}
	}

	return nil
}

// loadWithoutLock loads a snapshot without acquiring the lock (caller must hold lock)
func (s *Store) loadWithoutLock(nodeID string) (*Snapshot, error) {
	return s.readFile(s.path(nodeID))
}

func (s *Store) readFile(filePath string) (*Snapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func (s *Store) path(nodeID string) string {
	name := unsafeChars.ReplaceAllString(nodeID, "_")
	if name == "" {
		name = "_"
	}
	return filepath.Join(s.baseDir, name+".json")
}
