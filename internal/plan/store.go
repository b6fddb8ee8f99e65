package plan

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Record is an exported plan: frontmatter metadata plus the plan itself.
type Record struct {
	ID        string    `yaml:"id"`
	CreatedAt time.Time `yaml:"created_at"`
	NodeID    string    `yaml:"node_id"`
	Task      string    `yaml:"task"`
	Plan      Plan      `yaml:"plan"`
}

// Store manages plan file storage
type Store struct {
	baseDir string
}

// NewStore creates a plan store rooted at dir, creating it if needed.
// An empty dir means ~/.motion/plans/
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".motion", "plans")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plans directory: %w", err)
	}
	return &Store{baseDir: dir}, nil
}

// Save writes an accepted plan as markdown with YAML frontmatter and returns the file path
func (s *Store) Save(rec *Record) (string, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.ID == "" {
		rec.ID = GenerateName(rec.Task, rec.CreatedAt)
	}

	front, err := yaml.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(front)
	buf.WriteString("---\n\n")
	buf.WriteString(rec.Plan.Outline())

	filePath := filepath.Join(s.baseDir, rec.ID+".md")
	if err := os.WriteFile(filePath, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write plan file: %w", err)
	}
	return filePath, nil
}

// Load loads a plan record by ID
func (s *Store) Load(id string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id+".md"))
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return parseRecord(data)
}

// List returns all saved plans, newest first
func (s *Store) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plans directory: %w", err)
	}

	records := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		rec, err := s.Load(strings.TrimSuffix(entry.Name(), ".md"))
		if err != nil {
			continue // Skip invalid plan files
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Delete removes a plan file
func (s *Store) Delete(id string) error {
	return os.Remove(filepath.Join(s.baseDir, id+".md"))
}

// parseRecord parses a plan file with YAML frontmatter
func parseRecord(data []byte) (*Record, error) {
	content := string(data)
	if !strings.HasPrefix(content, "---\n") {
		return nil, fmt.Errorf("plan file missing frontmatter")
	}
	endIdx := strings.Index(content[4:], "\n---\n")
	if endIdx == -1 {
		return nil, fmt.Errorf("plan file has unclosed frontmatter")
	}

	var rec Record
	if err := yaml.Unmarshal([]byte(content[4:4+endIdx]), &rec); err != nil {
		return nil, fmt.Errorf("failed to parse plan frontmatter: %w", err)
	}
	return &rec, nil
}
