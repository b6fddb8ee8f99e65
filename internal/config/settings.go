// Package config provides multi-level settings management for motion.
// Settings are loaded from multiple sources with the following priority (lowest to highest):
//  1. ~/.motion/settings.json (user level)
//  2. .motion/settings.json (project level)
//  3. .motion/settings.local.json (local level, not meant to be committed)
//  4. Environment variables (MOTION_STREAM_URL, MOTION_SANDBOX_URL, MOTION_PERSIST_URL, ...)
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default values used when no source sets them.
const (
	DefaultBaseURL        = "http://localhost:3000"
	DefaultEngine         = "remotion"
	DefaultRequestTimeout = 30 * time.Second
)

// Settings represents the complete motion configuration.
type Settings struct {
	// Endpoints are the backend URLs a session talks to
	Endpoints Endpoints `json:"endpoints,omitempty"`

	// Headers are sent with every stream request (e.g. an auth token)
	Headers map[string]string `json:"headers,omitempty"`

	// Engine is the default animation engine for new sessions
	Engine string `json:"engine,omitempty"`

	// Style is the default visual style for new sessions
	Style string `json:"style,omitempty"`

	// MediaCache is the path of the SQLite media cache
	MediaCache string `json:"mediaCache,omitempty"`

	// SessionDir holds session snapshots
	SessionDir string `json:"sessionDir,omitempty"`

	// PlanDir holds exported plans
	PlanDir string `json:"planDir,omitempty"`

	// RequestTimeout bounds sandbox and persist calls, e.g. "30s"
	RequestTimeout string `json:"requestTimeout,omitempty"`

	// Env defines environment variables to set
	Env map[string]string `json:"env,omitempty"`
}

// Endpoints are the backend URLs. An empty endpoint is derived from BaseURL.
type Endpoints struct {
	BaseURL string `json:"baseUrl,omitempty"`
	Stream  string `json:"stream,omitempty"`
	Sandbox string `json:"sandbox,omitempty"`
	Persist string `json:"persist,omitempty"`
}

// NewSettings creates a new Settings instance with default values
func NewSettings() *Settings {
	return &Settings{
		Headers: make(map[string]string),
		Env:     make(map[string]string),
	}
}

// StreamURL returns the stream endpoint.
func (s *Settings) StreamURL() string {
	return s.endpoint(s.Endpoints.Stream, "/api/agent/stream")
}

// SandboxURL returns the sandbox action endpoint.
func (s *Settings) SandboxURL() string {
	return s.endpoint(s.Endpoints.Sandbox, "/api/agent/sandbox")
}

// PersistURL returns the durable-storage endpoint.
func (s *Settings) PersistURL() string {
	return s.endpoint(s.Endpoints.Persist, "/api/agent/persist")
}

func (s *Settings) endpoint(explicit, path string) string {
	if explicit != "" {
		return explicit
	}
	base := s.Endpoints.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return base + path
}

// EngineOrDefault returns the configured engine, or the default one.
func (s *Settings) EngineOrDefault() string {
	if s.Engine != "" {
		return s.Engine
	}
	return DefaultEngine
}

// Timeout parses RequestTimeout. Invalid or missing values use the default.
func (s *Settings) Timeout() time.Duration {
	if d, err := time.ParseDuration(s.RequestTimeout); err == nil && d > 0 {
		return d
	}
	return DefaultRequestTimeout
}

// MediaCachePath returns the media cache database path.
func (s *Settings) MediaCachePath() string {
	return s.pathOr(s.MediaCache, "media.db")
}

// SessionPath returns the session snapshot directory.
func (s *Settings) SessionPath() string {
	return s.pathOr(s.SessionDir, "sessions")
}

// PlanPath returns the plan export directory.
func (s *Settings) PlanPath() string {
	return s.pathOr(s.PlanDir, "plans")
}

func (s *Settings) pathOr(explicit, name string) string {
	if explicit != "" {
		return expandHome(explicit)
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".motion", name)
}

// ApplyEnv sets the variables listed in Env that are not already set.
func (s *Settings) ApplyEnv() {
	for k, v := range s.Env {
		if _, ok := os.LookupEnv(k); !ok {
			_ = os.Setenv(k, v)
		}
	}
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
