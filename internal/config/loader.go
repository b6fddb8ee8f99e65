package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override file settings.
const (
	EnvBaseURL    = "MOTION_BASE_URL"
	EnvStreamURL  = "MOTION_STREAM_URL"
	EnvSandboxURL = "MOTION_SANDBOX_URL"
	EnvPersistURL = "MOTION_PERSIST_URL"
)

// Loader handles loading and merging settings from multiple sources.
type Loader struct {
	// userDir is the user-level config directory (e.g., ~/.motion)
	userDir string

	// projectDir is the project-level config directory (e.g., .motion)
	projectDir string
}

// NewLoader creates a new settings loader.
// It defaults to:
//   - userDir: ~/.motion
//   - projectDir: .motion
func NewLoader() *Loader {
	homeDir, _ := os.UserHomeDir()
	return &Loader{
		userDir:    filepath.Join(homeDir, ".motion"),
		projectDir: ".motion",
	}
}

// NewLoaderWithOptions creates a loader with custom directories.
func NewLoaderWithOptions(userDir, projectDir string) *Loader {
	return &Loader{
		userDir:    userDir,
		projectDir: projectDir,
	}
}

// Load loads and merges settings from all sources.
// Priority (lowest to highest):
//  1. ~/.motion/settings.json (user level)
//  2. .motion/settings.json (project level)
//  3. .motion/settings.local.json (local level)
//  4. environment variables
//
// Later sources override earlier ones. A file that exists but cannot be
// parsed is an error; missing files are skipped.
func (l *Loader) Load() (*Settings, error) {
	settings := NewSettings()

	sources := []string{
		filepath.Join(l.userDir, "settings.json"),
		filepath.Join(l.projectDir, "settings.json"),
		filepath.Join(l.projectDir, "settings.local.json"),
	}

	for _, src := range sources {
		data, err := os.ReadFile(src)
		if err != nil {
			continue
		}
		var s Settings
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", src, err)
		}
		settings = MergeSettings(settings, &s)
	}

	applyEnvOverrides(settings)
	return settings, nil
}

// applyEnvOverrides lets the environment win over every file.
func applyEnvOverrides(s *Settings) {
	for env, field := range map[string]*string{
		EnvBaseURL:    &s.Endpoints.BaseURL,
		EnvStreamURL:  &s.Endpoints.Stream,
		EnvSandboxURL: &s.Endpoints.Sandbox,
		EnvPersistURL: &s.Endpoints.Persist,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

// LoadFile loads settings from a specific file.
func (l *Loader) LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}

	return &settings, nil
}

// SaveToProject saves settings to the project-level settings file.
// It merges with existing settings if the file exists.
func (l *Loader) SaveToProject(settings *Settings) error {
	return l.saveToFile(filepath.Join(l.projectDir, "settings.json"), settings)
}

// SaveToUser saves settings to the user-level settings file.
// It merges with existing settings if the file exists.
func (l *Loader) SaveToUser(settings *Settings) error {
	return l.saveToFile(filepath.Join(l.userDir, "settings.json"), settings)
}

// saveToFile saves settings to a specific file, merging with existing content.
func (l *Loader) saveToFile(path string, settings *Settings) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Load existing settings if file exists
	var existing *Settings
	if data, err := os.ReadFile(path); err == nil {
		existing = NewSettings()
		if err := json.Unmarshal(data, existing); err != nil {
			existing = nil
		}
	}

	// Merge with existing settings
	var toSave *Settings
	if existing != nil {
		toSave = MergeSettings(existing, settings)
	} else {
		toSave = settings
	}

	// Write to file with pretty formatting
	data, err := json.MarshalIndent(toSave, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// loadedSettings is a cached instance of the loaded settings
var loadedSettings *Settings

// Load is a convenience function that loads settings using the default loader.
func Load() (*Settings, error) {
	if loadedSettings != nil {
		return loadedSettings, nil
	}
	settings, err := NewLoader().Load()
	if err != nil {
		return nil, err
	}
	loadedSettings = settings
	return loadedSettings, nil
}

// Default returns the default settings without loading from files.
func Default() *Settings {
	s := NewSettings()
	applyEnvOverrides(s)
	return s
}

// SaveStyle stores the default style at the given level.
// If userLevel is true, saves to ~/.motion/settings.json, otherwise to .motion/settings.json.
func SaveStyle(style string, userLevel bool) error {
	loader := NewLoader()
	settings := &Settings{Style: style}

	var err error
	if userLevel {
		err = loader.SaveToUser(settings)
	} else {
		err = loader.SaveToProject(settings)
	}
	if err != nil {
		return err
	}

	// Clear cache so next Load() picks up changes
	loadedSettings = nil
	return nil
}
