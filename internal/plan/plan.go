// Package plan holds the structured animation plan the agent proposes
// before execution, the client-side fallback plan, and plan export.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

const (
	// DefaultFPS is used when a generated plan omits its frame rate.
	DefaultFPS = 30

	fallbackFPS   = 60
	fallbackStyle = "modern"
)

// Scene is one segment of the planned animation.
type Scene struct {
	ID          string  `json:"id" yaml:"id"`
	Title       string  `json:"title" yaml:"title"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Duration    float64 `json:"duration" yaml:"duration"`
}

// Plan is the structured proposal the user accepts or revises.
type Plan struct {
	Title         string  `json:"title,omitempty" yaml:"title,omitempty"`
	Scenes        []Scene `json:"scenes" yaml:"scenes"`
	TotalDuration float64 `json:"totalDuration" yaml:"total_duration"`
	Style         string  `json:"style,omitempty" yaml:"style,omitempty"`
	FPS           int     `json:"fps" yaml:"fps"`

	// Fallback marks a plan synthesized by the client because the agent
	// finished its analysis turn without calling any tool.
	Fallback bool `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Parse decodes a plan object and fills in derivable fields.
func Parse(raw json.RawMessage) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if len(p.Scenes) == 0 {
		return nil, fmt.Errorf("parse plan: no scenes")
	}
	p.normalize()
	return &p, nil
}

func (p *Plan) normalize() {
	var sum float64
	for i := range p.Scenes {
		if p.Scenes[i].ID == "" {
			p.Scenes[i].ID = fmt.Sprintf("scene-%d", i+1)
		}
		if p.Scenes[i].Title == "" {
			p.Scenes[i].Title = fmt.Sprintf("Scene %d", i+1)
		}
		sum += p.Scenes[i].Duration
	}
	if p.TotalDuration <= 0 {
		p.TotalDuration = sum
	}
	if p.FPS <= 0 {
		p.FPS = DefaultFPS
	}
}

// Fallback synthesizes a three-scene plan for a prompt.
func Fallback(prompt string) *Plan {
	subject := strings.TrimSpace(prompt)
	if subject == "" {
		subject = "the animation"
	}
	p := &Plan{
		Title: subject,
		Scenes: []Scene{
			{ID: "scene-1", Title: "Intro", Description: "Establish " + subject, Duration: 2},
			{ID: "scene-2", Title: "Main motion", Description: "Animate " + subject, Duration: 3},
			{ID: "scene-3", Title: "Outro", Description: "Settle and hold the final frame", Duration: 2},
		},
		Style:    fallbackStyle,
		FPS:      fallbackFPS,
		Fallback: true,
	}
	p.normalize()
	return p
}

// Clone returns a deep copy.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Scenes = append([]Scene(nil), p.Scenes...)
	return &c
}

// Outline renders the plan as plain lines, one per scene.
func (p *Plan) Outline() string {
	if p == nil {
		return ""
	}
	var sb strings.Builder
	if p.Title != "" {
		fmt.Fprintf(&sb, "%s\n", p.Title)
	}
	fmt.Fprintf(&sb, "style: %s, %d fps, %gs\n", p.Style, p.FPS, p.TotalDuration)
	for i, s := range p.Scenes {
		fmt.Fprintf(&sb, "%d. %s (%gs)", i+1, s.Title, s.Duration)
		if s.Description != "" {
			fmt.Fprintf(&sb, " - %s", s.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Diff returns a unified diff between two plan outlines, or "" when they match.
func Diff(previous, revised *Plan) string {
	a, b := previous.Outline(), revised.Outline()
	if a == b {
		return ""
	}
	edits := myers.ComputeEdits(span.URIFromPath("plan"), a, b)
	return fmt.Sprint(gotextdiff.ToUnified("previous", "revised", a, edits))
}
