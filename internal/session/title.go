package session

import (
	"strings"
	"unicode/utf8"

	"github.com/yanmxa/genmotion/internal/message"
)

const (
	// MaxTitleLength is the maximum length for a session title
	MaxTitleLength = 60
)

// GenerateTitle names a session after its plan, or its first user message.
func GenerateTitle(s State) string {
	if s.Plan != nil && s.Plan.Title != "" && !s.Plan.Fallback {
		return truncateTitle(s.Plan.Title)
	}
	for _, msg := range s.Messages {
		if msg.Role == message.RoleUser && msg.Content != "" && !msg.Internal {
			return truncateTitle(msg.Content)
		}
	}
	return "Untitled animation"
}

// truncateTitle truncates a string to MaxTitleLength, breaking at word boundaries
func truncateTitle(s string) string {
	// Normalize whitespace by splitting on any whitespace and rejoining
	s = strings.Join(strings.Fields(s), " ")

	if utf8.RuneCountInString(s) <= MaxTitleLength {
		return s
	}

	runes := []rune(s)
	truncated := string(runes[:MaxTitleLength])

	// Try to break at the last word boundary
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > MaxTitleLength/2 {
		truncated = truncated[:lastSpace]
	}

	return strings.TrimSpace(truncated) + "..."
}
