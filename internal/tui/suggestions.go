package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestion styles (initialized dynamically based on theme)
var (
	suggestionBoxStyle      lipgloss.Style
	selectedSuggestionStyle lipgloss.Style
	commandNameStyle        lipgloss.Style
	commandDescStyle        lipgloss.Style
)

func init() {
	suggestionBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(CurrentTheme.Border).
		Padding(0, 1)

	selectedSuggestionStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.TextBright).
		Bold(true)

	commandNameStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Primary)

	commandDescStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Muted)
}

// maxSuggestions is the number of suggestions shown at once.
const maxSuggestions = 5

// SuggestionState holds the state for command suggestions
type SuggestionState struct {
	visible     bool
	suggestions []Command
	selectedIdx int
}

// NewSuggestionState creates a new SuggestionState
func NewSuggestionState() SuggestionState {
	return SuggestionState{}
}

// Reset resets the suggestion state
func (s *SuggestionState) Reset() {
	*s = SuggestionState{}
}

// UpdateSuggestions updates suggestions based on input. Suggestions are only
// shown while the command name is being typed.
func (s *SuggestionState) UpdateSuggestions(input string) {
	input = strings.TrimLeft(input, " ")
	if !strings.HasPrefix(input, "/") || strings.Contains(input, " ") {
		s.Reset()
		return
	}

	s.suggestions = GetMatchingCommands(input)
	s.visible = len(s.suggestions) > 0
	if s.selectedIdx >= len(s.suggestions) {
		s.selectedIdx = 0
	}
}

// MoveUp moves the selection up
func (s *SuggestionState) MoveUp() {
	if s.selectedIdx > 0 {
		s.selectedIdx--
	}
}

// MoveDown moves the selection down
func (s *SuggestionState) MoveDown() {
	if s.selectedIdx < len(s.suggestions)-1 {
		s.selectedIdx++
	}
}

// GetSelected returns the currently selected command name, or empty string if none
func (s *SuggestionState) GetSelected() string {
	if !s.IsVisible() || s.selectedIdx >= len(s.suggestions) {
		return ""
	}
	return "/" + s.suggestions[s.selectedIdx].Name
}

// Hide hides the suggestions
func (s *SuggestionState) Hide() {
	s.visible = false
}

// IsVisible returns whether suggestions are visible
func (s *SuggestionState) IsVisible() bool {
	return s.visible && len(s.suggestions) > 0
}

// Render renders the suggestions box
func (s *SuggestionState) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	items := s.suggestions
	if len(items) > maxSuggestions {
		items = items[:maxSuggestions]
	}

	var lines []string
	for i, cmd := range items {
		cmdName := fmt.Sprintf("/%s", cmd.Name)
		desc := truncateText(cmd.Description, width-len(cmdName)-8)

		if i == s.selectedIdx {
			lines = append(lines, selectedSuggestionStyle.Render(cmdName+" - "+desc))
		} else {
			lines = append(lines, commandNameStyle.Render(cmdName)+commandDescStyle.Render(" - "+desc))
		}
	}

	return suggestionBoxStyle.Width(max(width-4, 20)).Render(strings.Join(lines, "\n"))
}
