package tui

import "github.com/charmbracelet/lipgloss"

// Message styles
var (
	inputPromptStyle     lipgloss.Style
	aiPromptStyle        lipgloss.Style
	separatorStyle       lipgloss.Style
	thinkingStyle        lipgloss.Style
	thinkingContentStyle lipgloss.Style
	systemMsgStyle       lipgloss.Style
	noticeStyle          lipgloss.Style
	errorStyle           lipgloss.Style
)

// Tool display styles
var (
	toolRunningStyle lipgloss.Style
	toolDoneStyle    lipgloss.Style
	toolFailedStyle  lipgloss.Style
)

// Todo styles
var (
	todoPendingStyle lipgloss.Style
	todoActiveStyle  lipgloss.Style
	todoDoneStyle    lipgloss.Style
)

// Plan and version card styles
var (
	planCardStyle    lipgloss.Style
	planTitleStyle   lipgloss.Style
	planMetaStyle    lipgloss.Style
	diffAddedStyle   lipgloss.Style
	diffRemovedStyle lipgloss.Style
	versionStyle     lipgloss.Style
	versionOldStyle  lipgloss.Style
	staleBadgeStyle  lipgloss.Style
	activeBadgeStyle lipgloss.Style
)

// Media chip styles
var (
	mediaChipStyle lipgloss.Style
	mediaHintStyle lipgloss.Style
)

func init() {
	inputPromptStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Primary).
		Bold(true)

	aiPromptStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.AI).
		Bold(true)

	separatorStyle = lipgloss.NewStyle().
		Faint(true).
		Foreground(CurrentTheme.Separator)

	thinkingStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Accent)

	thinkingContentStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Muted).
		PaddingLeft(2)

	systemMsgStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.TextDim).
		PaddingLeft(2)

	noticeStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Muted).
		Italic(true)

	errorStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Error)

	toolRunningStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Accent)

	toolDoneStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Muted)

	toolFailedStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Warning)

	todoPendingStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Muted)

	todoActiveStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Warning).
		Bold(true)

	todoDoneStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.TextDisabled).
		Strikethrough(true)

	planCardStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(CurrentTheme.Border).
		Padding(0, 1)

	planTitleStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.TextBright).
		Bold(true)

	planMetaStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Muted)

	diffAddedStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Success)

	diffRemovedStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Error)

	versionStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Primary)

	versionOldStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.TextDim)

	staleBadgeStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Warning).
		Italic(true)

	activeBadgeStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Success).
		Bold(true)

	mediaChipStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Primary)

	mediaHintStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Muted)
}
