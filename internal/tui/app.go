// Package tui is the interactive terminal front end of a session: the
// reconciled timeline in a scrolling viewport, an input box whose hint
// follows the session phase, and slash commands for the session controls.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/yanmxa/genmotion/internal/config"
	"github.com/yanmxa/genmotion/internal/session"
)

type model struct {
	engine   *session.Engine
	changes  <-chan struct{}
	stopSub  func()
	state    session.State
	settings *config.Settings

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	width    int
	height   int
	ready    bool

	inputHistory []string
	historyIndex int
	tempInput    string

	mdRenderer *glamour.TermRenderer

	suggestions    SuggestionState
	questionPrompt *QuestionPrompt
	// answered is the question the prompt was last shown for, so a dismissed
	// prompt does not reopen on the next state change.
	answered string

	// notices are local command results, never part of the session.
	notices []string
}

// Run starts the terminal UI on engine and blocks until the user quits.
// The engine is not closed.
func Run(engine *session.Engine, settings *config.Settings) error {
	m := newModel(engine, settings)
	defer m.stopSub()

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newModel(engine *session.Engine, settings *config.Settings) model {
	ta := textarea.New()
	ta.Focus()
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.SetWidth(defaultWidth)
	ta.SetHeight(minTextareaHeight)
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle()
	ta.FocusedStyle.Prompt = lipgloss.NewStyle()
	ta.BlurredStyle.Base = lipgloss.NewStyle().Foreground(CurrentTheme.Muted)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(CurrentTheme.Muted)
	ta.KeyMap.InsertNewline.SetEnabled(true)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		FPS:    80 * time.Millisecond,
	}
	sp.Style = thinkingStyle

	if settings == nil {
		settings = config.Default()
	}

	changes, stop := engine.Subscribe()
	state := engine.Snapshot()
	ta.Placeholder = session.Placeholder(state.Phase, state.PlanAccepted)

	return model{
		engine:         engine,
		changes:        changes,
		stopSub:        stop,
		state:          state,
		settings:       settings,
		textarea:       ta,
		spinner:        sp,
		historyIndex:   -1,
		mdRenderer:     createMarkdownRenderer(defaultWidth),
		suggestions:    NewSuggestionState(),
		questionPrompt: NewQuestionPrompt(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, waitForChange(m.changes))
}

func (m *model) updateTextareaHeight() {
	lines := strings.Count(m.textarea.Value(), "\n") + 1
	m.textarea.SetHeight(min(max(lines, minTextareaHeight), maxTextareaHeight))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case sessionChangedMsg:
		return m.handleSessionChanged()

	case QuestionResponseMsg:
		return m.handleQuestionResponse(msg)

	case tea.KeyMsg:
		result, cmd := m.handleKeypress(msg)
		if cmd != nil || result != nil {
			if result != nil {
				return result, cmd
			}
			return m, cmd
		}

	case tea.WindowSizeMsg:
		return m.handleWindowResize(msg)

	case spinner.TickMsg:
		return m.handleSpinnerTick(msg)
	}

	var cmd tea.Cmd
	prevValue := m.textarea.Value()
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)

	if m.textarea.Value() != prevValue {
		m.updateTextareaHeight()
		m.suggestions.UpdateSuggestions(m.textarea.Value())
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if !m.ready {
		return "\n  Loading..."
	}

	chat := m.viewport.View()
	separator := separatorStyle.Render(strings.Repeat("─", m.width))

	if m.questionPrompt.IsActive() {
		return fmt.Sprintf("%s\n%s\n%s", chat, separator, m.questionPrompt.Render())
	}

	var sections []string
	sections = append(sections, chat)
	if todos := m.renderTodoList(); todos != "" {
		sections = append(sections, todos)
	}
	sections = append(sections, separator)
	if chips := m.renderMediaChips(); chips != "" {
		sections = append(sections, chips)
	}
	sections = append(sections, inputPromptStyle.Render("❯ ")+m.textarea.View())
	if suggestions := m.suggestions.Render(m.width); suggestions != "" {
		sections = append(sections, suggestions)
	}
	sections = append(sections, separator, m.renderStatus())

	return strings.Join(sections, "\n")
}

func (m *model) handleWindowResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.textarea.SetWidth(msg.Width - 4)
	m.mdRenderer = createMarkdownRenderer(msg.Width)
	m.questionPrompt.width = msg.Width

	if !m.ready {
		m.viewport = viewport.New(msg.Width, 1)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
	}
	m.updateViewportHeight()
	m.refresh(true)
	return m, nil
}

func (m *model) handleSpinnerTick(msg spinner.TickMsg) (tea.Model, tea.Cmd) {
	if !m.state.Streaming {
		return m, nil
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	m.refresh(false)
	return m, cmd
}

// updateViewportHeight gives the viewport whatever the input area leaves.
func (m *model) updateViewportHeight() {
	if m.width == 0 || m.height == 0 {
		return
	}
	inputH := m.textarea.Height()
	separatorH := 2
	statusH := 1
	extraH := heightOf(m.renderTodoList()) + heightOf(m.renderMediaChips())
	m.viewport.Height = max(m.height-inputH-separatorH-statusH-extraH, 1)
}

// refresh re-renders the timeline, following the bottom when the user has
// not scrolled away from it.
func (m *model) refresh(forceBottom bool) {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.updateViewportHeight()
	m.viewport.SetContent(m.renderTimeline())
	if forceBottom || atBottom {
		m.viewport.GotoBottom()
	}
}

// addNotice shows a local line under the timeline.
func (m *model) addNotice(text string) {
	if text == "" {
		return
	}
	m.notices = append(m.notices, text)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func heightOf(s string) int {
	if s == "" {
		return 0
	}
	return lipgloss.Height(s)
}
