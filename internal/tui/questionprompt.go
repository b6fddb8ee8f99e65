package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// QuestionPrompt shows a clarifying question from the agent with its options
// and a free-text "Other" entry.
type QuestionPrompt struct {
	active         bool
	question       string
	options        []string
	width          int
	selectedOption int
	customInput    textinput.Model
	showingCustom  bool
}

// NewQuestionPrompt creates a new QuestionPrompt
func NewQuestionPrompt() *QuestionPrompt {
	ti := textinput.New()
	ti.Placeholder = "Type your answer..."
	ti.CharLimit = 200
	ti.Width = 50

	return &QuestionPrompt{customInput: ti}
}

// Show displays the prompt for question.
func (p *QuestionPrompt) Show(question string, options []string, width int) {
	p.active = true
	p.question = question
	p.options = append([]string(nil), options...)
	p.width = width
	p.selectedOption = 0
	p.showingCustom = len(options) == 0
	p.customInput.Reset()
	if p.showingCustom {
		p.customInput.Focus()
	}
}

// Hide hides the question prompt
func (p *QuestionPrompt) Hide() {
	p.active = false
	p.showingCustom = false
	p.customInput.Blur()
}

// IsActive returns whether the prompt is visible
func (p *QuestionPrompt) IsActive() bool {
	return p.active
}

// QuestionResponseMsg is sent when the user answers or dismisses the prompt.
// Custom is set when Answer was typed rather than picked.
type QuestionResponseMsg struct {
	Answer    string
	Custom    bool
	Cancelled bool
}

// HandleKeypress handles keyboard input for the question prompt
func (p *QuestionPrompt) HandleKeypress(msg tea.KeyMsg) tea.Cmd {
	if !p.active {
		return nil
	}

	if p.showingCustom {
		switch msg.Type {
		case tea.KeyEnter:
			return p.submitCustomInput()
		case tea.KeyEsc:
			if len(p.options) == 0 {
				return p.cancel()
			}
			p.showingCustom = false
			p.customInput.Blur()
			return nil
		default:
			var cmd tea.Cmd
			p.customInput, cmd = p.customInput.Update(msg)
			return cmd
		}
	}

	numOptions := len(p.options) + 1 // +1 for "Other"

	switch msg.Type {
	case tea.KeyUp, tea.KeyCtrlP:
		if p.selectedOption > 0 {
			p.selectedOption--
		}
		return nil

	case tea.KeyDown, tea.KeyCtrlN:
		if p.selectedOption < numOptions-1 {
			p.selectedOption++
		}
		return nil

	case tea.KeyEnter:
		return p.choose(p.selectedOption)

	case tea.KeyEsc:
		return p.cancel()
	}

	// Number key shortcuts
	key := msg.String()
	if len(key) == 1 && key >= "1" && key <= "9" {
		idx := int(key[0] - '1')
		if idx < numOptions {
			p.selectedOption = idx
			return p.choose(idx)
		}
	}

	return nil
}

func (p *QuestionPrompt) choose(idx int) tea.Cmd {
	if idx == len(p.options) {
		p.showingCustom = true
		p.customInput.Focus()
		return nil
	}
	answer := p.options[idx]
	p.Hide()
	return func() tea.Msg {
		return QuestionResponseMsg{Answer: answer}
	}
}

func (p *QuestionPrompt) cancel() tea.Cmd {
	p.Hide()
	return func() tea.Msg {
		return QuestionResponseMsg{Cancelled: true}
	}
}

// submitCustomInput handles submitting custom "Other" input
func (p *QuestionPrompt) submitCustomInput() tea.Cmd {
	text := strings.TrimSpace(p.customInput.Value())
	if text == "" {
		return nil
	}
	p.Hide()
	return func() tea.Msg {
		return QuestionResponseMsg{Answer: text, Custom: true}
	}
}

// Question prompt styles (initialized dynamically based on theme)
var (
	questionSeparatorStyle lipgloss.Style
	questionHeaderStyle    lipgloss.Style
	questionTextStyle      lipgloss.Style
	optionSelectedStyle    lipgloss.Style
	optionUnselectedStyle  lipgloss.Style
	optionDescStyle        lipgloss.Style
	questionFooterStyle    lipgloss.Style
)

func init() {
	questionSeparatorStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Separator)

	questionHeaderStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Primary).
		Bold(true).
		Padding(0, 1).
		Background(CurrentTheme.Background)

	questionTextStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Text)

	optionSelectedStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Success).
		Bold(true)

	optionUnselectedStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.TextDim)

	optionDescStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Muted).
		Italic(true)

	questionFooterStyle = lipgloss.NewStyle().
		Foreground(CurrentTheme.Muted)
}

// Render renders the question prompt
func (p *QuestionPrompt) Render() string {
	if !p.active {
		return ""
	}

	var sb strings.Builder
	contentWidth := max(p.width-2, 40)

	sb.WriteString(" ")
	sb.WriteString(questionHeaderStyle.Render("Question"))
	sb.WriteString("\n ")
	sb.WriteString(questionTextStyle.Render(p.question))
	sb.WriteString("\n\n")

	for i, opt := range p.options {
		sb.WriteString(p.renderOption(i, opt))
		sb.WriteString("\n")
	}
	sb.WriteString(p.renderOption(len(p.options), "Other"))
	sb.WriteString(" - ")
	sb.WriteString(optionDescStyle.Render("Type custom response"))
	sb.WriteString("\n")

	if p.showingCustom {
		sb.WriteString("\n   ")
		sb.WriteString(p.customInput.View())
		sb.WriteString("\n")
	}

	sb.WriteString(questionSeparatorStyle.Render(strings.Repeat("╌", contentWidth)))
	sb.WriteString("\n")
	footer := " " + strings.Join([]string{"↑/↓ navigate", "Enter confirm", "Esc dismiss"}, " · ")
	sb.WriteString(questionFooterStyle.Render(footer))

	return sb.String()
}

func (p *QuestionPrompt) renderOption(i int, label string) string {
	cursor, prefix, style := "   ", "( )", optionUnselectedStyle
	if i == p.selectedOption {
		cursor, prefix, style = " ❯ ", "(●)", optionSelectedStyle
	}
	return style.Render(fmt.Sprintf("%s%s %d. %s", cursor, prefix, i+1, label))
}
