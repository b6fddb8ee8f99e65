package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/yanmxa/genmotion/internal/message"
)

// renderTodoList renders the execution checklist above the input area.
// It disappears once every step is done and the agent is idle.
func (m model) renderTodoList() string {
	todos := m.state.Todos()
	if len(todos) == 0 {
		return ""
	}

	completed := 0
	for _, t := range todos {
		if t.Status == message.TodoDone {
			completed++
		}
	}
	if completed == len(todos) && !m.state.Streaming {
		return ""
	}

	var sb strings.Builder
	progressStyle := lipgloss.NewStyle().Foreground(CurrentTheme.Muted)
	headerStyle := lipgloss.NewStyle().Foreground(CurrentTheme.Accent).Bold(true)
	sb.WriteString(headerStyle.Render("  Steps") + " ")
	sb.WriteString(progressStyle.Render(fmt.Sprintf("%d/%d", completed, len(todos))))

	for i, t := range todos {
		if i >= maxVisibleTodos {
			sb.WriteString("\n" + progressStyle.Render(fmt.Sprintf("  ... and %d more", len(todos)-i)))
			break
		}
		sb.WriteString("\n" + m.renderTodo(t))
	}
	return sb.String()
}

func (m model) renderTodo(t message.Todo) string {
	label := truncateText(t.Label, m.width-6)
	switch t.Status {
	case message.TodoDone:
		return todoDoneStyle.Render("  ✓ " + label)
	case message.TodoActive:
		return todoActiveStyle.Render("  " + m.spinner.View() + " " + label)
	default:
		return todoPendingStyle.Render("  ☐ " + label)
	}
}
