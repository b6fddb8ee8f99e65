package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/yanmxa/genmotion/internal/session"
)

// sessionChangedMsg is delivered after the engine applied one or more inputs.
type sessionChangedMsg struct{}

// waitForChange blocks on the engine subscription.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return sessionChangedMsg{}
	}
}

func (m *model) handleSessionChanged() (tea.Model, tea.Cmd) {
	wasStreaming := m.state.Streaming
	m.state = m.engine.Snapshot()
	m.textarea.Placeholder = session.Placeholder(m.state.Phase, m.state.PlanAccepted)

	cmds := []tea.Cmd{waitForChange(m.changes)}
	if m.state.Streaming && !wasStreaming {
		cmds = append(cmds, m.spinner.Tick)
	}

	switch p := m.state.Phase.(type) {
	case session.Question:
		if !m.questionPrompt.IsActive() && p.Question != m.answered {
			m.questionPrompt.Show(p.Question, p.Options, m.width)
			m.answered = p.Question
		}
	default:
		m.answered = ""
		if m.questionPrompt.IsActive() {
			m.questionPrompt.Hide()
		}
	}

	m.refresh(false)
	return m, tea.Batch(cmds...)
}

func (m *model) handleQuestionResponse(msg QuestionResponseMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Cancelled:
		m.addNotice("Question dismissed. Type an answer any time.")
	case msg.Custom:
		m.send(session.Submit{Text: msg.Answer})
	default:
		m.send(session.SelectStyle{Style: msg.Answer})
	}
	m.refresh(true)
	return m, nil
}

// send queues an input on the engine, reporting a closed engine as a notice.
func (m *model) send(in session.Input) {
	if err := m.engine.Send(in); err != nil {
		m.addNotice("Error: " + err.Error())
	}
}
