package tui

import (
	"regexp"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/yanmxa/genmotion/internal/media"
	"github.com/yanmxa/genmotion/internal/session"
)

// mediaRefPattern matches @path references to media files in a prompt.
var mediaRefPattern = regexp.MustCompile(`@([^\s@]+\.(?i:png|jpe?g|webp|gif|mp4|webm|mov))`)

func (m *model) handleKeypress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.questionPrompt.IsActive() {
		switch msg.Type {
		case tea.KeyPgUp, tea.KeyCtrlU:
			m.viewport.HalfViewUp()
			return m, nil
		case tea.KeyPgDown, tea.KeyCtrlD:
			m.viewport.HalfViewDown()
			return m, nil
		}
		return m, m.questionPrompt.HandleKeypress(msg)
	}

	if m.suggestions.IsVisible() {
		switch msg.Type {
		case tea.KeyUp, tea.KeyCtrlP:
			m.suggestions.MoveUp()
			return m, nil
		case tea.KeyDown, tea.KeyCtrlN:
			m.suggestions.MoveDown()
			return m, nil
		case tea.KeyTab, tea.KeyEnter:
			if selected := m.suggestions.GetSelected(); selected != "" {
				m.textarea.SetValue(selected + " ")
				m.textarea.CursorEnd()
				m.suggestions.Hide()
			}
			return m, nil
		case tea.KeyEsc:
			m.suggestions.Hide()
			return m, nil
		}
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		if m.textarea.Value() != "" {
			m.textarea.Reset()
			m.textarea.SetHeight(minTextareaHeight)
			m.historyIndex = -1
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEsc:
		if m.state.Streaming {
			m.send(session.Cancel{})
			return m, nil
		}
		return m, nil

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil

	case tea.KeyUp:
		if m.textarea.Line() == 0 {
			return m.handleHistoryUp()
		}

	case tea.KeyDown:
		lines := strings.Count(m.textarea.Value(), "\n")
		if m.textarea.Line() == lines {
			return m.handleHistoryDown()
		}

	case tea.KeyEnter:
		if msg.Alt {
			m.textarea.InsertString("\n")
			m.updateTextareaHeight()
			return m, nil
		}
		return m.handleSubmit()
	}

	// Return nil, nil to let textarea handle the input
	return nil, nil
}

func (m *model) handleHistoryUp() (tea.Model, tea.Cmd) {
	if len(m.inputHistory) == 0 {
		return m, nil
	}
	if m.historyIndex == -1 {
		m.tempInput = m.textarea.Value()
		m.historyIndex = len(m.inputHistory) - 1
	} else if m.historyIndex > 0 {
		m.historyIndex--
	}
	m.textarea.SetValue(m.inputHistory[m.historyIndex])
	m.textarea.CursorEnd()
	m.updateTextareaHeight()
	return m, nil
}

func (m *model) handleHistoryDown() (tea.Model, tea.Cmd) {
	if m.historyIndex == -1 {
		return m, nil
	}
	if m.historyIndex < len(m.inputHistory)-1 {
		m.historyIndex++
		m.textarea.SetValue(m.inputHistory[m.historyIndex])
	} else {
		m.historyIndex = -1
		m.textarea.SetValue(m.tempInput)
	}
	m.textarea.CursorEnd()
	m.updateTextareaHeight()
	return m, nil
}

func (m *model) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return m, nil
	}

	m.inputHistory = append(m.inputHistory, input)
	m.historyIndex = -1
	m.textarea.Reset()
	m.textarea.SetHeight(minTextareaHeight)
	m.suggestions.Reset()

	if handled, cmd := m.executeCommand(input); handled {
		m.refresh(true)
		return m, cmd
	}

	text := m.attachReferencedMedia(input)
	if text == "" {
		m.refresh(true)
		return m, nil
	}
	m.send(session.Submit{Text: text})
	m.refresh(true)
	return m, nil
}

// attachReferencedMedia attaches every @file reference in input and returns
// the prompt with the references that loaded removed.
func (m *model) attachReferencedMedia(input string) string {
	text := mediaRefPattern.ReplaceAllStringFunc(input, func(ref string) string {
		entry, err := media.LoadFile(ref[1:], m.engine.Blobs())
		if err != nil {
			m.addNotice("Error: " + err.Error())
			return ref
		}
		m.send(session.AttachMedia{Entry: entry})
		m.addNotice("Attached " + entry.FileName)
		return ""
	})
	if text == input {
		return input
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "  ", " "))
}
