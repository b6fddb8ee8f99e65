package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func respond(t *testing.T, cmd tea.Cmd) QuestionResponseMsg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg, ok := cmd().(QuestionResponseMsg)
	if !ok {
		t.Fatalf("expected QuestionResponseMsg, got %T", cmd())
	}
	return msg
}

func TestQuestionPromptPicksOption(t *testing.T) {
	p := NewQuestionPrompt()
	p.Show("Which style?", []string{"minimal", "neon", "retro"}, 80)

	p.HandleKeypress(tea.KeyMsg{Type: tea.KeyDown})
	got := respond(t, p.HandleKeypress(tea.KeyMsg{Type: tea.KeyEnter}))
	if got.Answer != "neon" || got.Custom || got.Cancelled {
		t.Errorf("response = %+v, want neon", got)
	}
	if p.IsActive() {
		t.Error("prompt should hide after answering")
	}
}

func TestQuestionPromptNumberShortcut(t *testing.T) {
	p := NewQuestionPrompt()
	p.Show("Which style?", []string{"minimal", "neon", "retro"}, 80)

	got := respond(t, p.HandleKeypress(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("3")}))
	if got.Answer != "retro" {
		t.Errorf("answer = %q, want retro", got.Answer)
	}
}

func TestQuestionPromptCancel(t *testing.T) {
	p := NewQuestionPrompt()
	p.Show("Which style?", []string{"minimal"}, 80)

	got := respond(t, p.HandleKeypress(tea.KeyMsg{Type: tea.KeyEsc}))
	if !got.Cancelled {
		t.Errorf("response = %+v, want cancelled", got)
	}
}

func TestQuestionPromptCustomAnswer(t *testing.T) {
	p := NewQuestionPrompt()
	p.Show("Which style?", []string{"minimal"}, 80)

	// "Other" sits after the options.
	if cmd := p.HandleKeypress(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2")}); cmd != nil {
		t.Fatal("choosing Other should open the text input, not answer")
	}
	if !p.showingCustom {
		t.Fatal("expected the custom input")
	}

	if cmd := p.HandleKeypress(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("an empty custom answer should not submit")
	}

	p.customInput.SetValue("  hand drawn  ")
	got := respond(t, p.HandleKeypress(tea.KeyMsg{Type: tea.KeyEnter}))
	if got.Answer != "hand drawn" || !got.Custom {
		t.Errorf("response = %+v, want custom hand drawn", got)
	}
}

func TestQuestionPromptWithoutOptions(t *testing.T) {
	p := NewQuestionPrompt()
	p.Show("What should the title say?", nil, 80)
	if !p.showingCustom {
		t.Fatal("a question without options should go straight to text input")
	}
	got := respond(t, p.HandleKeypress(tea.KeyMsg{Type: tea.KeyEsc}))
	if !got.Cancelled {
		t.Errorf("esc should cancel, got %+v", got)
	}
}
