package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/yanmxa/genmotion/internal/config"
	"github.com/yanmxa/genmotion/internal/media"
	"github.com/yanmxa/genmotion/internal/session"
)

// Command represents a slash command
type Command struct {
	Name        string
	Description string
	Handler     CommandHandler
}

// CommandHandler handles a slash command. The returned text is shown as a notice.
type CommandHandler func(m *model, args string) (string, error)

// getCommandRegistry returns the command registry
func getCommandRegistry() map[string]Command {
	return map[string]Command{
		"accept": {
			Name:        "accept",
			Description: "Accept the plan or the current preview",
			Handler:     handleAcceptCommand,
		},
		"regenerate": {
			Name:        "regenerate",
			Description: "Render the accepted plan again",
			Handler:     sendCommand(session.Regenerate{}, "Regenerating"),
		},
		"retry": {
			Name:        "retry",
			Description: "Retry after a failure",
			Handler:     sendCommand(session.Retry{}, "Retrying"),
		},
		"cancel": {
			Name:        "cancel",
			Description: "Stop the running turn",
			Handler:     sendCommand(session.Cancel{}, ""),
		},
		"reset": {
			Name:        "reset",
			Description: "Start over, keeping attached media",
			Handler:     sendCommand(session.Reset{}, "Session reset"),
		},
		"attach": {
			Name:        "attach",
			Description: "Attach an image or video: /attach <path>",
			Handler:     handleAttachCommand,
		},
		"detach": {
			Name:        "detach",
			Description: "Remove an attachment: /detach <number>",
			Handler:     handleDetachCommand,
		},
		"style": {
			Name:        "style",
			Description: "Set the visual style: /style <name> [--save]",
			Handler:     handleStyleCommand,
		},
		"help": {
			Name:        "help",
			Description: "Show available commands",
			Handler:     handleHelpCommand,
		},
	}
}

// GetMatchingCommands returns the commands whose name starts with the typed
// prefix, sorted by name.
func GetMatchingCommands(input string) []Command {
	name, _, _ := strings.Cut(strings.TrimPrefix(strings.TrimSpace(input), "/"), " ")
	name = strings.ToLower(name)

	var matches []Command
	for _, cmd := range getCommandRegistry() {
		if strings.HasPrefix(cmd.Name, name) {
			matches = append(matches, cmd)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	return matches
}

// ParseCommand splits "/name args" into its parts.
func ParseCommand(input string) (name, args string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", "", false
	}
	name, args, _ = strings.Cut(input[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(args), name != ""
}

// executeCommand runs a slash command and reports whether input was one.
func (m *model) executeCommand(input string) (bool, tea.Cmd) {
	name, args, ok := ParseCommand(input)
	if !ok {
		return false, nil
	}
	if name == "exit" || name == "quit" {
		return true, tea.Quit
	}

	cmd, found := getCommandRegistry()[name]
	if !found {
		m.addNotice(fmt.Sprintf("Unknown command: /%s (try /help)", name))
		return true, nil
	}
	result, err := cmd.Handler(m, args)
	if err != nil {
		m.addNotice("Error: " + err.Error())
		return true, nil
	}
	m.addNotice(result)
	return true, nil
}

func sendCommand(in session.Input, notice string) CommandHandler {
	return func(m *model, _ string) (string, error) {
		if err := m.engine.Send(in); err != nil {
			return "", err
		}
		return notice, nil
	}
}

func handleAcceptCommand(m *model, _ string) (string, error) {
	var in session.Input
	switch m.state.Phase.(type) {
	case session.PlanReview:
		in = session.AcceptPlan{}
	case session.Preview:
		in = session.AcceptPreview{}
	default:
		return "", fmt.Errorf("nothing to accept while %s", m.state.Phase.Kind())
	}
	if err := m.engine.Send(in); err != nil {
		return "", err
	}
	return "", nil
}

func handleAttachCommand(m *model, args string) (string, error) {
	if args == "" {
		return "", fmt.Errorf("usage: /attach <path>")
	}
	entry, err := media.LoadFile(args, m.engine.Blobs())
	if err != nil {
		return "", err
	}
	if err := m.engine.Send(session.AttachMedia{Entry: entry}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Attached %s", entry.FileName), nil
}

func handleDetachCommand(m *model, args string) (string, error) {
	n, err := strconv.Atoi(args)
	if err != nil || n < 1 || n > len(m.state.Media) {
		return "", fmt.Errorf("usage: /detach <number between 1 and %d>", len(m.state.Media))
	}
	entry := m.state.Media[n-1]
	if entry.Source != media.SourceUpload {
		return "", fmt.Errorf("attachment %d comes from a canvas connection; remove the edge instead", n)
	}
	if err := m.engine.Send(session.RemoveMedia{ID: entry.ID}); err != nil {
		return "", err
	}
	return "Removed " + mediaLabel(entry), nil
}

func handleStyleCommand(m *model, args string) (string, error) {
	style, save := args, false
	if rest, ok := strings.CutSuffix(args, "--save"); ok {
		style, save = strings.TrimSpace(rest), true
	}
	if style == "" {
		return "", fmt.Errorf("usage: /style <name> [--save]")
	}
	if err := m.engine.Send(session.SelectStyle{Style: style}); err != nil {
		return "", err
	}
	if save {
		if err := config.SaveStyle(style, false); err != nil {
			return "", fmt.Errorf("failed to save style: %w", err)
		}
		return fmt.Sprintf("Style set to %s and saved as the project default", style), nil
	}
	return "Style set to " + style, nil
}

func handleHelpCommand(_ *model, _ string) (string, error) {
	var sb strings.Builder
	sb.WriteString("Commands:")
	for _, cmd := range GetMatchingCommands("/") {
		sb.WriteString(fmt.Sprintf("\n  /%-11s %s", cmd.Name, cmd.Description))
	}
	sb.WriteString("\n  /exit        Quit")
	return sb.String(), nil
}
