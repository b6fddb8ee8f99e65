package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/yanmxa/genmotion/internal/media"
	"github.com/yanmxa/genmotion/internal/message"
	"github.com/yanmxa/genmotion/internal/session"
	"github.com/yanmxa/genmotion/internal/timeline"
	"github.com/yanmxa/genmotion/internal/toolevent"
)

func createMarkdownRenderer(width int) *glamour.TermRenderer {
	wrapWidth := max(width-4, minWrapWidth)

	var compactStyle ansi.StyleConfig
	if lipgloss.HasDarkBackground() {
		compactStyle = styles.DarkStyleConfig
	} else {
		compactStyle = styles.LightStyleConfig
	}

	uintPtr := func(u uint) *uint { return &u }
	compactStyle.Document.Margin = uintPtr(0)
	compactStyle.Paragraph.Margin = uintPtr(0)
	compactStyle.CodeBlock.Margin = uintPtr(0)

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithStyles(compactStyle),
		glamour.WithWordWrap(wrapWidth),
	)
	return renderer
}

func (m model) renderWelcome() string {
	gradient := []lipgloss.Color{
		CurrentTheme.Primary,
		CurrentTheme.AI,
		CurrentTheme.Accent,
	}

	logoLines := []string{
		"   ╋   ╋   ╋╋╋   ╋╋╋╋╋  ╋   ╋╋╋   ╋   ╋",
		"   ╋╋ ╋╋  ╋   ╋    ╋    ╋  ╋   ╋  ╋╋  ╋",
		"   ╋ ╋ ╋  ╋   ╋    ╋    ╋  ╋   ╋  ╋ ╋ ╋",
		"   ╋   ╋  ╋   ╋    ╋    ╋  ╋   ╋  ╋  ╋╋",
		"   ╋   ╋   ╋╋╋     ╋    ╋   ╋╋╋   ╋   ╋",
	}

	subtitleStyle := lipgloss.NewStyle().Foreground(CurrentTheme.Muted)
	hintStyle := lipgloss.NewStyle().Foreground(CurrentTheme.TextDisabled)

	var sb strings.Builder
	sb.WriteString("\n")
	for i, line := range logoLines {
		style := lipgloss.NewStyle().Foreground(gradient[i%len(gradient)])
		sb.WriteString(style.Render(line) + "\n")
	}
	sb.WriteString("\n")
	sb.WriteString("   " + subtitleStyle.Render("Describe an animation, review the plan, then the video") + "\n")
	sb.WriteString("\n")
	sb.WriteString("   " + hintStyle.Render("Enter to send · Esc to stop · /help for commands · Ctrl+C exit") + "\n")

	return sb.String()
}

// renderTimeline renders the reconciled session followed by local notices.
func (m model) renderTimeline() string {
	items := timeline.Build(m.state)
	if len(items) == 0 && len(m.notices) == 0 {
		return m.renderWelcome()
	}

	versionNumbers := make(map[string]int, len(m.state.Versions))
	for i, v := range m.state.Versions {
		versionNumbers[v.ID] = i + 1
	}

	var sb strings.Builder
	for _, it := range items {
		var block string
		switch it.Kind {
		case timeline.KindMessage:
			block = m.renderMessage(it.Message)
		case timeline.KindTool:
			block = m.renderToolCall(it.ToolCall)
		case timeline.KindThinking:
			block = m.renderThinking(it.Thinking)
		case timeline.KindPlan:
			block = m.renderPlanCard(it.Plan)
		case timeline.KindVersion:
			block = m.renderVersion(it, versionNumbers[it.ID])
		}
		if block == "" {
			continue
		}
		sb.WriteString(block)
		sb.WriteString("\n")
	}

	if c, ok := m.state.Phase.(session.Complete); ok && c.VideoURL != "" {
		sb.WriteString(activeBadgeStyle.Render("✓ Final video: ") + c.VideoURL + "\n")
	}
	for _, n := range m.notices {
		sb.WriteString(noticeStyle.Render("  "+n) + "\n")
	}
	return sb.String()
}

func (m model) renderMessage(msg *message.Message) string {
	switch msg.Role {
	case message.RoleUser:
		return inputPromptStyle.Render("❯ ") + msg.Content + "\n"
	case message.RoleAssistant:
		if strings.TrimSpace(msg.Content) == "" {
			return ""
		}
		content := msg.Content
		if m.mdRenderer != nil {
			if rendered, err := m.mdRenderer.Render(msg.Content); err == nil {
				content = strings.Trim(rendered, "\n")
			}
		}
		return aiPromptStyle.Render("● ") + content + "\n"
	default:
		return systemMsgStyle.Render(msg.Content)
	}
}

func (m model) renderToolCall(tc *message.ToolCall) string {
	label := toolevent.RunningLabel(tc.ToolName)
	switch tc.Status {
	case message.ToolRunning:
		return toolRunningStyle.Render("  " + m.spinner.View() + " " + label + "…")
	case message.ToolFailed:
		return toolFailedStyle.Render("  ! " + toolevent.FriendlyStatus(tc.ToolName))
	default:
		return toolDoneStyle.Render("  ✓ " + label)
	}
}

func (m model) renderThinking(b *session.ThinkingBlock) string {
	label := b.Label
	if label == "" {
		label = "Thinking"
	}
	if !b.IsOpen() {
		first, _, _ := strings.Cut(strings.TrimSpace(b.Content), "\n")
		if first == "" {
			return thinkingStyle.Render("✻ " + label)
		}
		return thinkingStyle.Render("✻ "+label) + thinkingContentStyle.Render(truncateText(" "+first, m.width-len(label)-6))
	}

	var sb strings.Builder
	sb.WriteString(thinkingStyle.Render(m.spinner.View() + " " + label + "…"))
	lines := strings.Split(strings.TrimSpace(b.Content), "\n")
	if len(lines) > maxThinkingLines {
		lines = lines[len(lines)-maxThinkingLines:]
	}
	for _, line := range lines {
		if line == "" {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(thinkingContentStyle.Render(truncateText(line, m.width-4)))
	}
	return sb.String()
}

func (m model) renderPlanCard(card *timeline.PlanCard) string {
	p := card.Plan
	var sb strings.Builder

	title := p.Title
	if title == "" {
		title = "Animation plan"
	}
	sb.WriteString(planTitleStyle.Render(title))

	meta := fmt.Sprintf("%s · %d fps", formatSeconds(p.TotalDuration), p.FPS)
	if p.Style != "" {
		meta += " · " + p.Style
	}
	sb.WriteString("\n" + planMetaStyle.Render(meta) + "\n")

	for i, sc := range p.Scenes {
		sb.WriteString(fmt.Sprintf("\n%d. %s (%s)", i+1, sc.Title, formatSeconds(sc.Duration)))
		if sc.Description != "" {
			sb.WriteString("\n   " + planMetaStyle.Render(sc.Description))
		}
	}

	if card.Diff != "" {
		sb.WriteString("\n\n" + planMetaStyle.Render("Changes:") + "\n")
		sb.WriteString(renderDiff(card.Diff))
	}
	if p.Fallback {
		sb.WriteString("\n\n" + staleBadgeStyle.Render("Default plan: the agent did not propose one."))
	}

	sb.WriteString("\n\n")
	if card.Accepted {
		sb.WriteString(activeBadgeStyle.Render("✓ Accepted"))
	} else {
		sb.WriteString(planMetaStyle.Render("Type yes or /accept to start, or describe changes"))
	}

	width := min(max(m.width-2, minWrapWidth), 100)
	return planCardStyle.Width(width).Render(sb.String()) + "\n"
}

// renderDiff colors a unified diff, dropping the file headers.
func renderDiff(diff string) string {
	var lines []string
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			continue
		case strings.HasPrefix(line, "+"):
			lines = append(lines, diffAddedStyle.Render(line))
		case strings.HasPrefix(line, "-"):
			lines = append(lines, diffRemovedStyle.Render(line))
		case strings.HasPrefix(line, "@@"):
			continue
		default:
			lines = append(lines, planMetaStyle.Render(line))
		}
	}
	return strings.Join(lines, "\n")
}

func (m model) renderVersion(it timeline.Item, n int) string {
	v := it.Version
	style := versionOldStyle
	if it.Active {
		style = versionStyle
	}

	header := fmt.Sprintf("▶ Version %d", n)
	if v.Duration > 0 {
		header += " · " + formatSeconds(v.Duration)
	}
	var badges []string
	if v.Final {
		badges = append(badges, "final render")
	}
	if v.Persisted {
		badges = append(badges, "saved")
	}
	if len(badges) > 0 {
		header += " · " + strings.Join(badges, ", ")
	}

	var sb strings.Builder
	sb.WriteString(style.Render(header))
	sb.WriteString("\n  " + truncateText(v.VideoURL, m.width-4))
	switch {
	case it.Stale:
		sb.WriteString("\n  " + staleBadgeStyle.Render("Outdated: this preview predates your last message"))
	case it.Active:
		if _, ok := m.state.Phase.(session.Preview); ok {
			sb.WriteString("\n  " + activeBadgeStyle.Render("/accept") + planMetaStyle.Render(" to finalize · ") +
				activeBadgeStyle.Render("/regenerate") + planMetaStyle.Render(" to render again"))
		}
	}
	return sb.String() + "\n"
}

// renderStatus renders the line under the input box.
func (m model) renderStatus() string {
	parts := []string{planMetaStyle.Render(" " + string(m.state.Phase.Kind()))}

	if exec := session.ExecutionOf(m.state.Phase); exec != nil && exec.Label != "" && m.state.Streaming {
		parts = append(parts, toolRunningStyle.Render(exec.Label))
	}
	if err := m.state.Error(); err != nil {
		msg := errorStyle.Render(err.Message)
		if err.CanRetry {
			msg += planMetaStyle.Render(" · /retry")
		}
		parts = append(parts, msg)
	}
	if m.state.Style != "" {
		parts = append(parts, planMetaStyle.Render("style: "+m.state.Style))
	}
	if m.state.Streaming {
		parts = append(parts, planMetaStyle.Render("esc to stop"))
	}
	return strings.Join(parts, planMetaStyle.Render("  ·  "))
}

// renderMediaChips lists the attachments sent with the next turn.
func (m model) renderMediaChips() string {
	if len(m.state.Media) == 0 {
		return ""
	}
	chips := make([]string, len(m.state.Media))
	for i, e := range m.state.Media {
		chips[i] = mediaChipStyle.Render(fmt.Sprintf("[%d] %s", i+1, mediaLabel(e)))
	}
	return "  " + strings.Join(chips, " ") + mediaHintStyle.Render("  /detach <n> to remove")
}

func mediaLabel(e media.Entry) string {
	switch {
	case e.FileName != "":
		return fmt.Sprintf("%s %s", e.Type, e.FileName)
	case e.Source == media.SourceEdge:
		return fmt.Sprintf("%s from %s", e.Type, e.NodeID)
	}
	return string(e.Type)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64) + "s"
}

// truncateText shortens text to width terminal columns with an ellipsis.
// Uses runewidth so wide characters count as two columns.
func truncateText(text string, width int) string {
	if width <= 0 || runewidth.StringWidth(text) <= width {
		return text
	}
	if width <= 3 {
		return runewidth.Truncate(text, width, "")
	}
	return runewidth.Truncate(text, width, "...")
}
