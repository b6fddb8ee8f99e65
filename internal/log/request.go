package log

import (
	"fmt"
	"strings"
)

// RequestSummary is the loggable shape of one outgoing stream turn.
type RequestSummary struct {
	NodeID    string
	Phase     string
	Prompt    string
	History   int
	Media     int
	SandboxID string
	Todos     int
}

// LogRequest logs an outgoing stream turn in human-readable format
func LogRequest(turn int, req RequestSummary) {
	if !enabled {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "───────────────────────────── Turn %d ─────────────────────────────\n", turn)
	fmt.Fprintf(&sb, ">>> [%s] phase=%s history=%d media=%d todos=%d", req.NodeID, req.Phase, req.History, req.Media, req.Todos)
	if req.SandboxID != "" {
		fmt.Fprintf(&sb, " sandbox=%s", req.SandboxID)
	}
	sb.WriteString("\n")
	if req.Prompt != "" {
		fmt.Fprintf(&sb, "    Prompt: %s\n", escapeForLog(req.Prompt))
	}

	logger.Info(sb.String())
}
