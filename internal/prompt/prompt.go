// Package prompt phrases the instruction sent with each kind of turn.
// Templates live in prompts/ and are embedded at build time.
package prompt

import (
	"embed"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/yanmxa/genmotion/internal/log"
	"github.com/yanmxa/genmotion/internal/message"
	"github.com/yanmxa/genmotion/internal/plan"
)

//go:embed prompts/*.txt
var promptFS embed.FS

var templates = template.Must(template.ParseFS(promptFS, "prompts/*.txt"))

// Data is what the templates can reference.
type Data struct {
	Prompt    string
	Style     string
	SandboxID string
	Plan      *plan.Plan
	Todos     []message.Todo
}

// Outline is the plain-text rendering of the plan.
func (d Data) Outline() string {
	return d.Plan.Outline()
}

// Analyze asks the agent to either clarify or plan.
func Analyze(d Data) string { return render("analyze.txt", d) }

// Revise asks for a revised plan.
func Revise(d Data) string { return render("revise.txt", d) }

// Execute hands over the approved plan and todo contract.
func Execute(d Data) string { return render("execute.txt", d) }

// Retry asks the agent to diagnose and retry without re-planning.
func Retry(d Data) string { return render("retry.txt", d) }

// Regenerate asks for every step to be executed again.
func Regenerate(d Data) string { return render("regenerate.txt", d) }

func render(name string, d Data) string {
	var sb strings.Builder
	if err := templates.ExecuteTemplate(&sb, name, d); err != nil {
		log.Logger().Error("failed to render prompt", zap.String("template", name), zap.Error(err))
		return d.Prompt
	}
	return strings.TrimSpace(sb.String())
}
