package toolevent

var friendly = map[string]string{
	ToolSandboxCreate: "Setting up the workspace, trying again…",
	ToolWriteFile:     "Saving project files, retrying…",
	ToolReadFile:      "Checking project files…",
	ToolRunCommand:    "Installing dependencies, this can take a moment…",
	ToolStartPreview:  "Starting the live preview, one more try…",
	ToolRenderPreview: "Rendering the preview, retrying…",
	ToolRenderFinal:   "Rendering the final video, retrying…",
	ToolGenerateCode:  "Refining the animation code…",
	ToolAnalyzePrompt: "Reading your request again…",
	ToolGeneratePlan:  "Reworking the plan…",
}

// FriendlyStatus returns a short, non-technical status line for a tool
// that failed and is being retried by the agent.
func FriendlyStatus(tool string) string {
	if s, ok := friendly[tool]; ok {
		return s
	}
	return "Working on it…"
}

// RunningLabel returns the label shown while a tool is running.
func RunningLabel(tool string) string {
	switch tool {
	case ToolAnalyzePrompt:
		return "Analyzing your request"
	case ToolGeneratePlan:
		return "Drafting a plan"
	case ToolSandboxCreate:
		return "Preparing the workspace"
	case ToolWriteFile:
		return "Writing files"
	case ToolReadFile:
		return "Reading files"
	case ToolRunCommand:
		return "Running a command"
	case ToolStartPreview:
		return "Starting preview"
	case ToolRenderPreview:
		return "Rendering preview"
	case ToolRenderFinal:
		return "Rendering final video"
	case ToolGenerateCode:
		return "Writing animation code"
	}
	return tool
}
