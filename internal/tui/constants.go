package tui

const (
	defaultWidth      = 80
	maxTextareaHeight = 6
	minTextareaHeight = 1
	minWrapWidth      = 40
	maxVisibleTodos   = 8
	maxThinkingLines  = 3
	maxNotices        = 5
)
