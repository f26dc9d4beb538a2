package display

import "github.com/fatih/color"

// Box drawing characters
const (
	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxHorizontal  = "─"
	BoxVertical    = "│"
	SectionBreak   = "━"
)

// Status symbols
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolResume  = "↻"
	SymbolPending = "○"
	SymbolPartial = "◐"
)

// IndentClaude is the indentation for Claude output
const IndentClaude = "  "

// Gutter markers distinguish assistant output from the Memory Store's
// post-session analysis in the scrolling session log.
const (
	GutterClaude   = "▸"
	GutterDot      = "·"
	GutterAnalysis = "◆"
)

// Theme holds all color functions for consistent styling
type Theme struct {
	// Orchestrator output (prominent)
	OrchestratorBorder func(a ...interface{}) string
	OrchestratorLabel  func(a ...interface{}) string
	OrchestratorText   func(a ...interface{}) string

	// Claude output (subdued)
	ClaudeTimestamp func(a ...interface{}) string
	ClaudeText      func(a ...interface{}) string
	ClaudeToolCount func(a ...interface{}) string

	// Status indicators
	Success func(a ...interface{}) string
	Error   func(a ...interface{}) string
	Warning func(a ...interface{}) string
	Info    func(a ...interface{}) string

	// Structural elements
	Bold      func(a ...interface{}) string
	Dim       func(a ...interface{}) string
	Separator func(a ...interface{}) string

	// Post-session analysis (Memory Store extraction, backpressure summary)
	AnalysisGutter func(a ...interface{}) string
	AnalysisText   func(a ...interface{}) string
}

// DefaultTheme creates the default color theme
func DefaultTheme() *Theme {
	return &Theme{
		// Orchestrator output - bright cyan for visibility
		OrchestratorBorder: color.New(color.FgCyan).SprintFunc(),
		OrchestratorLabel:  color.New(color.FgCyan, color.Bold).SprintFunc(),
		OrchestratorText:   color.New(color.FgWhite).SprintFunc(),

		// Claude output - dimmer/gray to distinguish from the orchestrator
		ClaudeTimestamp: color.New(color.FgHiBlack).SprintFunc(),
		ClaudeText:      color.New(color.FgWhite).SprintFunc(),
		ClaudeToolCount: color.New(color.FgHiBlack).SprintFunc(),

		// Status indicators
		Success: color.New(color.FgGreen).SprintFunc(),
		Error:   color.New(color.FgRed).SprintFunc(),
		Warning: color.New(color.FgYellow).SprintFunc(),
		Info:    color.New(color.FgCyan).SprintFunc(),

		// Structural
		Bold:      color.New(color.Bold).SprintFunc(),
		Dim:       color.New(color.FgHiBlack).SprintFunc(),
		Separator: color.New(color.FgCyan).SprintFunc(),

		// Post-session analysis - magenta to distinguish from both orchestration and assistant output
		AnalysisGutter: color.New(color.FgMagenta).SprintFunc(),
		AnalysisText:   color.New(color.FgWhite).SprintFunc(),
	}
}

// NoColorTheme creates a theme without colors (for --no-color flag or non-TTY)
func NoColorTheme() *Theme {
	identity := func(a ...interface{}) string {
		if len(a) == 0 {
			return ""
		}
		return a[0].(string)
	}
	return &Theme{
		OrchestratorBorder: identity,
		OrchestratorLabel:  identity,
		OrchestratorText:   identity,
		ClaudeTimestamp: identity,
		ClaudeText:      identity,
		ClaudeToolCount: identity,
		Success:         identity,
		Error:           identity,
		Warning:         identity,
		Info:            identity,
		Bold:            identity,
		Dim:             identity,
		Separator:       identity,
		AnalysisGutter:  identity,
		AnalysisText:    identity,
	}
}
