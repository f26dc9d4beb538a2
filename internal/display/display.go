// Package display provides unified output formatting for the rasen CLI.
// It visually separates orchestrator status lines from assistant output.
package display

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// Display handles all CLI output with visual hierarchy
type Display struct {
	theme     *Theme
	termWidth int
	noColor   bool
}

// TokenStats holds token usage info for display
type TokenStats struct {
	TotalTokens int
	Threshold   int
}

// New creates a new Display instance
func New() *Display {
	return NewWithOptions(false)
}

// NewWithOptions creates a Display with configuration
func NewWithOptions(noColor bool) *Display {
	d := &Display{
		termWidth: getTerminalWidth(),
		noColor:   noColor,
	}
	if noColor {
		d.theme = NoColorTheme()
	} else {
		d.theme = DefaultTheme()
	}
	return d
}

// getTerminalWidth returns the terminal width, defaulting to 80
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 40 {
		return 80
	}
	if width > 120 {
		return 120 // Cap at 120 for readability
	}
	return width
}

// Banner prints a boxed message under the default "RASEN" title.
func (d *Display) Banner(lines ...string) {
	d.Box("RASEN", lines...)
}

// Box prints a boxed message with a custom title
func (d *Display) Box(title string, lines ...string) {
	if len(lines) == 0 {
		return
	}

	width := d.termWidth - 2
	titleLen := len(title) + 4 // "─ TITLE "
	remainingWidth := width - titleLen

	// Top border: ┌─ RASEN ─────────────────────────┐
	topLine := BoxTopLeft + BoxHorizontal + " " + title + " " + strings.Repeat(BoxHorizontal, remainingWidth) + BoxTopRight
	fmt.Println(d.theme.OrchestratorBorder(topLine))

	// Content lines: │ text                            │
	for _, line := range lines {
		paddedLine := d.padRight(line, width-2)
		fmt.Println(d.theme.OrchestratorBorder(BoxVertical) + " " + d.theme.OrchestratorText(paddedLine) + " " + d.theme.OrchestratorBorder(BoxVertical))
	}

	// Bottom border: └─────────────────────────────────┘
	bottomLine := BoxBottomLeft + strings.Repeat(BoxHorizontal, width) + BoxBottomRight
	fmt.Println(d.theme.OrchestratorBorder(bottomLine))
}

// Status prints a single-line orchestrator status message (no box)
func (d *Display) Status(symbol, message string) {
	timestamp := time.Now().Format("[15:04:05]")
	fmt.Printf("%s %s %s\n",
		d.theme.OrchestratorBorder(timestamp),
		symbol,
		d.theme.OrchestratorText(message))
}

// Success prints a success message with green checkmark
func (d *Display) Success(message string) {
	d.Status(d.theme.Success(SymbolSuccess), message)
}

// Error prints an error message with red X
func (d *Display) Error(message string) {
	d.Status(d.theme.Error(SymbolError), message)
}

// Warning prints a warning message with yellow triangle
func (d *Display) Warning(message string) {
	d.Status(d.theme.Warning(SymbolWarning), message)
}

// Info prints an info message with cyan indicator
func (d *Display) Info(label, message string) {
	d.Status(d.theme.Info(label+":"), message)
}

// Resume prints a resume/bailout message with cyan arrow
func (d *Display) Resume(message string) {
	d.Status(d.theme.Info(SymbolResume), message)
}

// AssistantStart prints a header when an assistant session begins
func (d *Display) AssistantStart(role string) {
	timestamp := time.Now().Format("[15:04:05]")
	fmt.Printf("  %s %s Spawning %s session...\n",
		d.theme.Dim(timestamp),
		d.theme.ClaudeTimestamp(GutterClaude),
		role)
}

// wrapText wraps text to specified width, returns at most 5 lines
func (d *Display) wrapText(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		maxWidth = 80
	}

	text = strings.TrimSpace(text)
	if len(text) <= maxWidth {
		return []string{text}
	}

	var lines []string
	words := strings.Fields(text)
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len()+len(word)+1 > maxWidth {
			if currentLine.Len() > 0 {
				lines = append(lines, currentLine.String())
				currentLine.Reset()
			}
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	// Limit to 5 lines
	if len(lines) > 5 {
		lines = lines[:5]
		if len(lines[4]) > maxWidth-3 {
			lines[4] = lines[4][:maxWidth-3]
		}
		lines[4] = lines[4] + "..."
	}

	return lines
}

// Assistant prints one line of assistant output with a left gutter indicator
func (d *Display) Assistant(text string, toolCount int) {
	timestamp := time.Now().Format("[15:04:05]")
	gutter := d.theme.ClaudeTimestamp(GutterClaude)

	toolStr := ""
	if toolCount > 0 {
		toolStr = fmt.Sprintf(" %s", d.theme.ClaudeToolCount(fmt.Sprintf("[%d]", toolCount)))
	}

	lines := d.wrapText(text, d.termWidth-20)

	for i, line := range lines {
		if i == 0 {
			fmt.Printf("  %s %s%s %s\n", gutter, d.theme.Dim(timestamp), toolStr, d.theme.ClaudeText(line))
		} else {
			fmt.Printf("  %s %s%s\n", d.theme.ClaudeTimestamp(GutterDot), strings.Repeat(" ", 10), d.theme.ClaudeText(line))
		}
	}
}

// AssistantWithTokens prints assistant output annotated with token stats
func (d *Display) AssistantWithTokens(text string, toolCount int, tokens TokenStats) {
	timestamp := time.Now().Format("[15:04:05]")
	gutter := d.theme.ClaudeTimestamp(GutterClaude)

	toolStr := ""
	if toolCount > 0 {
		toolStr = fmt.Sprintf(" %s", d.theme.ClaudeToolCount(fmt.Sprintf("[%d]", toolCount)))
	}

	// Add token display: [42K/120K]
	tokenStr := fmt.Sprintf(" %s", d.theme.Dim(fmt.Sprintf("[%dK/%dK]", tokens.TotalTokens/1000, tokens.Threshold/1000)))

	lines := d.wrapText(text, d.termWidth-30)

	for i, line := range lines {
		if i == 0 {
			fmt.Printf("  %s %s%s%s %s\n", gutter, d.theme.Dim(timestamp), toolStr, tokenStr, d.theme.ClaudeText(line))
		} else {
			fmt.Printf("  %s %s%s\n", d.theme.ClaudeTimestamp(GutterDot), strings.Repeat(" ", 20), d.theme.ClaudeText(line))
		}
	}
}

// AssistantDone prints a session completion message (indented)
func (d *Display) AssistantDone(result string) {
	timestamp := time.Now().Format("[15:04:05]")
	line := fmt.Sprintf("%s%s %s %s",
		IndentClaude,
		d.theme.ClaudeTimestamp(timestamp),
		d.theme.ClaudeToolCount("[Done]"),
		d.theme.ClaudeText(result))
	fmt.Println(line)
}

// SubtaskStart prints the "WORKING ON" banner for the subtask a Coder
// session is about to pick up.
func (d *Display) SubtaskStart(id, description string) {
	banner := fmt.Sprintf(">>> SUBTASK %s: %s <<<", id, description)
	fmt.Printf("\n%s%s\n\n", IndentClaude, d.theme.OrchestratorLabel(banner))
}

// SectionBreak prints a horizontal separator for iteration boundaries
func (d *Display) SectionBreak() {
	width := d.termWidth
	fmt.Println(d.theme.Separator(strings.Repeat(SectionBreak, width)))
}

// Iteration prints the iteration banner with progress
func (d *Display) Iteration(current, max int, taskName string, completed, total int) {
	d.SectionBreak()
	line := fmt.Sprintf("Iteration %d/%d: %s (%d/%d subtasks done)",
		current, max, d.theme.Info(taskName), completed, total)
	fmt.Println(line)
	d.SectionBreak()
}

// RunHeader prints the loop driver's startup banner
func (d *Display) RunHeader(taskName string) {
	fmt.Println(d.theme.Bold(fmt.Sprintf("=== rasen run: %s ===", taskName)))
	fmt.Println()
}

// AllComplete prints the completion message
func (d *Display) AllComplete() {
	fmt.Printf("\n%s All subtasks complete!\n", d.theme.Success(SymbolSuccess))
}

// RunComplete prints the run's terminal message on success
func (d *Display) RunComplete(reason string, completed int) {
	fmt.Printf("\n%s %s\n", d.theme.Success(SymbolSuccess), reason)
	fmt.Printf("   %d subtasks completed.\n", completed)
}

// RunFailed prints the run's terminal message on a non-success reason
func (d *Display) RunFailed(reason string, err error, completed int) {
	fmt.Printf("\n%s TERMINATED: %s\n", d.theme.Error(SymbolError), reason)
	if err != nil {
		fmt.Printf("   Error: %v\n", err)
	}
	fmt.Printf("\n%d subtasks complete.\n", completed)
	fmt.Println("Run 'rasen status' for details.")
}

// MaxIterations prints the max iterations reached message
func (d *Display) MaxIterations(max int) {
	fmt.Printf("\nReached max iterations (%d). Run 'rasen resume' to continue.\n", max)
}

// Tokens prints token usage stats as a status line
func (d *Display) Tokens(total, input, output int) {
	line := fmt.Sprintf("Tokens: %d (in: %d, out: %d)", total, input, output)
	d.Status(d.theme.Dim(""), line)
}

// Duration prints execution duration
func (d *Display) Duration(dur time.Duration) {
	fmt.Printf("   Duration: %s\n", dur.Round(time.Second))
}

// Theme returns the current theme for external use
func (d *Display) Theme() *Theme {
	return d.theme
}

// CreateProgressBar renders a fixed-width bar of SymbolSuccess/SymbolPending
// runes showing completed out of total.
func CreateProgressBar(completed, total, width int) string {
	if total <= 0 || width <= 0 {
		return strings.Repeat(SymbolPending, width)
	}
	filled := completed * width / total
	if filled > width {
		filled = width
	}
	return strings.Repeat(SymbolSuccess, filled) + strings.Repeat(SymbolPending, width-filled)
}

// padRight pads a string to the specified width
func (d *Display) padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// Truncate truncates text to max length with ellipsis
func Truncate(s string, max int) string {
	s = CleanText(s)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// CleanText removes newlines and collapses spaces
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}

// AnalysisStart prints header when the Post-Session Processor begins
// extracting memory markers and backpressure evidence from a session.
func (d *Display) AnalysisStart(eventCount int) {
	timestamp := time.Now().Format("[15:04:05]")
	fmt.Printf("\n%s %s %s\n",
		d.theme.Dim(timestamp),
		d.theme.AnalysisGutter(GutterAnalysis),
		d.theme.AnalysisText(fmt.Sprintf("Processing %d events...", eventCount)))
}

// Analysis prints post-session analysis output with distinct styling
func (d *Display) Analysis(text string) {
	lines := d.wrapText(text, d.termWidth-15)
	for i, line := range lines {
		if i == 0 {
			fmt.Printf("  %s %s\n", d.theme.AnalysisGutter(GutterAnalysis), d.theme.AnalysisText(line))
		} else {
			fmt.Printf("  %s %s\n", d.theme.AnalysisGutter(GutterDot), d.theme.AnalysisText(line))
		}
	}
}

// AnalysisComplete prints post-session analysis completion
func (d *Display) AnalysisComplete(memoriesWritten, commitsRecorded int) {
	timestamp := time.Now().Format("[15:04:05]")
	fmt.Printf("%s %s %s\n",
		d.theme.Dim(timestamp),
		d.theme.AnalysisGutter(GutterAnalysis),
		d.theme.Success(fmt.Sprintf("Post-session complete (memories: %d, commits: %d)", memoriesWritten, commitsRecorded)))
}
