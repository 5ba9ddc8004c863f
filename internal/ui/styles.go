package ui

import "fmt"

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorGood   = 71  // green
	colorWarn   = 179 // amber
	colorBad    = 167 // red
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderStatus colors a status word by what it means for an operator:
// green for healthy states, amber for ones that need a look, red for
// failures. Unknown words are left plain.
func RenderStatus(s string) string {
	switch s {
	case "healthy", "active", "completed", "success", "resolved", "SERVING", "published":
		return render(colorGood, s)
	case "degraded", "pending", "in_progress", "acknowledged", "inactive", "medium", "low":
		return render(colorWarn, s)
	case "failed", "error", "suspended", "open", "high", "critical", "NOT_SERVING":
		return render(colorBad, s)
	}
	return s
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// EnableColor turns color output on or off according to ShouldUseColor.
func EnableColor() {
	noColor = !ShouldUseColor()
}
