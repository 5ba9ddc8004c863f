package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextmonth/smartsite/internal/ui"
)

// helpRule restyles the parts of Cobra's help text matched by re. group
// selects the submatch to style; 0 styles the whole match.
type helpRule struct {
	re    *regexp.Regexp
	group int
	style func(string) string
}

var helpRules = []helpRule{
	// Section headers such as "Administration:" or "Flags:".
	{regexp.MustCompile(`(?m)^([A-Z][^\n]*:)[ \t]*$`), 1, ui.RenderAccent},
	// Command names in the command list.
	{regexp.MustCompile(`(?m)^  (\S+)  `), 1, ui.RenderCommand},
	// Flag value types: "--url string", "--limit int".
	{regexp.MustCompile(`--?\S+\s+(string|int|int64|duration|float64|stringSlice)\b`), 1, ui.RenderMuted},
	{regexp.MustCompile(`\(default [^)]*\)`), 0, ui.RenderMuted},
}

// colorizedHelpFunc returns a Cobra help function that post-processes the
// default help text with ANSI colors when the terminal supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if !ui.ShouldUseColor() || noColor {
			_ = cmd.Usage()
			return
		}
		orig := cmd.OutOrStdout()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(orig)
		fmt.Fprint(orig, colorizeHelp(buf.String()))
	}
}

func colorizeHelp(s string) string {
	for _, rule := range helpRules {
		s = rule.re.ReplaceAllStringFunc(s, func(match string) string {
			if rule.group == 0 {
				return rule.style(match)
			}
			loc := rule.re.FindStringSubmatchIndex(match)
			if loc == nil || loc[2*rule.group] < 0 {
				return match
			}
			start, end := loc[2*rule.group], loc[2*rule.group+1]
			return match[:start] + rule.style(strings.TrimSpace(match[start:end])) + match[end:]
		})
	}
	return s
}
