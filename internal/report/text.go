package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/scan-io-git/modscan/internal/findings"
)

var (
	colorCritical = color.New(color.FgRed, color.Bold)
	colorHigh     = color.New(color.FgYellow, color.Bold)
	colorMedium   = color.New(color.FgYellow)
	colorLow      = color.New(color.FgGreen)
	colorFile     = color.New(color.Bold)
	colorMuted    = color.New(color.Faint)
)

// ApplyNoColor disables colour output globally.
func ApplyNoColor() {
	color.NoColor = true
}

func severityColor(s findings.Severity) *color.Color {
	switch s {
	case findings.Critical:
		return colorCritical
	case findings.High:
		return colorHigh
	case findings.Medium:
		return colorMedium
	default:
		return colorLow
	}
}

// ColorizeSeverity returns the bracketed severity label in its colour.
func ColorizeSeverity(s findings.Severity) string {
	return severityColor(s).Sprintf("[%s]", s)
}

// WriteText renders a human readable report. Each finding follows the
// "[Severity] Description at Location" form with an indented snippet.
func WriteText(w io.Writer, r *Report) error {
	var b strings.Builder

	for _, fr := range r.Results {
		colorFile.Fprint(&b, fr.Path)
		switch {
		case fr.Whitelisted:
			colorMuted.Fprint(&b, " (whitelisted)")
		case fr.Error != "":
			colorMuted.Fprintf(&b, " (skipped: %s)", fr.Error)
		}
		if fr.Disable {
			b.WriteString(" ")
			colorCritical.Fprint(&b, "[DISABLE]")
		}
		b.WriteString("\n")
		if fr.SHA256 != "" {
			colorMuted.Fprintf(&b, "  sha256 %s\n", fr.SHA256)
		}

		for _, f := range fr.Findings {
			fmt.Fprintf(&b, "  %s %s at %s\n", ColorizeSeverity(f.Severity), f.Description, f.Location)
			if f.CodeSnippet != "" {
				b.WriteString("     Snippet: ")
				b.WriteString(strings.ReplaceAll(f.CodeSnippet, "\n", "\n              "))
				b.WriteString("\n")
			}
		}
		for _, method := range sortedKeys(fr.ILDumps) {
			colorMuted.Fprintf(&b, "  IL %s\n", method)
			for _, line := range strings.Split(strings.TrimRight(fr.ILDumps[method], "\n"), "\n") {
				fmt.Fprintf(&b, "    %s\n", line)
			}
		}
	}

	s := r.Summary
	fmt.Fprintf(&b, "\n%d file(s) scanned, %d whitelisted, %d skipped, %d finding(s)",
		s.Files, s.Whitelisted, s.Skipped, s.Findings)
	if s.Findings > 0 {
		var parts []string
		for sev := findings.Critical; sev >= findings.Low; sev-- {
			if n := s.BySeverity[sev.String()]; n > 0 {
				parts = append(parts, severityColor(sev).Sprintf("%s %d", sev, n))
			}
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
	if s.ToDisable > 0 {
		colorCritical.Fprintf(&b, "%d mod(s) should be disabled\n", s.ToDisable)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
