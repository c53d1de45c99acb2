package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/scan-io-git/modscan/internal/findings"
)

//go:embed templates/report.html
var templatesFS embed.FS

// add adds two integers and returns the result.
// helper function for html template
func add(a, b int) int {
	return a + b
}

// ordinalDate returns a string with the ordinal number of the day
// helper function for html template
func ordinalDate(day int) string {
	suffix := "th"
	switch day {
	case 1, 21, 31:
		suffix = "st"
	case 2, 22:
		suffix = "nd"
	case 3, 23:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", day, suffix)
}

// formatDateTime formats a time.Time object into the specified string format.
// helper function for html template
func formatDateTime(t time.Time) string {
	day := ordinalDate(t.Day())
	return fmt.Sprintf("%s %s %d %d:%02d:%02d %s", day, t.Month(), t.Year(), t.Hour()%12, t.Minute(), t.Second(), t.Format("pm"))
}

// severityClass maps a severity to the css class used by the template.
func severityClass(s findings.Severity) string {
	switch s {
	case findings.Critical:
		return "sev-critical"
	case findings.High:
		return "sev-high"
	case findings.Medium:
		return "sev-medium"
	default:
		return "sev-low"
	}
}

// NewTemplate parses templateFile, or the built-in report template when
// templateFile is empty.
func NewTemplate(templateFile string) (*template.Template, error) {
	tmpl := template.New("report.html").
		Funcs(template.FuncMap{
			"add":            add,
			"formatDateTime": formatDateTime,
			"severityClass":  severityClass,
		})
	if templateFile == "" {
		return tmpl.ParseFS(templatesFS, "templates/report.html")
	}
	return tmpl.ParseFiles(templateFile)
}

// WriteHTML renders the report through tmpl.
func WriteHTML(w io.Writer, tmpl *template.Template, title string, r *Report) error {
	data := struct {
		Title  string
		Report *Report
	}{
		Title:  title,
		Report: r,
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render html report: %w", err)
	}
	return nil
}
