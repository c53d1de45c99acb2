package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/scanner"
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

const ToolName = "modscan"

// Report is the rendered view of one scan run.
type Report struct {
	RunID       uuid.UUID    `json:"run_id"`
	Tool        string       `json:"tool"`
	Version     string       `json:"version,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
	MinSeverity string       `json:"min_severity"`
	Summary     Summary      `json:"summary"`
	Results     []FileReport `json:"results"`
}

// FileReport is a scan result plus the auto-disable verdict computed on the
// unfiltered findings.
type FileReport struct {
	findings.Result
	Disable bool   `json:"disable"`
	Highest string `json:"highest_severity,omitempty"`
}

type Summary struct {
	Files       int            `json:"files"`
	Whitelisted int            `json:"whitelisted"`
	Skipped     int            `json:"skipped"`
	ToDisable   int            `json:"to_disable"`
	Findings    int            `json:"findings"`
	BySeverity  map[string]int `json:"by_severity"`
}

// New builds a report. Findings below minSeverity are left out of the
// report; the disable verdict still sees all of them.
func New(results []findings.Result, cfg config.ScanConfig, minSeverity findings.Severity, version string) *Report {
	r := &Report{
		RunID:       uuid.New(),
		Tool:        ToolName,
		Version:     version,
		GeneratedAt: time.Now().UTC(),
		MinSeverity: minSeverity.String(),
		Results:     make([]FileReport, 0, len(results)),
	}
	r.Summary.BySeverity = map[string]int{}
	for s := findings.Low; s <= findings.Critical; s++ {
		r.Summary.BySeverity[s.String()] = 0
	}

	for _, res := range results {
		fr := FileReport{Result: res, Disable: scanner.ShouldDisable(res, cfg)}
		fr.Findings = Filter(res.Findings, minSeverity)
		if highest, ok := fr.HighestSeverity(); ok {
			fr.Highest = highest.String()
		}

		r.Summary.Files++
		if res.Whitelisted {
			r.Summary.Whitelisted++
		} else if res.Skipped {
			r.Summary.Skipped++
		}
		if fr.Disable {
			r.Summary.ToDisable++
		}
		for _, f := range fr.Findings {
			r.Summary.Findings++
			r.Summary.BySeverity[f.Severity.String()]++
		}
		r.Results = append(r.Results, fr)
	}
	return r
}

// Filter returns the findings at or above min, keeping their order.
func Filter(in []findings.Finding, min findings.Severity) []findings.Finding {
	out := make([]findings.Finding, 0, len(in))
	for _, f := range in {
		if f.Severity >= min {
			out = append(out, f)
		}
	}
	return out
}

// FindingResults returns the filtered results, for renderers that take
// plain scan results.
func (r *Report) FindingResults() []findings.Result {
	out := make([]findings.Result, len(r.Results))
	for i, fr := range r.Results {
		out[i] = fr.Result
	}
	return out
}

// Reached reports whether any reported finding is at or above s.
func (r *Report) Reached(s findings.Severity) bool {
	for _, fr := range r.Results {
		for _, f := range fr.Findings {
			if f.Severity >= s {
				return true
			}
		}
	}
	return false
}
