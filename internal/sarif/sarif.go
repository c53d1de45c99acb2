package sarif

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/rules"
)

const (
	ToolName       = "modscan"
	InformationURI = "https://github.com/scan-io-git/modscan"

	// MultiSignalRuleID names composite findings, which no single rule owns.
	MultiSignalRuleID = "MultiSignalRule"
	// ScanWarningRuleID names the advisory for assemblies that could not be fully read.
	ScanWarningRuleID = "AssemblyScanWarning"
)

type Report struct {
	*sarif.Report
}

// Level maps a finding severity to a SARIF result level.
func Level(s findings.Severity) string {
	switch s {
	case findings.Critical, findings.High:
		return "error"
	case findings.Medium:
		return "warning"
	default:
		return "note"
	}
}

// ruleIDOf returns the SARIF rule of a finding.
func ruleIDOf(f findings.Finding) string {
	if f.RuleID != "" {
		return f.RuleID
	}
	if strings.HasPrefix(f.Description, "Critical: Multiple") || strings.HasPrefix(f.Description, "High risk: Multiple") {
		return MultiSignalRuleID
	}
	return ScanWarningRuleID
}

// Build converts scan results into a SARIF 2.1.0 report with one run. Every
// rule of ruleSet is declared; results carry the scan id, the file hash and
// the IL member of the finding as properties.
func Build(results []findings.Result, ruleSet []rules.Rule, version string, runID uuid.UUID) (*Report, error) {
	reportSarif, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI(ToolName, InformationURI)
	if version != "" {
		run.Tool.Driver.SemanticVersion = &version
	}

	for _, r := range ruleSet {
		run.AddRule(r.RuleID()).
			WithDescription(r.Description()).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: Level(r.Severity())})
	}
	run.AddRule(MultiSignalRuleID).
		WithDescription("Several suspicious signals combined in one method.").
		WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: "error"})
	run.AddRule(ScanWarningRuleID).
		WithDescription("Parts of the assembly could not be scanned.").
		WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: "note"})

	for _, res := range results {
		for _, f := range res.Findings {
			location := sarif.NewLocation().WithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewArtifactLocation().WithUri(res.Path)),
			)
			result := sarif.NewRuleResult(ruleIDOf(f)).
				WithMessage(sarif.NewTextMessage(f.Description)).
				WithLevel(Level(f.Severity)).
				WithLocations([]*sarif.Location{location})
			result.Properties = sarif.Properties{
				"Level":    Level(f.Severity),
				"Severity": f.Severity.String(),
				"Member":   f.Location,
				"SHA256":   res.SHA256,
				"ScanID":   runID.String(),
			}
			if f.CodeSnippet != "" {
				result.Properties["CodeSnippet"] = f.CodeSnippet
			}
			run.AddResult(result)
		}
	}
	reportSarif.AddRun(run)

	return &Report{Report: reportSarif}, nil
}

// Write renders the report as indented JSON.
func (r *Report) Write(w io.Writer) error {
	return r.PrettyWrite(w)
}

// CollectSeverityInfo counts results per level plus a total.
func (r Report) CollectSeverityInfo() map[string]int {
	severityInfo := map[string]int{
		"error":   0,
		"warning": 0,
		"note":    0,
		"total":   0,
	}

	for _, run := range r.Runs {
		for _, result := range run.Results {
			level := "note"
			if result.Level != nil {
				level = *result.Level
			}
			severityInfo[level]++
			severityInfo["total"]++
		}
	}

	return severityInfo
}

// SortResultsByLevel orders results error, warning, note, keeping the
// relative order within a level.
func (r Report) SortResultsByLevel() {
	levelOrder := map[string]int{
		"error":   0,
		"warning": 1,
		"note":    2,
		"none":    3,
	}
	rank := func(res *sarif.Result) int {
		if res.Level == nil {
			return len(levelOrder)
		}
		if v, ok := levelOrder[*res.Level]; ok {
			return v
		}
		return len(levelOrder)
	}

	for _, run := range r.Runs {
		sort.SliceStable(run.Results, func(i, j int) bool {
			return rank(run.Results[i]) < rank(run.Results[j])
		})
	}
}
