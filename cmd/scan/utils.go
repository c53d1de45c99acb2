package scan

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/modscan/cmd/version"
	"github.com/scan-io-git/modscan/internal/report"
	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/internal/sarif"
	"github.com/scan-io-git/modscan/pkg/shared/config"
	"github.com/scan-io-git/modscan/pkg/shared/files"
)

// Report formats
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatSARIF = "sarif"
	FormatHTML  = "html"
)

var supportedFormats = []string{FormatText, FormatJSON, FormatSARIF, FormatHTML}

var reportExtensions = map[string]string{
	FormatText:  "txt",
	FormatJSON:  "json",
	FormatSARIF: "sarif",
	FormatHTML:  "html",
}

// applyOverrides returns a copy of cfg with the command line flags applied.
func applyOverrides(cfg *config.Config, options *RunOptionsScan) *config.Config {
	out := config.Config{}
	if cfg != nil {
		out = *cfg
	}
	disabled := false
	enabled := true

	if options.NoMultiSignal {
		out.Scan.EnableMultiSignalDetection = &disabled
	}
	if options.NoMetadata {
		out.Scan.DetectAssemblyMetadata = &disabled
	}
	if options.DumpIL {
		out.Scan.DumpFullILReports = &enabled
	}
	if options.Threads > 0 {
		out.Scan.Threads = options.Threads
	}
	if options.WhitelistURL != "" {
		out.Whitelist.RemoteURL = options.WhitelistURL
	}
	return &out
}

// writeReport renders rep in the requested format to the output path, or to
// stdout when no path is set. ruleSet declares the SARIF rules. It returns
// the written file path.
func writeReport(stdout io.Writer, options *RunOptionsScan, rep *report.Report, ruleSet []rules.Rule, logger hclog.Logger) (string, error) {
	w := stdout
	var outputFile string
	if options.OutputPath != "" {
		fullPath, folder, err := files.DetermineFileFullPath(options.OutputPath, "modscan-report."+reportExtensions[options.Format])
		if err != nil {
			return "", err
		}
		if err := files.CreateFolderIfNotExists(folder); err != nil {
			return "", err
		}
		file, err := os.Create(fullPath)
		if err != nil {
			return "", fmt.Errorf("failed to create report file %q: %w", fullPath, err)
		}
		defer file.Close()
		w = file
		outputFile = fullPath
		if options.Format == FormatText {
			report.ApplyNoColor()
		}
	}

	switch options.Format {
	case FormatJSON:
		return outputFile, report.WriteJSON(w, rep)
	case FormatSARIF:
		sarifReport, err := sarif.Build(rep.FindingResults(), ruleSet, version.CoreVersion, rep.RunID)
		if err != nil {
			return "", err
		}
		sarifReport.SortResultsByLevel()
		logger.Debug("sarif results by level", "levels", sarifReport.CollectSeverityInfo())
		return outputFile, sarifReport.Write(w)
	case FormatHTML:
		tmpl, err := report.NewTemplate(options.TemplatePath)
		if err != nil {
			return "", fmt.Errorf("failed to load html template: %w", err)
		}
		return outputFile, report.WriteHTML(w, tmpl, options.Title, rep)
	default:
		return outputFile, report.WriteText(w, rep)
	}
}
