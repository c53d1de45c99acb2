package scan

import (
	"fmt"
	"os"
	"strings"

	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/pkg/shared"
)

// validateScanArgs validates the arguments provided to the scan command and
// resolves the severity flags.
func validateScanArgs(options *RunOptionsScan, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("at least one target path must be specified")
	}

	options.Format = strings.ToLower(strings.TrimSpace(options.Format))
	if options.Format == "" {
		options.Format = FormatText
	}
	if !shared.IsInList(options.Format, supportedFormats) {
		return fmt.Errorf("unsupported report format %q, expected one of %s", options.Format, strings.Join(supportedFormats, ", "))
	}

	if options.Threads < 0 {
		return fmt.Errorf("the 'threads' flag must be a positive integer")
	}

	minSeverity := findings.Low
	if options.MinSeverity != "" {
		v, err := findings.ParseSeverity(options.MinSeverity)
		if err != nil {
			return fmt.Errorf("invalid 'min-severity' flag: %w", err)
		}
		minSeverity = v
	}
	options.minSeverity = minSeverity

	options.failOn = nil
	if options.FailOn != "" {
		v, err := findings.ParseSeverity(options.FailOn)
		if err != nil {
			return fmt.Errorf("invalid 'fail-on' flag: %w", err)
		}
		options.failOn = &v
	}

	if options.GameRoot && len(args) != 1 {
		return fmt.Errorf("the 'game-root' flag takes exactly one target path")
	}

	for _, target := range args {
		info, err := os.Stat(target)
		if os.IsNotExist(err) {
			return fmt.Errorf("the target path does not exist: %v", target)
		}
		if err != nil {
			return fmt.Errorf("the target path is not accessible: %w", err)
		}
		if options.GameRoot && !info.IsDir() {
			return fmt.Errorf("the game root must be a directory: %v", target)
		}
	}

	if options.TemplatePath != "" && options.Format != FormatHTML {
		return fmt.Errorf("the 'template' flag is only valid with the html format")
	}

	return nil
}
