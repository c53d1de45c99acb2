package scan

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/modscan/cmd/version"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/report"
	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/internal/scanner"
	"github.com/scan-io-git/modscan/internal/whitelist"
	"github.com/scan-io-git/modscan/pkg/shared"
	"github.com/scan-io-git/modscan/pkg/shared/config"
	"github.com/scan-io-git/modscan/pkg/shared/errors"
	"github.com/scan-io-git/modscan/pkg/shared/logger"
)

// ExitCodeFindings is returned when findings reach the --fail-on severity.
const ExitCodeFindings = 2

// RunOptionsScan holds the arguments for the scan command.
type RunOptionsScan struct {
	Format        string
	OutputPath    string
	Threads       int
	MinSeverity   string
	FailOn        string
	NoMultiSignal bool
	NoMetadata    bool
	DumpIL        bool
	WhitelistURL  string
	GameRoot      bool
	PluginPath    string
	NoColor       bool
	Title         string
	TemplatePath  string

	minSeverity findings.Severity
	failOn      *findings.Severity
}

// Global variables for configuration and command arguments
var (
	AppConfig        *config.Config
	scanOptions      RunOptionsScan
	exampleScanUsage = `  # Scanning a single mod assembly
  modscan scan Mods/SomeMod.dll

  # Scanning the Mods and Plugins folders of a game installation
  modscan scan --game-root /path/to/game

  # Writing a SARIF report into a folder, with four concurrent threads
  modscan scan -f sarif -o ./reports -j 4 /path/to/mods

  # Failing the run when anything High or worse is found
  modscan scan --fail-on high --min-severity medium /path/to/mods

  # Scanning out of process through the scanner plugin
  modscan scan --plugin ./plugins/modscan/modscan /path/to/mods`
)

// ScanCmd represents the scan command.
var ScanCmd = &cobra.Command{
	Use:                   "scan [--format/-f text|json|sarif|html] [--output/-o PATH] [-j THREADS_NUMBER, default=1] [--game-root] PATH...",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleScanUsage,
	Short:                 "Statically scans .NET mod assemblies for malicious patterns",
	Long: `Statically scans .NET mod assemblies for malicious patterns.

Every assembly is decoded and its IL is checked against the rule set. Findings
are graded Low, Medium, High or Critical and suspicious signals that occur
together in one method or type are escalated. Assemblies whose SHA-256 is
whitelisted are skipped.`,
	RunE: runScanCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

// runScanCommand executes the scan command.
func runScanCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !shared.HasFlags(cmd.Flags()) {
		return cmd.Help()
	}

	appConfig := applyOverrides(AppConfig, &scanOptions)
	logger := logger.NewLogger(appConfig, "core-scan")

	if err := validateScanArgs(&scanOptions, args); err != nil {
		logger.Error("invalid scan arguments", "error", err)
		return errors.NewCommandError(err, 1)
	}
	if err := config.ValidateConfig(appConfig); err != nil {
		logger.Error("invalid configuration", "error", err)
		return errors.NewCommandError(err, 1)
	}
	if scanOptions.NoColor {
		report.ApplyNoColor()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		results []findings.Result
		err     error
	)
	if scanOptions.PluginPath != "" {
		results, err = scanWithPlugin(appConfig, scanOptions.PluginPath, args, scanOptions.GameRoot)
	} else {
		results, err = scanLocally(ctx, appConfig, args, scanOptions.GameRoot, logger)
	}
	if err != nil {
		logger.Error("scan failed", "error", err)
		return errors.NewCommandError(err, 1)
	}

	scanCfg := appConfig.ScanConfig()
	rep := report.New(results, scanCfg, scanOptions.minSeverity, version.CoreVersion)
	outputFile, err := writeReport(cmd.OutOrStdout(), &scanOptions, rep, rules.Default(scanCfg), logger)
	if err != nil {
		logger.Error("failed to write report", "error", err)
		return errors.NewCommandError(err, 1)
	}
	if outputFile != "" {
		logger.Info("report saved", "path", outputFile, "format", scanOptions.Format)
	}

	if err := checkFailOn(rep, scanOptions.failOn, logger); err != nil {
		return err
	}

	logger.Info("scan command completed successfully", "files", rep.Summary.Files, "findings", rep.Summary.Findings)
	return nil
}

// checkFailOn returns a CommandError with ExitCodeFindings when rep holds a
// finding at or above failOn. A nil failOn never fails.
func checkFailOn(rep *report.Report, failOn *findings.Severity, logger hclog.Logger) error {
	if failOn == nil || !rep.Reached(*failOn) {
		return nil
	}
	err := fmt.Errorf("findings at or above %s severity were reported", *failOn)
	logger.Warn("scan gate failed", "fail_on", failOn.String(), "findings", rep.Summary.Findings)
	return errors.NewCommandError(err, ExitCodeFindings)
}

// scanLocally runs the engine in process.
func scanLocally(ctx context.Context, cfg *config.Config, targets []string, gameRoot bool, logger hclog.Logger) ([]findings.Result, error) {
	wl, err := whitelist.Load(ctx, cfg, logger.Named("whitelist"))
	if err != nil {
		logger.Warn("remote whitelist unavailable, using local hashes", "error", err)
	}

	scanCfg := cfg.ScanConfig()
	s, err := scanner.New(rules.Default(scanCfg), scanCfg, wl, cfg.Scan.Threads, logger.Named("scanner"))
	if err != nil {
		return nil, err
	}
	return s.ScanPaths(ctx, targets, gameRoot)
}

// scanWithPlugin sends every target to the scanner plugin at pluginPath.
func scanWithPlugin(cfg *config.Config, pluginPath string, targets []string, gameRoot bool) ([]findings.Result, error) {
	var results []findings.Result
	err := shared.WithPlugin(cfg, "plugin-modscan", pluginPath, shared.PluginTypeScanner, func(raw interface{}) error {
		sc, ok := raw.(shared.Scanner)
		if !ok {
			return fmt.Errorf("plugin %q does not implement the scanner interface", pluginPath)
		}
		if _, err := sc.Setup(*cfg); err != nil {
			return fmt.Errorf("plugin setup failed: %w", err)
		}
		for _, target := range targets {
			resp, err := sc.Scan(shared.ScannerScanRequest{TargetPath: target, GameRoot: gameRoot})
			if err != nil {
				return err
			}
			results = append(results, resp.Results...)
		}
		return nil
	})
	return results, err
}

// Initialize flags for the scan command.
func init() {
	ScanCmd.Flags().StringVarP(&scanOptions.Format, "format", "f", FormatText, "Report format: text, json, sarif or html.")
	ScanCmd.Flags().StringVarP(&scanOptions.OutputPath, "output", "o", "", "Path to the output file or directory. The report is printed to stdout when empty.")
	ScanCmd.Flags().IntVarP(&scanOptions.Threads, "threads", "j", 0, "Number of assemblies scanned concurrently. Overrides scan.threads.")
	ScanCmd.Flags().StringVar(&scanOptions.MinSeverity, "min-severity", "low", "Lowest severity included in the report.")
	ScanCmd.Flags().StringVar(&scanOptions.FailOn, "fail-on", "", "Exit with code 2 when a finding at or above this severity is reported.")
	ScanCmd.Flags().BoolVar(&scanOptions.NoMultiSignal, "no-multi-signal", false, "Disable escalation of combined signals.")
	ScanCmd.Flags().BoolVar(&scanOptions.NoMetadata, "no-metadata", false, "Skip assembly metadata attribute checks.")
	ScanCmd.Flags().BoolVar(&scanOptions.DumpIL, "dump-il", false, "Attach full IL listings of flagged methods to the report.")
	ScanCmd.Flags().StringVar(&scanOptions.WhitelistURL, "whitelist-url", "", "URL of a remote list of whitelisted SHA-256 hashes.")
	ScanCmd.Flags().BoolVar(&scanOptions.GameRoot, "game-root", false, "Treat the target as a game folder and scan its configured mod directories.")
	ScanCmd.Flags().StringVar(&scanOptions.PluginPath, "plugin", "", "Path to the scanner plugin binary. The engine runs in process when empty.")
	ScanCmd.Flags().BoolVar(&scanOptions.NoColor, "no-color", false, "Disable coloured text output.")
	ScanCmd.Flags().StringVar(&scanOptions.Title, "title", "Modscan Report", "Title of the html report.")
	ScanCmd.Flags().StringVar(&scanOptions.TemplatePath, "template", "", "Path to a custom html report template.")
	ScanCmd.Flags().BoolP("help", "h", false, "Show help for the scan command.")
}
