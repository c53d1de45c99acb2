package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/modscan/cmd/rules"
	"github.com/scan-io-git/modscan/cmd/scan"
	"github.com/scan-io-git/modscan/cmd/version"
	"github.com/scan-io-git/modscan/pkg/shared/config"
	"github.com/scan-io-git/modscan/pkg/shared/errors"
)

var (
	cfgFile   string
	AppConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:                   "modscan [command]",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		Short:                 "Modscan is a static malware scanner for .NET game mods.",
		Long: `Modscan decodes .NET mod assemblies and inspects their IL for patterns used by
	malicious mods: hidden process launches, payload loading, persistence, data exfiltration
	and obfuscated strings.
	`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $MODSCAN_CONFIG or ./config.yml)")
	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(rules.NewRulesCmd())
	rootCmd.AddCommand(scan.ScanCmd)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		var cmdErr *errors.CommandError
		if stderrors.As(err, &cmdErr) {
			return cmdErr.ExitCode
		}
		return 1
	}
	return 0
}

func initConfig() {
	var err error

	AppConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing config file function is crashed - %v \n", err)
		os.Exit(1)
	}
	if err := config.ValidateConfig(AppConfig); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	version.Init(AppConfig)
	rules.Init(AppConfig)
	scan.Init(AppConfig)
}
