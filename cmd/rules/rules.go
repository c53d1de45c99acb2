package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

var (
	AppConfig  *config.Config
	jsonOutput bool
)

// RuleInfo is the listed view of a rule.
type RuleInfo struct {
	ID                string `json:"id"`
	Severity          string `json:"severity"`
	RequiresCompanion bool   `json:"requires_companion"`
	Description       string `json:"description"`
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

// NewRulesCmd creates the command listing the active rule set.
func NewRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "rules [--json]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "List the detection rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := collectRules(AppConfig)
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			return writeTable(cmd.OutOrStdout(), infos)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the rules as JSON.")
	return cmd
}

func collectRules(cfg *config.Config) []RuleInfo {
	ruleSet := rules.Default(cfg.ScanConfig())
	infos := make([]RuleInfo, 0, len(ruleSet))
	for _, r := range ruleSet {
		infos = append(infos, RuleInfo{
			ID:                r.RuleID(),
			Severity:          r.Severity().String(),
			RequiresCompanion: r.RequiresCompanionFinding(),
			Description:       r.Description(),
		})
	}
	return infos
}

func writeJSON(w io.Writer, infos []RuleInfo) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(infos)
}

func writeTable(w io.Writer, infos []RuleInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSEVERITY\tCOMPANION\tDESCRIPTION")
	for _, info := range infos {
		companion := ""
		if info.RequiresCompanion {
			companion = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.ID, info.Severity, companion, strings.TrimSpace(info.Description))
	}
	return tw.Flush()
}
