package rules

import (
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

// Default builds the full rule set in evaluation order. Where several rules
// match the same call site, the earlier one wins.
func Default(cfg config.ScanConfig) []Rule {
	w := cfg.Windows.WithDefaults()
	minSeparators := cfg.MinimumEncodedStringLength
	if minSeparators <= 0 {
		minSeparators = config.DefaultScanConfig().MinimumEncodedStringLength
	}

	return []Rule{
		NewBase64Rule(),
		NewProcessStartRule(),
		NewShell32Rule(),
		NewLoadFromStreamRule(),
		NewByteArrayManipulationRule(),
		NewDllImportRule(),
		NewRegistryRule(),
		NewEncodedStringLiteralRule(minSeparators),
		NewReflectionRule(),
		NewEnvironmentPathRule(w.FolderArgument),
		NewEncodedStringPipelineRule(w.ParseConv),
		NewEncodedBlobSplittingRule(w.LiteralLookback, w.LoopBranch, w.LoopLocal),
		NewCOMReflectionAttackRule(w.LiteralLookback),
		NewDataExfiltrationRule(w.Contextual, w.Snippet),
		NewDataInfiltrationRule(w.Contextual, w.Snippet),
		NewPersistenceRule(w.Contextual, w.FolderArgument, w.Snippet),
		NewHexStringRule(),
	}
}
