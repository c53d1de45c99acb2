package analyzer

import (
	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/rules"
)

// MetadataScanner runs the rules that inspect assembly-level attributes.
type MetadataScanner struct {
	rules []rules.Rule
}

func NewMetadataScanner(ruleSet []rules.Rule) (*MetadataScanner, error) {
	if ruleSet == nil {
		return nil, ErrNilRules
	}
	return &MetadataScanner{rules: ruleSet}, nil
}

func (s *MetadataScanner) Scan(asm *dotnet.Assembly) (out []findings.Finding, err error) {
	defer recoverScope(&err)
	for _, r := range s.rules {
		if m, ok := r.(rules.MetadataAnalyzer); ok {
			out = append(out, m.AnalyzeAssemblyMetadata(asm)...)
		}
	}
	return out, nil
}
