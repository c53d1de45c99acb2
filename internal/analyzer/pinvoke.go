package analyzer

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/rules"
)

// PInvokeScanner grades the native imports declared by a module.
type PInvokeScanner struct {
	rules  []rules.Rule
	logger hclog.Logger
}

func NewPInvokeScanner(ruleSet []rules.Rule, logger hclog.Logger) (*PInvokeScanner, error) {
	if ruleSet == nil {
		return nil, ErrNilRules
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &PInvokeScanner{rules: ruleSet, logger: logger}, nil
}

// Scan reports every PInvoke definition of the module, nested types included,
// that a rule flags.
func (s *PInvokeScanner) Scan(module *dotnet.Module) []findings.Finding {
	var out []findings.Finding
	for _, t := range module.AllTypes() {
		for _, m := range t.Methods {
			f, ok, err := s.scanMethod(m)
			if err != nil {
				s.logger.Debug("skipping native import", "method", m.Location(), "err", err)
				continue
			}
			if ok {
				out = append(out, f)
			}
		}
	}
	return out
}

func (s *PInvokeScanner) scanMethod(m *dotnet.MethodDef) (f findings.Finding, ok bool, err error) {
	defer recoverScope(&err)

	if !m.IsPInvoke() || m.PInvoke == nil {
		return f, false, nil
	}
	ref := m.Ref()
	r, ok := firstSuspicious(s.rules, ref)
	if !ok {
		return f, false, nil
	}
	severity, description := r.Severity(), r.Description()
	if imp, ok := r.(rules.ImportAnalyzer); ok {
		if sv, d, ok := imp.AnalyzeImport(ref); ok {
			severity, description = sv, d
		}
	}
	return findings.New(m.Location(), description, severity).WithSnippet(importSignature(m)).WithRule(r.RuleID()), true, nil
}

// importSignature renders the declaration of a native import the way it
// appears in source.
func importSignature(m *dotnet.MethodDef) string {
	entry := m.PInvoke.EntryPoint
	if entry == "" {
		entry = m.Name
	}
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = dotnet.ShortTypeName(p.Type) + " " + p.Name
	}
	return fmt.Sprintf("[DllImport(\"%s\", EntryPoint = \"%s\")]\n%s %s(%s);",
		m.PInvoke.Module, entry, dotnet.ShortTypeName(m.ReturnType), m.Name, strings.Join(params, ", "))
}
