package analyzer

import (
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/internal/signals"
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

// TypeResult holds the findings of a type and its nested types.
type TypeResult struct {
	Findings []findings.Finding
	ILDumps  map[string]string
}

func (r *TypeResult) addDump(key, dump string) {
	if dump == "" {
		return
	}
	if r.ILDumps == nil {
		r.ILDumps = make(map[string]string)
	}
	r.ILDumps[key] = dump
}

func (r *TypeResult) merge(other TypeResult) {
	r.Findings = append(r.Findings, other.Findings...)
	for k, v := range other.ILDumps {
		r.addDump(k, v)
	}
}

// TypeScanner scans the methods of a type, resolves its pending reflective
// calls against the type's signals and recurses into nested types.
type TypeScanner struct {
	*env
	methods *MethodScanner
}

func NewTypeScanner(ruleSet []rules.Rule, cfg *config.ScanConfig, tracker *signals.Tracker, logger hclog.Logger) (*TypeScanner, error) {
	e, err := newEnv(ruleSet, cfg, tracker, logger)
	if err != nil {
		return nil, err
	}
	return newTypeScanner(e), nil
}

func newTypeScanner(e *env) *TypeScanner {
	return &TypeScanner{env: e, methods: newMethodScanner(e)}
}

// Scan analyses t and its nested types. A failing method is skipped; a
// failing type is skipped together with its nested types while its siblings
// continue.
func (s *TypeScanner) Scan(t *dotnet.TypeDef) (res TypeResult, err error) {
	typeName := t.FullName()
	defer func() {
		if r := recover(); r != nil {
			s.tracker.ClearTypeSignals(typeName)
			recoverValue(&err, r)
		}
	}()

	if s.cfg.EnableMultiSignalDetection {
		s.tracker.EnsureTypeSignals(typeName)
	}

	var pending []PendingReflection
	for _, m := range t.Methods {
		mr, err := s.methods.Scan(m)
		if err != nil {
			s.logger.Debug("skipping method", "method", m.Location(), "err", err)
			continue
		}
		res.Findings = append(res.Findings, mr.Findings...)
		res.addDump(m.Location(), mr.ILDump)
		pending = append(pending, mr.Pending...)
	}

	if s.cfg.EnableMultiSignalDetection {
		s.resolvePending(typeName, pending, &res)
	}
	s.tracker.ClearTypeSignals(typeName)

	for _, nested := range t.NestedTypes {
		nr, err := s.Scan(nested)
		if err != nil {
			s.logger.Debug("skipping type", "type", nested.FullName(), "err", err)
			continue
		}
		res.merge(nr)
	}
	return res, nil
}

// resolvePending emits the queued reflective calls when another rule fired
// somewhere in the type.
func (s *TypeScanner) resolvePending(typeName string, pending []PendingReflection, res *TypeResult) {
	if len(pending) == 0 {
		return
	}
	typeSig := s.tracker.TypeSignals(typeName)
	if typeSig == nil {
		return
	}
	reflection, ok := s.reflectionRule()
	if !ok || !typeSig.HasTriggeredRuleOtherThan(reflection.RuleID()) {
		return
	}
	for _, p := range pending {
		res.Findings = append(res.Findings, findings.New(
			callLocation(p.Method, p.Instructions[p.Index]),
			reflection.Description()+typeCorroboratedSuffix,
			reflection.Severity(),
		).WithSnippet(dotnet.Snippet(p.Instructions, p.Index, s.w.Snippet)).WithRule(reflection.RuleID()))
		s.tracker.MarkRuleTriggered(p.Signals, typeName, reflection.RuleID())
		if s.cfg.DumpFullILReports {
			if _, ok := res.ILDumps[p.Method.Location()]; !ok {
				res.addDump(p.Method.Location(), dotnet.Dump(p.Instructions))
			}
		}
	}
}
