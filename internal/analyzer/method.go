package analyzer

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/internal/signals"
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

// MethodResult holds the findings of one method and the reflective calls
// left for the type scanner. ILDump is set when full IL reports are enabled
// and the method produced findings.
type MethodResult struct {
	Findings []findings.Finding
	Pending  []PendingReflection
	ILDump   string
}

// MethodScanner runs every detection stage over one method body.
type MethodScanner struct {
	*env
	instructions *InstructionAnalyzer
}

func NewMethodScanner(ruleSet []rules.Rule, cfg *config.ScanConfig, tracker *signals.Tracker, logger hclog.Logger) (*MethodScanner, error) {
	e, err := newEnv(ruleSet, cfg, tracker, logger)
	if err != nil {
		return nil, err
	}
	return newMethodScanner(e), nil
}

func newMethodScanner(e *env) *MethodScanner {
	return &MethodScanner{env: e, instructions: newInstructionAnalyzer(e)}
}

// marksEncodedStrings lists the whole-method rules whose findings count as
// encoded string evidence.
var marksEncodedStrings = map[string]bool{
	rules.EncodedStringLiteralRuleID:  true,
	rules.EncodedStringPipelineRuleID: true,
	rules.EncodedBlobSplittingRuleID:  true,
}

// Scan analyses method. A returned error means the method was skipped;
// findings gathered before the failure are discarded.
func (s *MethodScanner) Scan(method *dotnet.MethodDef) (res MethodResult, err error) {
	defer recoverScope(&err)

	if !method.HasBody() {
		return MethodResult{}, nil
	}
	instrs, err := method.Instructions()
	if err != nil {
		return MethodResult{}, fmt.Errorf("decode body of %s: %w", method.Location(), err)
	}

	typeName := method.DeclaringType.FullName()
	sig := s.tracker.NewMethodSignals()

	for _, r := range s.rules {
		for _, f := range r.AnalyzeInstructions(method, instrs, sig) {
			res.Findings = append(res.Findings, f)
			if marksEncodedStrings[r.RuleID()] {
				s.tracker.Mark(sig, typeName, signals.EncodedStrings)
			}
		}
	}

	for i, in := range instrs {
		literal, ok := in.StringOperand()
		if !ok {
			continue
		}
		for _, r := range s.rules {
			for _, f := range r.AnalyzeStringLiteral(literal, method, i) {
				res.Findings = append(res.Findings, f)
				s.tracker.Mark(sig, typeName, signals.EncodedStrings)
			}
		}
	}

	walk := s.instructions.Analyze(method, instrs, sig)
	res.Findings = append(res.Findings, walk.Findings...)
	res.Pending = walk.Pending

	if sig != nil && s.cfg.EnableMultiSignalDetection {
		if f, ok := compositeFinding(method, sig); ok {
			res.Findings = append(res.Findings, f)
		}
	}

	if s.cfg.DumpFullILReports && len(res.Findings) > 0 {
		res.ILDump = dotnet.Dump(instrs)
	}
	return res, nil
}

// compositeFinding reports at most one finding for the signal combination of
// a method, preferring the critical one.
func compositeFinding(method *dotnet.MethodDef, sig *signals.Signals) (findings.Finding, bool) {
	switch {
	case sig.IsCriticalCombination():
		return findings.New(
			method.Location(),
			fmt.Sprintf("Critical: Multiple suspicious patterns detected (%s)", sig.CombinationDescription()),
			findings.Critical,
		).WithSnippet(fmt.Sprintf("This method contains %d suspicious signals that form a likely malicious pattern.", sig.Count())), true
	case sig.IsHighRiskCombination():
		return findings.New(
			method.Location(),
			fmt.Sprintf("High risk: Multiple suspicious patterns detected (%s)", sig.CombinationDescription()),
			findings.High,
		).WithSnippet(fmt.Sprintf("This method contains %d suspicious signals.", sig.Count())), true
	}
	return findings.Finding{}, false
}
