package analyzer

import (
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/internal/signals"
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

const (
	corroboratedSuffix     = " (combined with other suspicious patterns)"
	typeCorroboratedSuffix = " (combined with other suspicious patterns detected in this type)"
)

// PendingReflection is a reflective call that had no corroboration when it was
// seen. It is re-evaluated once every method of the type has been scanned.
type PendingReflection struct {
	Method       *dotnet.MethodDef
	Index        int
	Instructions []dotnet.Instruction
	Signals      *signals.Signals
}

// InstructionResult holds what one method body walk produced.
type InstructionResult struct {
	Findings []findings.Finding
	Pending  []PendingReflection
}

// InstructionAnalyzer walks the call sites of a method body.
type InstructionAnalyzer struct {
	*env
	reflection *ReflectionDetector
}

func NewInstructionAnalyzer(ruleSet []rules.Rule, cfg *config.ScanConfig, tracker *signals.Tracker, logger hclog.Logger) (*InstructionAnalyzer, error) {
	e, err := newEnv(ruleSet, cfg, tracker, logger)
	if err != nil {
		return nil, err
	}
	return newInstructionAnalyzer(e), nil
}

func newInstructionAnalyzer(e *env) *InstructionAnalyzer {
	return &InstructionAnalyzer{env: e, reflection: newReflectionDetector(e)}
}

// Analyze walks every call and callvirt of the body. An instruction that
// cannot be analysed is skipped without affecting the others.
func (a *InstructionAnalyzer) Analyze(method *dotnet.MethodDef, instrs []dotnet.Instruction, sig *signals.Signals) InstructionResult {
	var res InstructionResult
	for i := range instrs {
		if err := a.analyzeAt(method, instrs, i, sig, &res); err != nil {
			a.logger.Debug("skipping instruction", "method", method.Location(), "offset", instrs[i].Offset, "err", err)
		}
	}
	return res
}

func (a *InstructionAnalyzer) analyzeAt(method *dotnet.MethodDef, instrs []dotnet.Instruction, i int, sig *signals.Signals, res *InstructionResult) (err error) {
	defer recoverScope(&err)

	target, ok := instrs[i].DirectCall()
	if !ok {
		return nil
	}
	typeName := method.DeclaringType.FullName()

	if sig != nil {
		a.tracker.UpdateFromCall(sig, target, typeName)
		if target.DeclaringType == "System.Environment" && target.Name == "GetFolderPath" {
			if folder, ok := rules.FolderArgument(instrs, i, a.w.FolderArgument); ok && rules.IsSensitiveFolder(folder) {
				a.tracker.Mark(sig, typeName, signals.SensitiveFolder)
			}
		}
	}

	for _, r := range a.rules {
		for _, f := range r.AnalyzeContextualPattern(target, instrs, i, sig) {
			if r.RequiresCompanionFinding() && f.Severity != findings.Low && !a.hasOtherTrigger(sig, typeName, r.RuleID()) {
				continue
			}
			res.Findings = append(res.Findings, f)
			a.tracker.MarkRuleTriggered(sig, typeName, r.RuleID())
		}
	}

	if IsReflectionInvoke(target) {
		reflection, ok := a.reflectionRule()
		if !ok {
			return nil
		}
		if !a.hasOtherTrigger(sig, typeName, reflection.RuleID()) {
			if a.cfg.EnableMultiSignalDetection && method.DeclaringType != nil {
				res.Pending = append(res.Pending, PendingReflection{Method: method, Index: i, Instructions: instrs, Signals: sig})
			}
			return nil
		}
		res.Findings = append(res.Findings, findings.New(
			callLocation(method, instrs[i]),
			reflection.Description()+corroboratedSuffix,
			reflection.Severity(),
		).WithSnippet(dotnet.Snippet(instrs, i, a.w.Snippet)).WithRule(reflection.RuleID()))
		a.tracker.MarkRuleTriggered(sig, typeName, reflection.RuleID())
	} else if r, ok := firstSuspicious(a.rules, target); ok {
		severity, description := r.Severity(), r.Description()
		if imp, ok := r.(rules.ImportAnalyzer); ok {
			if s, d, ok := imp.AnalyzeImport(target); ok {
				severity, description = s, d
			}
		}
		res.Findings = append(res.Findings, findings.New(callLocation(method, instrs[i]), description, severity).
			WithSnippet(dotnet.Snippet(instrs, i, a.w.Snippet)).
			WithRule(r.RuleID()))
		a.tracker.MarkRuleTriggered(sig, typeName, r.RuleID())
	}

	for _, f := range a.reflection.Scan(method, instrs, i, target, sig) {
		res.Findings = append(res.Findings, f)
		a.tracker.MarkRuleTriggered(sig, typeName, rules.ReflectionRuleID)
	}
	return nil
}

func firstSuspicious(ruleSet []rules.Rule, target *dotnet.MethodRef) (rules.Rule, bool) {
	for _, r := range ruleSet {
		if r.IsSuspicious(target) {
			return r, true
		}
	}
	return nil, false
}
