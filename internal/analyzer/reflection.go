package analyzer

import (
	"strings"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/internal/signals"
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

const nonLiteralReflection = "Reflection invocation with non-literal target method name (cannot determine what is being invoked) - combined with other suspicious patterns"

// payloadSignals are the signals that corroborate a reflective call.
const payloadSignals = signals.EncodedStrings | signals.SensitiveFolder | signals.ProcessLikeCall |
	signals.NetworkCall | signals.FileWrite | signals.Base64

var (
	suspiciousMethodNames = []string{
		"ShellExecute", "Shell", "Execute", "Start", "Process",
		"Exec", "Run", "Launch", "CreateProcess", "Spawn",
		"Command", "Eval", "LoadLibrary", "LoadFrom", "cmd.exe",
		"powershell.exe", "wscript.exe", "cscript.exe",
	}
	forwardMethodNames = map[string]bool{"ShellExecute": true, "Execute": true, "Shell": true}
)

// IsReflectionInvoke matches the call shapes that can reach arbitrary code:
// Type.InvokeMember, Type.GetTypeFromProgID, Activator.CreateInstance and
// MethodInfo/MethodBase.Invoke.
func IsReflectionInvoke(target *dotnet.MethodRef) bool {
	if target == nil {
		return false
	}
	switch target.DeclaringType {
	case "System.Type":
		return target.Name == "InvokeMember" || target.Name == "GetTypeFromProgID"
	case "System.Activator":
		return target.Name == "CreateInstance"
	}
	return signals.IsReflectionInvoke(target)
}

// ReflectionDetector recovers the name a reflective call resolves and flags
// it when the surrounding code shows payload behaviour.
type ReflectionDetector struct {
	*env
	patterns *StringPatternDetector
	decoder  *rules.NumericDecoder
}

func NewReflectionDetector(ruleSet []rules.Rule, cfg *config.ScanConfig, tracker *signals.Tracker) (*ReflectionDetector, error) {
	e, err := newEnv(ruleSet, cfg, tracker, nil)
	if err != nil {
		return nil, err
	}
	return newReflectionDetector(e), nil
}

func newReflectionDetector(e *env) *ReflectionDetector {
	minSeparators := e.cfg.MinimumEncodedStringLength
	if minSeparators <= 0 {
		minSeparators = config.DefaultScanConfig().MinimumEncodedStringLength
	}
	decoder := rules.NewNumericDecoder(minSeparators)
	return &ReflectionDetector{
		env:      e,
		patterns: NewStringPatternDetector(decoder, e.w.StringEvidence),
		decoder:  decoder,
	}
}

// Scan inspects the reflective call at index. Nothing is reported unless the
// method or its type carries corroborating evidence.
func (d *ReflectionDetector) Scan(method *dotnet.MethodDef, instrs []dotnet.Instruction, index int, target *dotnet.MethodRef, sig *signals.Signals) []findings.Finding {
	if !IsReflectionInvoke(target) {
		return nil
	}
	name := d.InvokedMethodName(instrs, index)

	corroborated := sig.HasAny(payloadSignals) ||
		d.patterns.HasAssemblyLoading(instrs) ||
		d.patterns.HasSuspiciousStringPatterns(instrs, index) ||
		d.tracker.TypeSignals(method.DeclaringType.FullName()).HasAny(payloadSignals)
	if !corroborated {
		return nil
	}

	loc := callLocation(method, instrs[index])
	snippet := dotnet.Snippet(instrs, index, d.w.BypassSnippet)
	if name == "" {
		return []findings.Finding{
			findings.New(loc, nonLiteralReflection, findings.High).WithSnippet(snippet).WithRule(rules.ReflectionRuleID),
		}
	}

	reflected := &dotnet.MethodRef{DeclaringType: "ReflectedType", Name: name, ReturnType: "System.Object"}
	for _, r := range d.rules {
		if !r.IsSuspicious(reflected) && !matchesReflectedName(r, name) {
			continue
		}
		severity := r.Severity()
		if severity == findings.Low {
			severity = findings.Medium
		}
		return []findings.Finding{
			findings.New(loc, "Potential reflection bypass: "+r.Description(), severity).WithSnippet(snippet).WithRule(r.RuleID()),
		}
	}
	return nil
}

func matchesReflectedName(r rules.Rule, name string) bool {
	m, ok := r.(rules.ReflectedNameMatcher)
	return ok && m.MatchesReflectedName(name)
}

// InvokedMethodName recovers the target name of a reflective call from
// nearby string literals, following at most one store to a local. It returns
// "" when no suspicious name is found.
func (d *ReflectionDetector) InvokedMethodName(instrs []dotnet.Instruction, index int) string {
	local := -1
	var remembered string
	haveRemembered := false

	for i := max(0, index-d.w.ReflectionLookback); i < index && i < len(instrs); i++ {
		in := instrs[i]

		if s, ok := in.StringOperand(); ok {
			effective := d.decodeLiteral(s)
			if strings.Contains(effective, "Shell.Application") || strings.Contains(effective, "shell32") {
				return "ShellExecute"
			}
			if IsSuspiciousMethodName(effective) {
				return effective
			}
			remembered, haveRemembered = effective, true
		}

		if slot, ok := in.StoredLocal(); ok && haveRemembered && i > 0 && instrs[i-1].OpCode == dotnet.OpLdstr {
			local = slot
		}

		if local >= 0 && haveRemembered {
			if slot, ok := in.LoadedLocal(); ok && slot == local && IsSuspiciousMethodName(remembered) {
				return remembered
			}
		}
	}

	for i := index + 1; i < min(len(instrs), index+d.w.ReflectionLookahead); i++ {
		if s, ok := instrs[i].StringOperand(); ok && forwardMethodNames[s] {
			return s
		}
	}
	return ""
}

// decodeLiteral returns the numeric or hex decoding of s when it has an
// encoded shape, else s.
func (d *ReflectionDetector) decodeLiteral(s string) string {
	if d.decoder.IsEncoded(s) {
		if decoded, ok := rules.DecodeNumeric(s); ok && decoded != "" {
			return decoded
		}
	}
	if rules.IsHexEncoded(s) {
		if decoded, ok := rules.DecodeHex(s); ok && decoded != "" {
			return decoded
		}
	}
	return s
}

// IsSuspiciousMethodName reports names associated with code execution.
func IsSuspiciousMethodName(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	if strings.Contains(s, "Shell.Application") || strings.Contains(s, "shell32") {
		return true
	}
	lower := strings.ToLower(s)
	for _, n := range suspiciousMethodNames {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
