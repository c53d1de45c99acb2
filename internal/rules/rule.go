package rules

import (
	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/signals"
)

// Stable rule identifiers.
const (
	Base64RuleID                = "Base64Rule"
	ProcessStartRuleID          = "ProcessStartRule"
	Shell32RuleID               = "Shell32Rule"
	LoadFromStreamRuleID        = "LoadFromStreamRule"
	ByteArrayManipulationRuleID = "ByteArrayManipulationRule"
	DllImportRuleID             = "DllImportRule"
	RegistryRuleID              = "RegistryRule"
	EncodedStringLiteralRuleID  = "EncodedStringLiteralRule"
	ReflectionRuleID            = "ReflectionRule"
	EnvironmentPathRuleID       = "EnvironmentPathRule"
	EncodedStringPipelineRuleID = "EncodedStringPipelineRule"
	EncodedBlobSplittingRuleID  = "EncodedBlobSplittingRule"
	COMReflectionAttackRuleID   = "COMReflectionAttackRule"
	DataExfiltrationRuleID      = "DataExfiltrationRule"
	DataInfiltrationRuleID      = "DataInfiltrationRule"
	PersistenceRuleID           = "PersistenceRule"
	HexStringRuleID             = "HexStringRule"
)

// Rule is a detection rule. Every capability has an empty default in Base, so
// a rule only overrides the judgments relevant to its pattern.
type Rule interface {
	RuleID() string
	Description() string
	Severity() findings.Severity
	RequiresCompanionFinding() bool

	// IsSuspicious is a context-free judgment on a call target.
	IsSuspicious(target *dotnet.MethodRef) bool
	// AnalyzeInstructions matches whole-method structural patterns.
	AnalyzeInstructions(method *dotnet.MethodDef, instrs []dotnet.Instruction, sig *signals.Signals) []findings.Finding
	// AnalyzeStringLiteral evaluates one string constant in isolation.
	AnalyzeStringLiteral(literal string, method *dotnet.MethodDef, index int) []findings.Finding
	// AnalyzeContextualPattern evaluates a call site together with the
	// instructions around it.
	AnalyzeContextualPattern(target *dotnet.MethodRef, instrs []dotnet.Instruction, index int, sig *signals.Signals) []findings.Finding
}

// MetadataAnalyzer is implemented by rules that inspect assembly-level attributes.
type MetadataAnalyzer interface {
	AnalyzeAssemblyMetadata(asm *dotnet.Assembly) []findings.Finding
}

// ImportAnalyzer is implemented by rules that grade native imports. The
// severity and description depend on the import, so they are returned per call.
type ImportAnalyzer interface {
	AnalyzeImport(target *dotnet.MethodRef) (findings.Severity, string, bool)
}

// ReflectedNameMatcher is implemented by rules that recognise a method name
// recovered from a reflective call.
type ReflectedNameMatcher interface {
	MatchesReflectedName(name string) bool
}

// Base holds rule metadata and supplies the empty capability defaults.
type Base struct {
	id          string
	description string
	severity    findings.Severity
	companion   bool
}

func (b Base) RuleID() string                 { return b.id }
func (b Base) Description() string            { return b.description }
func (b Base) Severity() findings.Severity    { return b.severity }
func (b Base) RequiresCompanionFinding() bool { return b.companion }

func (Base) IsSuspicious(*dotnet.MethodRef) bool { return false }

func (Base) AnalyzeInstructions(*dotnet.MethodDef, []dotnet.Instruction, *signals.Signals) []findings.Finding {
	return nil
}

func (Base) AnalyzeStringLiteral(string, *dotnet.MethodDef, int) []findings.Finding {
	return nil
}

func (Base) AnalyzeContextualPattern(*dotnet.MethodRef, []dotnet.Instruction, int, *signals.Signals) []findings.Finding {
	return nil
}

// finding builds a finding attributed to the rule.
func (b Base) finding(location, description string, severity findings.Severity, snippet string) findings.Finding {
	return findings.New(location, description, severity).WithSnippet(snippet).WithRule(b.id)
}

// Find returns the rule with the given id.
func Find(rules []Rule, id string) (Rule, bool) {
	for _, r := range rules {
		if r.RuleID() == id {
			return r, true
		}
	}
	return nil, false
}
