package rules

import (
	"strings"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/signals"
)

// EncodedStringPipelineRule detects the LINQ decode idiom
// Select<String,Char> followed by Concat<Char>, usually fed by
// Int32.Parse and conv.u2 inside the selector.
type EncodedStringPipelineRule struct {
	Base
	parseWindow int
}

func NewEncodedStringPipelineRule(parseWindow int) *EncodedStringPipelineRule {
	return &EncodedStringPipelineRule{
		Base: Base{
			id:          EncodedStringPipelineRuleID,
			description: "Detected encoded string to char decoding pipeline (ASCII number parsing pattern).",
			severity:    findings.High,
		},
		parseWindow: parseWindow,
	}
}

func (r *EncodedStringPipelineRule) AnalyzeInstructions(method *dotnet.MethodDef, instrs []dotnet.Instruction, _ *signals.Signals) []findings.Finding {
	parseIdx, convIdx, selectIdx, concatIdx := -1, -1, -1, -1

	for i, in := range instrs {
		if target, ok := in.DirectCall(); ok && target.DeclaringType != "" {
			switch {
			case target.DeclaringType == "System.Int32" && target.Name == "Parse" &&
				len(target.Params) == 1 && target.Params[0].Type == "System.String":
				parseIdx = i
			case target.DeclaringType == "System.Linq.Enumerable" && target.Name == "Select" &&
				len(target.GenericArgs) == 2 && target.GenericArgs[0] == "System.String" && target.GenericArgs[1] == "System.Char":
				selectIdx = i
			case target.DeclaringType == "System.String" && target.Name == "Concat" &&
				len(target.GenericArgs) == 1 && target.GenericArgs[0] == "System.Char":
				concatIdx = i
			}
		}
		if parseIdx >= 0 && i > parseIdx && i <= parseIdx+r.parseWindow && in.OpCode == dotnet.OpConvU2 {
			convIdx = i
		}
	}

	if selectIdx < 0 || concatIdx < 0 || selectIdx >= concatIdx {
		return nil
	}

	parseConv := parseIdx >= 0 && convIdx >= 0 && parseIdx < convIdx
	start := selectIdx
	if parseConv && parseIdx < start {
		start = parseIdx
	}
	snippet := dotnet.Listing(instrs, start-2, concatIdx+3, func(i int) bool {
		return i == selectIdx || i == concatIdx || (parseConv && (i == parseIdx || i == convIdx))
	})

	return []findings.Finding{r.finding(
		method.Location(),
		"Detected encoded string to char decoding pipeline (ASCII number parsing pattern)",
		findings.High,
		snippet,
	)}
}

// EncodedBlobSplittingRule detects String.Split on a backtick or dash
// separator whose result is walked by a counting loop.
type EncodedBlobSplittingRule struct {
	Base
	separatorWindow int
	branchWindow    int
	localWindow     int
}

func NewEncodedBlobSplittingRule(separatorWindow, branchWindow, localWindow int) *EncodedBlobSplittingRule {
	return &EncodedBlobSplittingRule{
		Base: Base{
			id:          EncodedBlobSplittingRuleID,
			description: "Detected structured encoded blob splitting pattern (backtick/dash separator in loop).",
			severity:    findings.High,
		},
		separatorWindow: separatorWindow,
		branchWindow:    branchWindow,
		localWindow:     localWindow,
	}
}

const (
	separatorBacktick = '`'
	separatorDash     = '-'
)

func (r *EncodedBlobSplittingRule) AnalyzeInstructions(method *dotnet.MethodDef, instrs []dotnet.Instruction, _ *signals.Signals) []findings.Finding {
	splitIdx, separator := r.findSplit(instrs)
	if splitIdx < 0 {
		return nil
	}

	loopStart, loopEnd := r.findLoop(instrs, splitIdx)
	if loopStart < 0 {
		return nil
	}

	snippet := dotnet.Listing(instrs, splitIdx-3, loopEnd+3, func(i int) bool {
		return i == splitIdx || (i >= loopStart && i <= loopEnd)
	})
	name := "dash (-)"
	if separator == separatorBacktick {
		name = "backtick (`)"
	}
	return []findings.Finding{r.finding(
		method.Location(),
		"Detected structured encoded blob splitting pattern ("+name+" separator in loop)",
		findings.High,
		snippet,
	)}
}

// findSplit returns the last String.Split(sep, options) call preceded by a
// backtick or dash constant.
func (r *EncodedBlobSplittingRule) findSplit(instrs []dotnet.Instruction) (int, rune) {
	splitIdx, separator := -1, rune(0)
	for i, in := range instrs {
		if in.OpCode != dotnet.OpCallvirt {
			continue
		}
		target, ok := in.CallTarget()
		if !ok || target.DeclaringType != "System.String" || target.Name != "Split" || len(target.Params) != 2 {
			continue
		}
		for j := max(0, i-r.separatorWindow); j < i; j++ {
			prev := instrs[j]
			if prev.OpCode != dotnet.OpLdcI4S && prev.OpCode != dotnet.OpLdcI4 {
				continue
			}
			if v, ok := prev.IntConstant(); ok && (v == separatorBacktick || v == separatorDash) {
				splitIdx, separator = i, rune(v)
				break
			}
		}
	}
	return splitIdx, separator
}

// findLoop looks after the split for clt followed by a backward brtrue with a
// local load shortly before the comparison.
func (r *EncodedBlobSplittingRule) findLoop(instrs []dotnet.Instruction, splitIdx int) (int, int) {
	for i := splitIdx + 1; i < len(instrs)-1; i++ {
		if instrs[i].OpCode != dotnet.OpClt {
			continue
		}
		for j := i + 1; j < len(instrs) && j < i+1+r.branchWindow; j++ {
			br := instrs[j]
			if br.OpCode != dotnet.OpBrtrue && br.OpCode != dotnet.OpBrtrueS {
				continue
			}
			offset, ok := br.BranchTargetOffset()
			if !ok {
				continue
			}
			target := dotnet.IndexOfOffset(instrs, offset)
			if target < 0 || target >= i {
				continue
			}
			if r.hasLocalLoad(instrs, i) {
				return target, j
			}
		}
	}
	return -1, -1
}

func (r *EncodedBlobSplittingRule) hasLocalLoad(instrs []dotnet.Instruction, cmp int) bool {
	for k := max(0, cmp-r.localWindow); k < cmp; k++ {
		if _, ok := instrs[k].LoadedLocal(); ok {
			return true
		}
	}
	return false
}

// COMReflectionAttackRule detects shell execution through a COM ProgID
// resolved with GetTypeFromProgID and driven by CreateInstance or InvokeMember.
type COMReflectionAttackRule struct {
	Base
	literalWindow int
}

func NewCOMReflectionAttackRule(literalWindow int) *COMReflectionAttackRule {
	return &COMReflectionAttackRule{
		Base: Base{
			id:          COMReflectionAttackRuleID,
			description: "Detected reflective shell execution via COM (GetTypeFromProgID + InvokeMember pattern).",
			severity:    findings.Critical,
		},
		literalWindow: literalWindow,
	}
}

func (r *COMReflectionAttackRule) AnalyzeInstructions(method *dotnet.MethodDef, instrs []dotnet.Instruction, _ *signals.Signals) []findings.Finding {
	var (
		hasProgID, hasCreate, hasInvoke bool
		progID, member                  string
		hasProgIDLiteral, hasMember     bool
	)
	for i, in := range instrs {
		target, ok := in.DirectCall()
		if !ok || target.DeclaringType == "" {
			continue
		}
		switch {
		case target.DeclaringType == "System.Type" && target.Name == "GetTypeFromProgID":
			hasProgID = true
			if s, ok := firstLiteralBefore(instrs, i, r.literalWindow); ok {
				progID, hasProgIDLiteral = s, true
			}
		case target.DeclaringType == "System.Activator" && target.Name == "CreateInstance":
			hasCreate = true
		case target.DeclaringType == "System.Type" && target.Name == "InvokeMember":
			hasInvoke = true
			if s, ok := firstLiteralBefore(instrs, i, r.literalWindow); ok {
				member, hasMember = s, true
			}
		}
	}

	if !hasProgID || !(hasCreate || hasInvoke) {
		return nil
	}
	shell := (hasProgIDLiteral && strings.Contains(progID, "Shell")) ||
		(hasMember && strings.Contains(member, "ShellExecute"))
	if !shell && !(hasProgIDLiteral && hasMember) {
		return nil
	}
	return []findings.Finding{r.finding(
		method.Location(),
		"Reflective shell execution detected via COM (GetTypeFromProgID + InvokeMember pattern)",
		findings.Critical,
		dotnet.Dump(instrs),
	)}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
