package rules

import (
	"strings"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/signals"
)

// persistenceFolders are the SpecialFolder values that count as
// persistence-prone when a GetFolderPath call sits near a file operation.
var persistenceFolders = map[int]bool{
	7:  true, // Startup
	44: true, // CommonStartup
	26: true, // ApplicationData
	28: true, // LocalApplicationData
	35: true, // CommonApplicationData
}

// PersistenceRule flags executables written near Startup, AppData or ProgramData.
type PersistenceRule struct {
	Base
	window       int
	folderWindow int
	snippet      int
}

func NewPersistenceRule(window, folderWindow, snippet int) *PersistenceRule {
	return &PersistenceRule{
		Base: Base{
			id:          PersistenceRuleID,
			description: "Detected executable write near persistence-prone directory (Startup/AppData/ProgramData).",
			severity:    findings.High,
		},
		window:       window,
		folderWindow: folderWindow,
		snippet:      snippet,
	}
}

func (r *PersistenceRule) AnalyzeContextualPattern(target *dotnet.MethodRef, instrs []dotnet.Instruction, index int, _ *signals.Signals) []findings.Finding {
	if target == nil || target.DeclaringType == "" || !isFileOperation(target) {
		return nil
	}
	literals := literalsAround(instrs, index, r.window)
	if len(literals) == 0 {
		return nil
	}

	persistentDir := r.persistenceFolderNear(instrs, index)
	executable := false
	for _, s := range literals {
		if containsAnyFold(s, "Startup", "AppData", "ProgramData") {
			persistentDir = true
		}
		if hasSuffixFold(s, ".exe") || hasSuffixFold(s, ".bat") || hasSuffixFold(s, ".ps1") {
			executable = true
		}
	}
	if !persistentDir || !executable {
		return nil
	}
	return []findings.Finding{r.finding(
		location(target.DeclaringType, target.Name, instrs[index].Offset),
		"Executable write near persistence-prone directory (Startup/AppData/ProgramData).",
		findings.High,
		dotnet.Snippet(instrs, index, r.snippet),
	)}
}

// persistenceFolderNear reports a GetFolderPath call for a persistence-prone
// folder within the contextual window of index.
func (r *PersistenceRule) persistenceFolderNear(instrs []dotnet.Instruction, index int) bool {
	start, end := max(0, index-r.window), index+r.window+1
	if end > len(instrs) {
		end = len(instrs)
	}
	for i := start; i < end; i++ {
		target, ok := instrs[i].DirectCall()
		if !ok || !isGetFolderPath(target) {
			continue
		}
		if folder, ok := FolderArgument(instrs, i, r.folderWindow); ok && persistenceFolders[folder] {
			return true
		}
	}
	return false
}

func isFileOperation(target *dotnet.MethodRef) bool {
	typeName := target.DeclaringType
	if hasPrefixFold(typeName, "System.IO.") ||
		strings.EqualFold(typeName, "System.IO.File") ||
		strings.EqualFold(typeName, "System.IO.Directory") {
		return true
	}
	return hasPrefixFold(typeName, "System.IO") && containsAnyFold(target.Name, "Write", "Create", "Move", "Copy")
}
