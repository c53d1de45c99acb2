package rules

import (
	"fmt"
	"strings"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
)

var (
	highRiskDlls = []string{
		"kernel32.dll", "user32.dll", "advapi32.dll", "ntdll.dll",
		"wininet.dll", "urlmon.dll", "winsock.dll", "ws2_32.dll",
		"psapi.dll", "dbghelp.dll", "shell32.dll",
	}
	mediumRiskDlls = []string{
		"gdi32.dll", "ole32.dll", "oleaut32.dll", "comctl32.dll",
		"comdlg32.dll", "version.dll", "winmm.dll",
	}
	highRiskFunctions = []string{
		"createprocess", "virtualalloc", "virtualallocex", "virtualprotect",
		"writeprocessmemory", "readprocessmemory", "createremotethread", "openprocess",
		"internetopen", "internetconnect", "internetreadfile", "httpopen",
		"urldownload", "createthread", "loadlibrary", "getprocaddress",
		"createmutex", "openthread", "suspendthread", "resumethread",
		"inject", "memcpy", "strcpy", "shellexecute",
	}
)

// DllImportRule grades native imports by module and entry point.
type DllImportRule struct{ Base }

func NewDllImportRule() *DllImportRule {
	return &DllImportRule{Base{
		id:          DllImportRuleID,
		description: "Detected DLL import",
		severity:    findings.Medium,
	}}
}

// IsSuspicious flags every call target that resolves to a native import.
func (r *DllImportRule) IsSuspicious(target *dotnet.MethodRef) bool {
	return target != nil && target.PInvoke != nil
}

// AnalyzeImport returns the risk tier of a native import.
func (r *DllImportRule) AnalyzeImport(target *dotnet.MethodRef) (findings.Severity, string, bool) {
	if target == nil || target.PInvoke == nil {
		return 0, "", false
	}
	dll := target.PInvoke.Module
	entry := target.PInvoke.EntryPoint
	if entry == "" {
		entry = target.Name
	}
	dllLower := strings.ToLower(dll)
	riskyFunction := containsAny(strings.ToLower(entry), highRiskFunctions)

	switch {
	case containsAny(dllLower, highRiskDlls) && riskyFunction:
		return findings.Critical, fmt.Sprintf("Detected high-risk DllImport of %s with suspicious function %s", dll, entry), true
	case containsAny(dllLower, highRiskDlls):
		return findings.High, "Detected high-risk DllImport of " + dll, true
	case riskyFunction:
		return findings.Critical, fmt.Sprintf("Detected high-risk function %s in DllImport from %s", entry, dll), true
	case containsAny(dllLower, mediumRiskDlls):
		return findings.Medium, "Detected medium-risk DllImport of " + dll, true
	}
	return findings.Medium, "Detected DllImport of " + dll, true
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
