package rules

import (
	"fmt"
	"strings"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/signals"
)

// Base64Rule flags base64 decoding calls.
type Base64Rule struct{ Base }

func NewBase64Rule() *Base64Rule {
	return &Base64Rule{Base{
		id:          Base64RuleID,
		description: "Detected FromBase64String call which decodes base64 encrypted strings.",
		severity:    findings.Low,
	}}
}

func (r *Base64Rule) IsSuspicious(target *dotnet.MethodRef) bool {
	if target == nil || target.DeclaringType == "" {
		return false
	}
	return strings.Contains(target.DeclaringType, "Convert") && strings.Contains(target.Name, "FromBase64")
}

func (r *Base64Rule) MatchesReflectedName(name string) bool {
	return strings.EqualFold(name, "FromBase64String") || strings.EqualFold(name, "ToBase64String")
}

// ProcessStartRule flags Process.Start.
type ProcessStartRule struct{ Base }

func NewProcessStartRule() *ProcessStartRule {
	return &ProcessStartRule{Base{
		id:          ProcessStartRuleID,
		description: "Detected Process.Start call which can launch external programs or shell commands.",
		severity:    findings.Critical,
	}}
}

func (r *ProcessStartRule) IsSuspicious(target *dotnet.MethodRef) bool {
	return target != nil && target.DeclaringType == "System.Diagnostics.Process" && target.Name == "Start"
}

// MatchesReflectedName only accepts the exact name so that names like
// "StartUpdateVolume" are not mistaken for process launches.
func (r *ProcessStartRule) MatchesReflectedName(name string) bool {
	return strings.EqualFold(name, "Start")
}

// Shell32Rule flags shell execution surfaces.
type Shell32Rule struct{ Base }

var shellReflectedNames = []string{
	"ShellExecute", "Shell", "Execute", "CreateProcess", "Spawn",
	"Command", "cmd.exe", "powershell.exe", "wscript.exe",
}

func NewShell32Rule() *Shell32Rule {
	return &Shell32Rule{Base{
		id:          Shell32RuleID,
		description: "Potential system shell execution detected",
		severity:    findings.Critical,
	}}
}

func (r *Shell32Rule) IsSuspicious(target *dotnet.MethodRef) bool {
	if target == nil || target.DeclaringType == "" {
		return false
	}
	typeName, name := target.DeclaringType, target.Name

	if strings.Contains(typeName, "Shell.Application") || strings.Contains(typeName, "Shell32") {
		return true
	}
	if name == "ShellExecute" || name == "ShellExec" {
		return true
	}

	switch name {
	case "GetTypeFromProgID":
		for _, p := range target.Params {
			if strings.Contains(p.Name, "Shell") || strings.Contains(p.Name, "shell32") {
				return true
			}
		}
	case "InvokeMember":
		if len(target.Params) > 0 {
			first := target.Params[0].Name
			if strings.Contains(first, "ShellExecute") || strings.Contains(first, "Execute") {
				return true
			}
		}
	case "Start", "Process", "Execute":
		for _, p := range target.Params {
			if strings.Contains(p.Name, "cmd") || strings.Contains(p.Name, "powershell") || strings.Contains(p.Name, ".exe") {
				return true
			}
		}
	}
	return false
}

func (r *Shell32Rule) MatchesReflectedName(name string) bool {
	for _, n := range shellReflectedNames {
		if containsFold(name, n) {
			return true
		}
	}
	return false
}

// LoadFromStreamRule flags dynamic assembly loading.
type LoadFromStreamRule struct{ Base }

func NewLoadFromStreamRule() *LoadFromStreamRule {
	return &LoadFromStreamRule{Base{
		id:          LoadFromStreamRuleID,
		description: "Detected dynamic assembly loading which could be used to execute hidden code.",
		severity:    findings.Critical,
	}}
}

func (r *LoadFromStreamRule) IsSuspicious(target *dotnet.MethodRef) bool {
	if target == nil || target.DeclaringType == "" {
		return false
	}
	return IsAssemblyLoad(target)
}

func (r *LoadFromStreamRule) MatchesReflectedName(name string) bool {
	return strings.Contains(name, "Load") || strings.Contains(name, "Assembly") || strings.Contains(name, "Compile")
}

// IsAssemblyLoad matches Assembly.Load, Assembly.LoadFrom* and the
// AssemblyLoadContext equivalents.
func IsAssemblyLoad(target *dotnet.MethodRef) bool {
	return strings.Contains(target.DeclaringType, "Assembly") &&
		(target.Name == "Load" || strings.Contains(target.Name, "LoadFrom"))
}

// ByteArrayManipulationRule flags byte payload staging. BitConverter is left
// alone because audio mods use it heavily.
type ByteArrayManipulationRule struct{ Base }

func NewByteArrayManipulationRule() *ByteArrayManipulationRule {
	return &ByteArrayManipulationRule{Base{
		id:          ByteArrayManipulationRuleID,
		description: "Detected byte array manipulation. Often legitimate (e.g., WAV/PCM audio processing), but can also be used to hide or load malicious payloads.",
		severity:    findings.Low,
	}}
}

func (r *ByteArrayManipulationRule) IsSuspicious(target *dotnet.MethodRef) bool {
	if target == nil {
		return false
	}
	switch target.DeclaringType {
	case "System.Convert":
		return target.Name == "FromBase64String" || target.Name == "FromBase64CharArray"
	case "System.IO.MemoryStream":
		return target.Name == ".ctor"
	}
	return false
}

// RegistryRule flags registry access through managed APIs or advapi32.
type RegistryRule struct{ Base }

var registryFunctions = []string{
	"regcreatekeyex", "regopenkey", "regopenkeya", "regopenkeyex",
	"regopenkeyexa", "regopenkeyexw", "regsetvalue", "regsetvaluea",
	"regsetvaluew", "regsetvalueex", "regsetvalueexa", "regsetvalueexw",
	"reggetvalue", "reggetvaluea", "reggetvaluew", "regdeletekey",
	"regdeletevalue", "regenumkey", "regenumvalue", "regqueryvalue",
	"regqueryvalueex", "regcreatekey", "regsetkeysecurity", "regloadkey",
	"regsavekey", "regnotifychangekeyvalue",
}

func NewRegistryRule() *RegistryRule {
	return &RegistryRule{Base{
		id:          RegistryRuleID,
		description: "Detected registry manipulation, which is suspicious for a MelonLoader mod. This could be used to persist malware or modify system settings.",
		severity:    findings.Critical,
	}}
}

func (r *RegistryRule) IsSuspicious(target *dotnet.MethodRef) bool {
	if target == nil || target.DeclaringType == "" {
		return false
	}
	typeName := target.DeclaringType
	if strings.Contains(typeName, "Microsoft.Win32.Registry") ||
		strings.Contains(typeName, "RegistryKey") ||
		strings.Contains(typeName, "RegistryHive") {
		return true
	}
	if containsRegistryFunction(target.Name) {
		return true
	}

	imp := target.PInvoke
	if imp == nil || !containsFold(imp.Module, "advapi32") {
		return false
	}
	entry := imp.EntryPoint
	if entry == "" {
		entry = target.Name
	}
	return containsRegistryFunction(entry)
}

func containsRegistryFunction(name string) bool {
	lower := strings.ToLower(name)
	for _, fn := range registryFunctions {
		if strings.Contains(lower, fn) {
			return true
		}
	}
	return false
}

// ReflectionRule flags MethodInfo/MethodBase.Invoke. Its findings only
// surface when another rule fired in the same method or type.
type ReflectionRule struct{ Base }

func NewReflectionRule() *ReflectionRule {
	return &ReflectionRule{Base{
		id:          ReflectionRuleID,
		description: "Detected reflection invocation without determinable target method (potential bypass).",
		severity:    findings.High,
		companion:   true,
	}}
}

func (r *ReflectionRule) IsSuspicious(target *dotnet.MethodRef) bool {
	return signals.IsReflectionInvoke(target)
}

// sensitiveFolders maps Environment.SpecialFolder values to their names.
var sensitiveFolders = map[int]string{
	26: "ApplicationData",
	7:  "Startup",
	28: "LocalApplicationData",
	35: "CommonApplicationData",
	44: "CommonStartup",
	5:  "MyDocuments",
	38: "ProgramFiles",
	43: "Windows",
	37: "System",
}

// IsSensitiveFolder reports whether a SpecialFolder value is commonly abused.
func IsSensitiveFolder(folder int) bool {
	_, ok := sensitiveFolders[folder]
	return ok
}

// FolderName returns the SpecialFolder name or "Folder(n)".
func FolderName(folder int) string {
	if name, ok := sensitiveFolders[folder]; ok {
		return name
	}
	return fmt.Sprintf("Folder(%d)", folder)
}

// EnvironmentPathRule flags GetFolderPath calls for sensitive folders.
type EnvironmentPathRule struct {
	Base
	window int
}

func NewEnvironmentPathRule(window int) *EnvironmentPathRule {
	return &EnvironmentPathRule{
		Base: Base{
			id:          EnvironmentPathRuleID,
			description: "Detected Environment.GetFolderPath access to sensitive directories (AppData, Startup, etc.).",
			severity:    findings.Low,
		},
		window: window,
	}
}

func (r *EnvironmentPathRule) IsSuspicious(target *dotnet.MethodRef) bool {
	return isGetFolderPath(target)
}

func (r *EnvironmentPathRule) AnalyzeContextualPattern(target *dotnet.MethodRef, instrs []dotnet.Instruction, index int, _ *signals.Signals) []findings.Finding {
	if !isGetFolderPath(target) {
		return nil
	}
	folder, ok := FolderArgument(instrs, index, r.window)
	if !ok || !IsSensitiveFolder(folder) {
		return nil
	}
	name := FolderName(folder)
	return []findings.Finding{r.finding(
		location(target.DeclaringType, target.Name, instrs[index].Offset),
		"Access to sensitive folder: "+name,
		findings.Low,
		fmt.Sprintf("Environment.GetFolderPath(%d) // %s", folder, name),
	)}
}
