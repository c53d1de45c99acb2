package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/modscan/internal/dotnet"
	dt "github.com/scan-io-git/modscan/internal/dotnet/dotnettest"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/internal/signals"
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

func TestInvokedMethodName(t *testing.T) {
	cfg := config.DefaultScanConfig()
	d, err := NewReflectionDetector(rules.Default(cfg), &cfg, signals.NewTracker(true))
	require.NoError(t, err)

	padded := make([]dotnet.Instruction, 0, 22)
	padded = append(padded, dt.Ldstr("Launch"))
	for i := 0; i < 20; i++ {
		padded = append(padded, dt.Op(dotnet.OpNop))
	}
	padded = append(padded, methodInvoke())

	tests := []struct {
		name   string
		instrs []dotnet.Instruction
		index  int
		want   string
	}{
		{
			name:   "literal before the call",
			instrs: dt.Body(dt.Ldstr("Launch"), dt.Op(dotnet.OpLdnull), methodInvoke()),
			index:  2,
			want:   "Launch",
		},
		{
			name: "COM shell object",
			instrs: dt.Body(
				dt.Ldstr("Shell.Application"),
				dt.Call("System.Type", "GetTypeFromProgID", "System.String"),
				methodInvoke(),
			),
			index: 2,
			want:  "ShellExecute",
		},
		{
			name:   "name after the call",
			instrs: dt.Body(dt.Op(dotnet.OpLdnull), methodInvoke(), dt.Ldstr("Execute")),
			index:  1,
			want:   "Execute",
		},
		{
			name:   "name after the call outside the forward list",
			instrs: dt.Body(dt.Op(dotnet.OpLdnull), methodInvoke(), dt.Ldstr("Run")),
			index:  1,
		},
		{
			name:   "hex encoded literal",
			instrs: dt.Body(dt.Ldstr("4578656375746550726f63657373"), methodInvoke()),
			index:  1,
			want:   "ExecuteProcess",
		},
		{
			name:   "benign literal",
			instrs: dt.Body(dt.Ldstr("OnUpdate"), methodInvoke()),
			index:  1,
		},
		{
			name:   "literal beyond the lookback",
			instrs: dt.Body(padded...),
			index:  21,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.InvokedMethodName(tt.instrs, tt.index))
		})
	}
}

func TestIsSuspiciousMethodName(t *testing.T) {
	for _, name := range []string{"ShellExecute", "runCommand", "LoadLibraryA", "powershell.exe", "CreateProcessW", "Shell.Application"} {
		assert.True(t, IsSuspiciousMethodName(name), name)
	}
	for _, name := range []string{"", "   ", "OnUpdate", "GetValue", "Dispose"} {
		assert.False(t, IsSuspiciousMethodName(name), name)
	}
}

func TestIsReflectionInvoke(t *testing.T) {
	assert.True(t, IsReflectionInvoke(dotnet.NewMethodRef("System.Reflection.MethodInfo", "Invoke")))
	assert.True(t, IsReflectionInvoke(dotnet.NewMethodRef("System.Reflection.MethodBase", "Invoke")))
	assert.True(t, IsReflectionInvoke(dotnet.NewMethodRef("System.Type", "InvokeMember")))
	assert.True(t, IsReflectionInvoke(dotnet.NewMethodRef("System.Type", "GetTypeFromProgID")))
	assert.True(t, IsReflectionInvoke(dotnet.NewMethodRef("System.Activator", "CreateInstance")))
	assert.False(t, IsReflectionInvoke(dotnet.NewMethodRef("System.Type", "GetMethod")))
	assert.False(t, IsReflectionInvoke(dotnet.NewMethodRef("System.Action", "Invoke")))
	assert.False(t, IsReflectionInvoke(nil))
}

func TestStringPatternDetector(t *testing.T) {
	d := NewStringPatternDetector(rules.NewNumericDecoder(10), 20)

	assert.True(t, d.HasSuspiciousStringPatterns(dt.Body(dt.Ldstr("powershell -enc AAAA"), methodInvoke()), 1))
	assert.True(t, d.HasSuspiciousStringPatterns(dt.Body(dt.Ldstr(encodedPowershell), methodInvoke()), 1))
	assert.True(t, d.HasSuspiciousStringPatterns(dt.Body(
		dt.Call("System.Convert", "FromBase64String", "System.String"),
		methodInvoke(),
	), 1))
	assert.False(t, d.HasSuspiciousStringPatterns(dt.Body(dt.Ldstr("Hello"), methodInvoke()), 1))

	far := []dotnet.Instruction{methodInvoke()}
	for i := 0; i < 20; i++ {
		far = append(far, dt.Op(dotnet.OpNop))
	}
	far = append(far, dt.Ldstr("cmd.exe"))
	assert.False(t, d.HasSuspiciousStringPatterns(dt.Body(far...), 0))

	assert.True(t, d.HasAssemblyLoading(dt.Body(dt.Call("System.Reflection.Assembly", "Load", "System.Byte[]"))))
	assert.False(t, d.HasAssemblyLoading(dt.Body(dt.Call("System.IO.File", "ReadAllBytes", "System.String"))))
}

func nativeImport(typ *dotnet.TypeDef, name, module string, params ...dotnet.Param) *dotnet.MethodDef {
	m := typ.AddMethod(name, nil)
	m.Attributes = dotnet.MethodPInvokeImpl
	m.ReturnType = "System.IntPtr"
	m.Params = params
	m.PInvoke = &dotnet.PInvokeInfo{Module: module}
	return m
}

func TestPInvokeScanner(t *testing.T) {
	cfg := config.DefaultScanConfig()
	s, err := NewPInvokeScanner(rules.Default(cfg), nil)
	require.NoError(t, err)

	native := dt.Type("Mod.Native")
	nativeImport(native, "CreateRemoteThread", "kernel32.dll",
		dotnet.Param{Type: "System.IntPtr", Name: "hProcess"},
		dotnet.Param{Type: "System.UInt32", Name: "dwStackSize"},
	)
	native.AddMethod("Managed", dt.Body(dt.Op(dotnet.OpRet)))
	inner := native.AddNested(dotnet.NewType("", "Timing"))
	nativeImport(inner, "GetTickCount", "kernel32.dll")
	nativeImport(native, "PlaySound", "winmm.dll")
	nativeImport(native, "Compute", "mathlib.dll")

	got := s.Scan(&dotnet.Module{Name: "Mod.dll", Types: []*dotnet.TypeDef{native}})
	require.Len(t, got, 4)

	byLocation := make(map[string]findings.Finding, len(got))
	for _, f := range got {
		assert.Equal(t, rules.DllImportRuleID, f.RuleID)
		byLocation[f.Location] = f
	}

	crt := byLocation["Mod.Native.CreateRemoteThread"]
	assert.Equal(t, findings.Critical, crt.Severity)
	assert.Equal(t, "Detected high-risk DllImport of kernel32.dll with suspicious function CreateRemoteThread", crt.Description)
	assert.Equal(t,
		"[DllImport(\"kernel32.dll\", EntryPoint = \"CreateRemoteThread\")]\nIntPtr CreateRemoteThread(IntPtr hProcess, UInt32 dwStackSize);",
		crt.CodeSnippet)

	tick := byLocation["Mod.Native/Timing.GetTickCount"]
	assert.Equal(t, findings.High, tick.Severity)
	assert.Equal(t, "Detected high-risk DllImport of kernel32.dll", tick.Description)

	assert.Equal(t, findings.Medium, byLocation["Mod.Native.PlaySound"].Severity)
	assert.Equal(t, "Detected medium-risk DllImport of winmm.dll", byLocation["Mod.Native.PlaySound"].Description)
	assert.Equal(t, "Detected DllImport of mathlib.dll", byLocation["Mod.Native.Compute"].Description)
}
