package analyzer

import (
	"strings"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/rules"
)

var suspiciousLiteralMarkers = []string{
	"powershell", "cmd.exe", "wscript", "cscript", "shellexecute", "startup", "runonce",
}

// StringPatternDetector looks for payload evidence around reflective calls.
type StringPatternDetector struct {
	decoder *rules.NumericDecoder
	window  int
}

func NewStringPatternDetector(decoder *rules.NumericDecoder, window int) *StringPatternDetector {
	return &StringPatternDetector{decoder: decoder, window: window}
}

// HasSuspiciousStringPatterns scans [index-window, index+window) for an
// encoded literal with suspicious content, a literal naming a shell or an
// autostart location, or a base64 decoding call.
func (d *StringPatternDetector) HasSuspiciousStringPatterns(instrs []dotnet.Instruction, index int) bool {
	start, end := max(0, index-d.window), index+d.window
	if end > len(instrs) {
		end = len(instrs)
	}
	for i := start; i < end; i++ {
		in := instrs[i]
		if s, ok := in.StringOperand(); ok {
			if d.decoder.IsEncoded(s) {
				if decoded, ok := rules.DecodeNumeric(s); ok && rules.ContainsSuspiciousContent(decoded) {
					return true
				}
			}
			lower := strings.ToLower(s)
			for _, m := range suspiciousLiteralMarkers {
				if strings.Contains(lower, m) {
					return true
				}
			}
		}
		if target, ok := in.DirectCall(); ok && target.DeclaringType != "" &&
			strings.Contains(target.DeclaringType, "Convert") && strings.Contains(target.Name, "FromBase64") {
			return true
		}
	}
	return false
}

// HasAssemblyLoading reports an Assembly.Load or LoadFrom call anywhere in the method.
func (d *StringPatternDetector) HasAssemblyLoading(instrs []dotnet.Instruction) bool {
	for _, in := range instrs {
		if target, ok := in.DirectCall(); ok && target.DeclaringType != "" && rules.IsAssemblyLoad(target) {
			return true
		}
	}
	return false
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
