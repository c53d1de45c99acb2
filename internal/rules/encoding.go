package rules

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// suspiciousKeywords are screened case-insensitively in decoded payloads.
var suspiciousKeywords = []string{
	"Process", "ProcessStartInfo", "powershell", "cmd.exe", "Start",
	"Execute", "Shell", ".ps1", ".bat", ".exe", "WindowStyle",
	"Hidden", "ExecutionPolicy", "Invoke-WebRequest", "DownloadFile",
	"FromBase64String", "Assembly.Load", "Reflection", "GetMethod",
	"CreateInstance", "Activator", "AppData", "Startup", "Registry",
	"RunOnce", `CurrentVersion\Run`,
}

var hexPattern = regexp.MustCompile(`^[0-9A-Fa-f]{16,}$`)

// NumericDecoder recognises strings of 2-3 digit ASCII codes joined by a
// single separator ("-", "." or "`").
type NumericDecoder struct {
	patterns []*regexp.Regexp
}

// NewNumericDecoder requires at least minSeparators separators, which means
// minSeparators+1 encoded characters.
func NewNumericDecoder(minSeparators int) *NumericDecoder {
	if minSeparators < 1 {
		minSeparators = 1
	}
	d := &NumericDecoder{}
	for _, sep := range []string{"-", `\.`, "`"} {
		d.patterns = append(d.patterns, regexp.MustCompile(fmt.Sprintf(`^\d{2,3}(%s\d{2,3}){%d,}$`, sep, minSeparators)))
	}
	return d
}

// IsEncoded reports whether literal has the numeric-encoded shape.
func (d *NumericDecoder) IsEncoded(literal string) bool {
	if strings.TrimSpace(literal) == "" {
		return false
	}
	for _, p := range d.patterns {
		if p.MatchString(literal) {
			return true
		}
	}
	return false
}

// DecodeNumeric decodes an encoded string. Any segment that is not a number
// in [0,127] rejects the whole input.
func DecodeNumeric(encoded string) (string, bool) {
	sep := "-"
	if strings.Contains(encoded, ".") {
		sep = "."
	} else if strings.Contains(encoded, "`") {
		sep = "`"
	}
	parts := strings.Split(encoded, sep)
	out := make([]byte, len(parts))
	for i, p := range parts {
		code, err := strconv.Atoi(p)
		if err != nil || code < 0 || code > 127 {
			return "", false
		}
		out[i] = byte(code)
	}
	return string(out), true
}

// IsHexEncoded reports an even-length hex string of at least 16 characters.
func IsHexEncoded(literal string) bool {
	return len(literal)%2 == 0 && hexPattern.MatchString(literal)
}

// DecodeHex decodes a hex string and interprets the bytes as UTF-8.
func DecodeHex(literal string) (string, bool) {
	raw, err := hex.DecodeString(literal)
	if err != nil {
		return "", false
	}
	return strings.ToValidUTF8(string(raw), "\uFFFD"), true
}

// ContainsSuspiciousContent screens decoded text against the keyword list.
func ContainsSuspiciousContent(decoded string) bool {
	if strings.TrimSpace(decoded) == "" {
		return false
	}
	for _, k := range suspiciousKeywords {
		if containsFold(decoded, k) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func containsAnyFold(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
