package rules

import (
	"strings"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
)

const (
	metadataAttribute = "AssemblyMetadataAttribute"
	// metadataMinParts is the dot-split length at which a metadata value is
	// decoded even when its segments do not have the strict encoded shape.
	metadataMinParts = 10
)

// EncodedStringLiteralRule decodes numeric-encoded literals and metadata
// values and screens the result for suspicious content.
type EncodedStringLiteralRule struct {
	Base
	decoder *NumericDecoder
}

func NewEncodedStringLiteralRule(minSeparators int) *EncodedStringLiteralRule {
	return &EncodedStringLiteralRule{
		Base: Base{
			id:          EncodedStringLiteralRuleID,
			description: "Detected numeric-encoded string literals (potential obfuscated payload).",
			severity:    findings.High,
		},
		decoder: NewNumericDecoder(minSeparators),
	}
}

// Decoder exposes the literal shape check used by the rule.
func (r *EncodedStringLiteralRule) Decoder() *NumericDecoder {
	return r.decoder
}

func (r *EncodedStringLiteralRule) AnalyzeStringLiteral(literal string, method *dotnet.MethodDef, index int) []findings.Finding {
	if !r.decoder.IsEncoded(literal) {
		return nil
	}
	decoded, ok := DecodeNumeric(literal)
	if !ok || !ContainsSuspiciousContent(decoded) {
		return nil
	}
	return []findings.Finding{r.finding(
		location(method.DeclaringType.FullName(), method.Name, offsetAt(method, index)),
		"Numeric-encoded string with suspicious content detected. Decoded: "+decoded,
		findings.High,
		"Encoded: "+literal+"\nDecoded: "+decoded,
	)}
}

func (r *EncodedStringLiteralRule) AnalyzeAssemblyMetadata(asm *dotnet.Assembly) []findings.Finding {
	if asm == nil {
		return nil
	}
	var out []findings.Finding
	for _, attr := range asm.Attributes {
		if attr.Name() != metadataAttribute {
			continue
		}
		for _, arg := range attr.Args {
			value, ok := arg.(string)
			if !ok || strings.TrimSpace(value) == "" {
				continue
			}
			if !r.decoder.IsEncoded(value) && !(strings.Contains(value, ".") && len(strings.Split(value, ".")) >= metadataMinParts) {
				continue
			}
			decoded, ok := DecodeNumeric(value)
			if !ok || !ContainsSuspiciousContent(decoded) {
				continue
			}
			out = append(out, r.finding(
				"Assembly Metadata: "+metadataAttribute,
				"Hidden payload in assembly metadata attribute. Decoded content: "+decoded,
				findings.Critical,
				"Encoded: "+value+"\nDecoded: "+decoded,
			))
		}
	}
	return out
}

// HexStringRule decodes long hex literals and screens the result.
type HexStringRule struct{ Base }

func NewHexStringRule() *HexStringRule {
	return &HexStringRule{Base{
		id:          HexStringRuleID,
		description: "Detected hexadecimal encoded string (potential obfuscated payload).",
		severity:    findings.Medium,
	}}
}

func (r *HexStringRule) IsSuspicious(target *dotnet.MethodRef) bool {
	return target != nil && target.Name == "FromHexString" && target.DeclaringTypeName() == "Convert"
}

func (r *HexStringRule) AnalyzeStringLiteral(literal string, method *dotnet.MethodDef, index int) []findings.Finding {
	if strings.TrimSpace(literal) == "" || !IsHexEncoded(literal) {
		return nil
	}
	decoded, ok := DecodeHex(literal)
	if !ok || !ContainsSuspiciousContent(decoded) {
		return nil
	}
	return []findings.Finding{r.finding(
		location(method.DeclaringType.FullName(), method.Name, offsetAt(method, index)),
		"Hex-encoded string with suspicious content detected. Decoded: "+decoded,
		findings.High,
		"Encoded: "+literal+"\nDecoded: "+decoded,
	)}
}
