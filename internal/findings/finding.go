package findings

import (
	"fmt"
	"strings"
)

// Severity is the ordered risk level of a finding: Low < Medium < High < Critical.
type Severity int

const (
	Low Severity = iota
	Medium
	High
	Critical
)

var severityNames = [...]string{"Low", "Medium", "High", "Critical"}

func (s Severity) String() string {
	if s < Low || s > Critical {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return Severity(i), nil
		}
	}
	return Low, fmt.Errorf("unknown severity %q, expected one of %s", name, strings.Join(severityNames[:], ", "))
}

// MarshalText renders the severity by name in JSON and YAML documents.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Finding is a single detection produced while scanning an assembly.
type Finding struct {
	RuleID      string   `json:"rule_id,omitempty"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	CodeSnippet string   `json:"code_snippet,omitempty"`
}

// New builds a finding without a snippet.
func New(location, description string, severity Severity) Finding {
	return Finding{Location: location, Description: description, Severity: severity}
}

// WithSnippet returns a copy carrying the given snippet.
func (f Finding) WithSnippet(snippet string) Finding {
	f.CodeSnippet = snippet
	return f
}

// WithRule returns a copy attributed to the producing rule.
func (f Finding) WithRule(ruleID string) Finding {
	f.RuleID = ruleID
	return f
}

func (f Finding) String() string {
	base := fmt.Sprintf("[%s] %s at %s", f.Severity, f.Description, f.Location)
	if f.CodeSnippet != "" {
		base += "\n   Snippet: " + f.CodeSnippet
	}
	return base
}

// Result is the outcome of scanning one file.
type Result struct {
	FileName    string            `json:"file_name"`
	Path        string            `json:"path"`
	SHA256      string            `json:"sha256"`
	Whitelisted bool              `json:"whitelisted"`
	Skipped     bool              `json:"skipped,omitempty"`
	Error       string            `json:"error,omitempty"`
	Findings    []Finding         `json:"findings"`
	ILDumps     map[string]string `json:"il_dumps,omitempty"`
}

// CountAtOrAbove returns the number of findings with severity >= min.
func (r Result) CountAtOrAbove(min Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity >= min {
			n++
		}
	}
	return n
}

// HighestSeverity returns the most severe finding level and false when there are none.
func (r Result) HighestSeverity() (Severity, bool) {
	if len(r.Findings) == 0 {
		return Low, false
	}
	max := Low
	for _, f := range r.Findings {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max, true
}
