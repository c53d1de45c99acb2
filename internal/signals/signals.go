package signals

import (
	"strings"
)

// Signal is one behavioural trait observed while scanning a method.
type Signal uint8

const (
	EncodedStrings Signal = 1 << iota
	SuspiciousReflection
	SensitiveFolder
	ProcessLikeCall
	Base64
	NetworkCall
	FileWrite
)

// descriptionOrder fixes the order signals are listed in composite findings.
var descriptionOrder = []struct {
	signal Signal
	text   string
}{
	{EncodedStrings, "encoded strings"},
	{SuspiciousReflection, "suspicious reflection"},
	{SensitiveFolder, "sensitive folder access"},
	{ProcessLikeCall, "process execution"},
	{Base64, "Base64 decoding"},
	{NetworkCall, "network call"},
	{FileWrite, "file write"},
}

func (s Signal) String() string {
	for _, d := range descriptionOrder {
		if d.signal == s {
			return d.text
		}
	}
	return "unknown"
}

// Signals records the traits seen in one method or one type together with the
// ids of the rules that produced findings there. Flags only ever get set.
// All methods accept a nil receiver, which behaves as an empty record.
type Signals struct {
	flags     Signal
	triggered map[string]struct{}
}

// New returns an empty record.
func New() *Signals {
	return &Signals{triggered: make(map[string]struct{})}
}

// Set marks s as observed.
func (r *Signals) Set(s Signal) {
	if r == nil {
		return
	}
	r.flags |= s
}

// Has reports whether every signal in s was observed.
func (r *Signals) Has(s Signal) bool {
	if r == nil {
		return false
	}
	return r.flags&s == s
}

// HasAny reports whether at least one signal in s was observed.
func (r *Signals) HasAny(s Signal) bool {
	if r == nil {
		return false
	}
	return r.flags&s != 0
}

// Count returns the number of distinct signals observed.
func (r *Signals) Count() int {
	if r == nil {
		return 0
	}
	n := 0
	for f := r.flags; f != 0; f &= f - 1 {
		n++
	}
	return n
}

// MarkRuleTriggered records that ruleID produced a finding. Empty ids are ignored.
func (r *Signals) MarkRuleTriggered(ruleID string) {
	if r == nil || ruleID == "" {
		return
	}
	if r.triggered == nil {
		r.triggered = make(map[string]struct{})
	}
	r.triggered[ruleID] = struct{}{}
}

// RuleTriggered reports whether ruleID produced a finding.
func (r *Signals) RuleTriggered(ruleID string) bool {
	if r == nil {
		return false
	}
	_, ok := r.triggered[ruleID]
	return ok
}

// HasTriggeredRuleOtherThan reports whether any rule except ruleID produced a finding.
func (r *Signals) HasTriggeredRuleOtherThan(ruleID string) bool {
	if r == nil {
		return false
	}
	for id := range r.triggered {
		if id != ruleID {
			return true
		}
	}
	return false
}

// IsCriticalCombination reports whether the observed signals form a pattern
// that is almost always malicious.
func (r *Signals) IsCriticalCombination() bool {
	switch {
	case r.Has(SuspiciousReflection | EncodedStrings):
	case r.Has(SuspiciousReflection | SensitiveFolder):
	case r.Has(EncodedStrings | ProcessLikeCall):
	case r.Has(SensitiveFolder | FileWrite | ProcessLikeCall):
	case r.Has(NetworkCall | SensitiveFolder | FileWrite):
	default:
		return false
	}
	return true
}

// IsHighRiskCombination reports two or more signals that do not form a
// critical combination.
func (r *Signals) IsHighRiskCombination() bool {
	return r.Count() >= 2 && !r.IsCriticalCombination()
}

// CombinationDescription lists the observed signals joined with " + ".
func (r *Signals) CombinationDescription() string {
	parts := make([]string, 0, len(descriptionOrder))
	for _, d := range descriptionOrder {
		if r.Has(d.signal) {
			parts = append(parts, d.text)
		}
	}
	return strings.Join(parts, " + ")
}
