package signals

import (
	"strings"

	"github.com/scan-io-git/modscan/internal/dotnet"
)

// Tracker owns the signal records of one assembly scan. Method records are
// handed out to the caller; type records live in the tracker between
// EnsureTypeSignals and ClearTypeSignals. A Tracker is not safe for
// concurrent use; every assembly scan gets its own.
type Tracker struct {
	enabled bool
	types   map[string]*Signals
}

// NewTracker creates a tracker. A disabled tracker hands out nil records,
// which turns every signal operation into a no-op.
func NewTracker(enabled bool) *Tracker {
	return &Tracker{enabled: enabled, types: make(map[string]*Signals)}
}

// Enabled reports whether multi-signal detection is on.
func (t *Tracker) Enabled() bool {
	return t.enabled
}

// NewMethodSignals returns a fresh record for one method body.
func (t *Tracker) NewMethodSignals() *Signals {
	if !t.enabled {
		return nil
	}
	return New()
}

// EnsureTypeSignals returns the record for typeName, creating it on first use.
func (t *Tracker) EnsureTypeSignals(typeName string) *Signals {
	if !t.enabled || typeName == "" {
		return nil
	}
	rec, ok := t.types[typeName]
	if !ok {
		rec = New()
		t.types[typeName] = rec
	}
	return rec
}

// TypeSignals returns the live record for typeName or nil.
func (t *Tracker) TypeSignals(typeName string) *Signals {
	return t.types[typeName]
}

// ClearTypeSignals ends the lifetime of the record for typeName.
func (t *Tracker) ClearTypeSignals(typeName string) {
	delete(t.types, typeName)
}

// LiveTypes returns the number of live type records.
func (t *Tracker) LiveTypes() int {
	return len(t.types)
}

// Mark sets s on the method record and on the declaring type's record.
func (t *Tracker) Mark(sig *Signals, declaringType string, s Signal) {
	if sig == nil {
		return
	}
	sig.Set(s)
	t.EnsureTypeSignals(declaringType).Set(s)
}

// MarkRuleTriggered records ruleID on the method record and on the declaring
// type's record.
func (t *Tracker) MarkRuleTriggered(sig *Signals, declaringType, ruleID string) {
	if sig == nil || ruleID == "" {
		return
	}
	sig.MarkRuleTriggered(ruleID)
	t.EnsureTypeSignals(declaringType).MarkRuleTriggered(ruleID)
}

// UpdateFromCall derives signals from a call target. Reflective invocation is
// recorded for the method only.
func (t *Tracker) UpdateFromCall(sig *Signals, target *dotnet.MethodRef, declaringType string) {
	if sig == nil || target == nil || target.DeclaringType == "" {
		return
	}
	typeName, name := target.DeclaringType, target.Name

	if strings.Contains(typeName, "Convert") && strings.Contains(name, "FromBase64") {
		t.Mark(sig, declaringType, Base64)
	}
	if strings.Contains(typeName, "System.Diagnostics.Process") && name == "Start" {
		t.Mark(sig, declaringType, ProcessLikeCall)
	}
	if IsReflectionInvoke(target) {
		sig.Set(SuspiciousReflection)
	}
	if strings.HasPrefix(typeName, "System.Net") ||
		strings.Contains(typeName, "WebRequest") ||
		strings.Contains(typeName, "HttpClient") ||
		strings.Contains(typeName, "WebClient") {
		t.Mark(sig, declaringType, NetworkCall)
	}
	if (strings.HasPrefix(typeName, "System.IO.File") && (strings.Contains(name, "Write") || strings.Contains(name, "Create"))) ||
		(strings.HasPrefix(typeName, "System.IO.Stream") && strings.Contains(name, "Write")) {
		t.Mark(sig, declaringType, FileWrite)
	}
}

// IsReflectionInvoke matches MethodInfo.Invoke and MethodBase.Invoke.
func IsReflectionInvoke(target *dotnet.MethodRef) bool {
	if target == nil || target.Name != "Invoke" {
		return false
	}
	return target.DeclaringType == "System.Reflection.MethodInfo" ||
		target.DeclaringType == "System.Reflection.MethodBase"
}
