// Package analyzer walks decoded assemblies and turns rule judgments into
// findings. One AssemblyScanner holds the signal context of one scan and must
// not be shared between goroutines.
package analyzer

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/internal/signals"
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

var (
	ErrNilRules   = errors.New("analyzer: rule set is nil")
	ErrNilConfig  = errors.New("analyzer: scan config is nil")
	ErrNilTracker = errors.New("analyzer: signal tracker is nil")
)

// scanAdvisory is reported when any part of an assembly could not be decoded.
const scanAdvisory = "Warning: Some parts of the assembly could not be scanned. Please ensure this is a valid MelonLoader mod. This doesn't necessarily mean the mod is malicious."

// advisoryLocation is used for the advisory when the caller gave no path.
const advisoryLocation = "Assembly scanning"

// env is the state shared by the scanners of one assembly scan.
type env struct {
	rules   []rules.Rule
	cfg     config.ScanConfig
	w       config.Windows
	tracker *signals.Tracker
	logger  hclog.Logger
}

func newEnv(ruleSet []rules.Rule, cfg *config.ScanConfig, tracker *signals.Tracker, logger hclog.Logger) (*env, error) {
	if ruleSet == nil {
		return nil, ErrNilRules
	}
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if tracker == nil {
		return nil, ErrNilTracker
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &env{
		rules:   ruleSet,
		cfg:     *cfg,
		w:       cfg.Windows.WithDefaults(),
		tracker: tracker,
		logger:  logger,
	}, nil
}

// reflectionRule returns the rule that owns reflective invocation findings.
func (e *env) reflectionRule() (rules.Rule, bool) {
	return rules.Find(e.rules, rules.ReflectionRuleID)
}

// hasOtherTrigger reports whether a rule other than ruleID fired in the method
// or anywhere in its type so far.
func (e *env) hasOtherTrigger(sig *signals.Signals, typeName, ruleID string) bool {
	if sig.HasTriggeredRuleOtherThan(ruleID) {
		return true
	}
	return typeName != "" && e.tracker.TypeSignals(typeName).HasTriggeredRuleOtherThan(ruleID)
}

// recoverScope converts a panic inside a scope into an error so that the
// caller can skip the scope and continue with its siblings.
func recoverScope(err *error) {
	if r := recover(); r != nil {
		recoverValue(err, r)
	}
}

func recoverValue(err *error, r interface{}) {
	*err = fmt.Errorf("recovered: %v", r)
}

func callLocation(method *dotnet.MethodDef, in dotnet.Instruction) string {
	return fmt.Sprintf("%s:%d", method.Location(), in.Offset)
}
