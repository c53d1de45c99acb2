package config

import (
	"github.com/scan-io-git/modscan/internal/findings"
)

// Windows are the instruction distances the detectors look across.
type Windows struct {
	FolderArgument      int `yaml:"folder_argument"`      // GetFolderPath argument lookback
	Contextual          int `yaml:"contextual"`           // literals around file and network calls
	ReflectionLookback  int `yaml:"reflection_lookback"`  // invoked-name search before a reflective call
	ReflectionLookahead int `yaml:"reflection_lookahead"` // invoked-name search after a reflective call
	StringEvidence      int `yaml:"string_evidence"`      // suspicious-literal evidence around a reflective call
	Snippet             int `yaml:"snippet"`
	BypassSnippet       int `yaml:"bypass_snippet"`
	LiteralLookback     int `yaml:"literal_lookback"` // COM ProgID/member name and split separator constants
	ParseConv           int `yaml:"parse_conv"`
	LoopBranch          int `yaml:"loop_branch"`
	LoopLocal           int `yaml:"loop_local"`
}

func DefaultWindows() Windows {
	return Windows{
		FolderArgument:      5,
		Contextual:          10,
		ReflectionLookback:  20,
		ReflectionLookahead: 10,
		StringEvidence:      20,
		Snippet:             2,
		BypassSnippet:       4,
		LiteralLookback:     5,
		ParseConv:           3,
		LoopBranch:          4,
		LoopLocal:           10,
	}
}

// WithDefaults fills unset windows from DefaultWindows.
func (w Windows) WithDefaults() Windows {
	d := DefaultWindows()
	return Windows{
		FolderArgument:      SetThen(w.FolderArgument, d.FolderArgument),
		Contextual:          SetThen(w.Contextual, d.Contextual),
		ReflectionLookback:  SetThen(w.ReflectionLookback, d.ReflectionLookback),
		ReflectionLookahead: SetThen(w.ReflectionLookahead, d.ReflectionLookahead),
		StringEvidence:      SetThen(w.StringEvidence, d.StringEvidence),
		Snippet:             SetThen(w.Snippet, d.Snippet),
		BypassSnippet:       SetThen(w.BypassSnippet, d.BypassSnippet),
		LiteralLookback:     SetThen(w.LiteralLookback, d.LiteralLookback),
		ParseConv:           SetThen(w.ParseConv, d.ParseConv),
		LoopBranch:          SetThen(w.LoopBranch, d.LoopBranch),
		LoopLocal:           SetThen(w.LoopLocal, d.LoopLocal),
	}
}

// ScanConfig is the engine configuration. It is read at construction time
// and never mutated during a scan.
type ScanConfig struct {
	EnableAutoScan             bool
	EnableAutoDisable          bool
	MinSeverityForDisable      findings.Severity
	ScanDirectories            []string
	SuspiciousThreshold        int
	WhitelistedHashes          []string
	DumpFullILReports          bool
	MinimumEncodedStringLength int
	DetectAssemblyMetadata     bool
	EnableMultiSignalDetection bool
	Windows                    Windows
}

func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		EnableAutoScan:             true,
		EnableAutoDisable:          true,
		MinSeverityForDisable:      findings.Medium,
		ScanDirectories:            []string{"Mods", "Plugins"},
		SuspiciousThreshold:        1,
		WhitelistedHashes:          []string{},
		DumpFullILReports:          false,
		MinimumEncodedStringLength: 10,
		DetectAssemblyMetadata:     true,
		EnableMultiSignalDetection: true,
		Windows:                    DefaultWindows(),
	}
}

// ScanConfig resolves the YAML scan and whitelist sections into an engine configuration.
// It expects a configuration that passed ValidateConfig.
func (c *Config) ScanConfig() ScanConfig {
	d := DefaultScanConfig()
	if c == nil {
		return d
	}
	s := &c.Scan

	minSeverity := d.MinSeverityForDisable
	if s.MinSeverityForDisable != "" {
		if v, err := findings.ParseSeverity(s.MinSeverityForDisable); err == nil {
			minSeverity = v
		}
	}
	dirs := d.ScanDirectories
	if len(s.ScanDirectories) > 0 {
		dirs = append([]string(nil), s.ScanDirectories...)
	}

	return ScanConfig{
		EnableAutoScan:             BoolOr(s.EnableAutoScan, d.EnableAutoScan),
		EnableAutoDisable:          BoolOr(s.EnableAutoDisable, d.EnableAutoDisable),
		MinSeverityForDisable:      minSeverity,
		ScanDirectories:            dirs,
		SuspiciousThreshold:        SetThen(s.SuspiciousThreshold, d.SuspiciousThreshold),
		WhitelistedHashes:          append([]string{}, c.Whitelist.Hashes...),
		DumpFullILReports:          BoolOr(s.DumpFullILReports, d.DumpFullILReports),
		MinimumEncodedStringLength: SetThen(s.MinimumEncodedStringLength, d.MinimumEncodedStringLength),
		DetectAssemblyMetadata:     BoolOr(s.DetectAssemblyMetadata, d.DetectAssemblyMetadata),
		EnableMultiSignalDetection: BoolOr(s.EnableMultiSignalDetection, d.EnableMultiSignalDetection),
		Windows:                    s.Windows.WithDefaults(),
	}
}
