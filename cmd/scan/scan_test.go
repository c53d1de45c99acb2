package scan

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/report"
	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/pkg/shared/config"
	"github.com/scan-io-git/modscan/pkg/shared/errors"
)

func TestValidateScanArgs(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "mod.dll")
	require.NoError(t, os.WriteFile(tmpFile, []byte("x"), 0644))

	tests := []struct {
		name    string
		options RunOptionsScan
		args    []string
		wantErr string
	}{
		{
			name:    "Valid target with defaults",
			options: RunOptionsScan{},
			args:    []string{tmpFile},
		},
		{
			name:    "No target",
			options: RunOptionsScan{},
			wantErr: "at least one target path must be specified",
		},
		{
			name:    "Unknown format",
			options: RunOptionsScan{Format: "xml"},
			args:    []string{tmpFile},
			wantErr: `unsupported report format "xml"`,
		},
		{
			name:    "Format is case insensitive",
			options: RunOptionsScan{Format: "SARIF"},
			args:    []string{tmpFile},
		},
		{
			name:    "Negative threads",
			options: RunOptionsScan{Threads: -1},
			args:    []string{tmpFile},
			wantErr: "the 'threads' flag must be a positive integer",
		},
		{
			name:    "Unknown min severity",
			options: RunOptionsScan{MinSeverity: "urgent"},
			args:    []string{tmpFile},
			wantErr: "invalid 'min-severity' flag",
		},
		{
			name:    "Unknown fail-on severity",
			options: RunOptionsScan{FailOn: "urgent"},
			args:    []string{tmpFile},
			wantErr: "invalid 'fail-on' flag",
		},
		{
			name:    "Missing target",
			options: RunOptionsScan{},
			args:    []string{filepath.Join(tmpDir, "missing.dll")},
			wantErr: "the target path does not exist",
		},
		{
			name:    "Game root must be a directory",
			options: RunOptionsScan{GameRoot: true},
			args:    []string{tmpFile},
			wantErr: "the game root must be a directory",
		},
		{
			name:    "Game root takes one target",
			options: RunOptionsScan{GameRoot: true},
			args:    []string{tmpDir, tmpDir},
			wantErr: "the 'game-root' flag takes exactly one target path",
		},
		{
			name:    "Template without html",
			options: RunOptionsScan{TemplatePath: "report.html"},
			args:    []string{tmpFile},
			wantErr: "the 'template' flag is only valid with the html format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateScanArgs(&tt.options, tt.args)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateScanArgsResolvesSeverities(t *testing.T) {
	options := RunOptionsScan{MinSeverity: "medium", FailOn: "High"}
	require.NoError(t, validateScanArgs(&options, []string{t.TempDir()}))

	assert.Equal(t, FormatText, options.Format)
	assert.Equal(t, findings.Medium, options.minSeverity)
	require.NotNil(t, options.failOn)
	assert.Equal(t, findings.High, *options.failOn)
}

func TestApplyOverrides(t *testing.T) {
	base := &config.Config{Scan: config.Scan{Threads: 2}}

	got := applyOverrides(base, &RunOptionsScan{})
	assert.Equal(t, 2, got.Scan.Threads)
	assert.True(t, got.ScanConfig().EnableMultiSignalDetection)

	got = applyOverrides(base, &RunOptionsScan{
		NoMultiSignal: true,
		NoMetadata:    true,
		DumpIL:        true,
		Threads:       8,
		WhitelistURL:  "https://example.com/hashes.txt",
	})
	scanCfg := got.ScanConfig()
	assert.False(t, scanCfg.EnableMultiSignalDetection)
	assert.False(t, scanCfg.DetectAssemblyMetadata)
	assert.True(t, scanCfg.DumpFullILReports)
	assert.Equal(t, 8, got.Scan.Threads)
	assert.Equal(t, "https://example.com/hashes.txt", got.Whitelist.RemoteURL)
	assert.Equal(t, 2, base.Scan.Threads, "base configuration is left untouched")
	assert.Nil(t, base.Scan.EnableMultiSignalDetection)

	assert.NotNil(t, applyOverrides(nil, &RunOptionsScan{}))
}

func sampleReport() *report.Report {
	results := []findings.Result{{
		FileName: "Loader.dll",
		Path:     "Mods/Loader.dll",
		SHA256:   "aa",
		Findings: []findings.Finding{
			findings.New("Mod.Loader.Run:25", "Loads an assembly from a byte stream", findings.Critical).WithRule(rules.LoadFromStreamRuleID),
		},
	}}
	return report.New(results, config.DefaultScanConfig(), findings.Low, "")
}

func TestWriteReport(t *testing.T) {
	ruleSet := rules.Default(config.DefaultScanConfig())

	t.Run("json to stdout", func(t *testing.T) {
		var buf bytes.Buffer
		path, err := writeReport(&buf, &RunOptionsScan{Format: FormatJSON}, sampleReport(), ruleSet, hclog.NewNullLogger())
		require.NoError(t, err)
		assert.Empty(t, path)

		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
		assert.Contains(t, doc, "run_id")
	})

	t.Run("sarif into a folder", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "reports")
		path, err := writeReport(&bytes.Buffer{}, &RunOptionsScan{Format: FormatSARIF, OutputPath: dir}, sampleReport(), ruleSet, hclog.NewNullLogger())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "modscan-report.sarif"), path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), rules.LoadFromStreamRuleID)
	})

	t.Run("text", func(t *testing.T) {
		report.ApplyNoColor()
		var buf bytes.Buffer
		_, err := writeReport(&buf, &RunOptionsScan{Format: FormatText}, sampleReport(), ruleSet, hclog.NewNullLogger())
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "[Critical] Loads an assembly from a byte stream at Mod.Loader.Run:25")
	})

	t.Run("html", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := writeReport(&buf, &RunOptionsScan{Format: FormatHTML, Title: "Mods"}, sampleReport(), ruleSet, hclog.NewNullLogger())
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "<title>Mods</title>")
	})
}

func TestCheckFailOn(t *testing.T) {
	sev := func(s findings.Severity) *findings.Severity { return &s }

	tests := []struct {
		name   string
		failOn *findings.Severity
		want   bool
	}{
		{name: "No gate", failOn: nil},
		{name: "Gate reached by critical finding", failOn: sev(findings.High), want: true},
		{name: "Gate at critical", failOn: sev(findings.Critical), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkFailOn(sampleReport(), tt.failOn, hclog.NewNullLogger())
			if !tt.want {
				assert.NoError(t, err)
				return
			}
			var cmdErr *errors.CommandError
			require.True(t, stderrors.As(err, &cmdErr))
			assert.Equal(t, ExitCodeFindings, cmdErr.ExitCode)
		})
	}

	clean := report.New([]findings.Result{{FileName: "Clean.dll", Findings: []findings.Finding{}}}, config.DefaultScanConfig(), findings.Low, "")
	assert.NoError(t, checkFailOn(clean, sev(findings.Low), hclog.NewNullLogger()))
}

func TestRunScanCommandFailOn(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "Broken.dll")
	require.NoError(t, os.WriteFile(target, []byte("not an assembly"), 0644))

	saved := scanOptions
	savedConfig := AppConfig
	t.Cleanup(func() {
		scanOptions = saved
		AppConfig = savedConfig
		ScanCmd.SetOut(nil)
	})
	AppConfig = &config.Config{}

	var buf bytes.Buffer
	ScanCmd.SetOut(&buf)

	scanOptions = RunOptionsScan{Format: FormatJSON, FailOn: "high"}
	require.NoError(t, runScanCommand(ScanCmd, []string{target}))
	assert.Contains(t, buf.String(), `"path": "`+target+`"`)

	// an undecodable file has no findings of its own, so even the lowest gate passes
	buf.Reset()
	scanOptions = RunOptionsScan{Format: FormatJSON, FailOn: "low"}
	require.NoError(t, runScanCommand(ScanCmd, []string{target}))
	assert.Contains(t, buf.String(), `"findings": []`)

	scanOptions = RunOptionsScan{Format: "xml"}
	err := runScanCommand(ScanCmd, []string{target})
	var cmdErr *errors.CommandError
	require.True(t, stderrors.As(err, &cmdErr))
	assert.Equal(t, 1, cmdErr.ExitCode)
}
