package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/modscan/internal/findings"
)

const safeHash = "3918e1454e05de4dd3ace100d8f4d53936c9b93694dbff5bcc0293d689cb0ab7"

func TestScanConfigDefaults(t *testing.T) {
	var cfg *Config
	got := cfg.ScanConfig()
	assert.Equal(t, DefaultScanConfig(), got)

	got = (&Config{}).ScanConfig()
	assert.True(t, got.EnableAutoScan)
	assert.True(t, got.EnableAutoDisable)
	assert.Equal(t, findings.Medium, got.MinSeverityForDisable)
	assert.Equal(t, []string{"Mods", "Plugins"}, got.ScanDirectories)
	assert.Equal(t, 1, got.SuspiciousThreshold)
	assert.False(t, got.DumpFullILReports)
	assert.Equal(t, 10, got.MinimumEncodedStringLength)
	assert.True(t, got.DetectAssemblyMetadata)
	assert.True(t, got.EnableMultiSignalDetection)
	assert.Equal(t, DefaultWindows(), got.Windows)
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	content := strings.Join([]string{
		"logger:",
		"  level: debug",
		"http_client:",
		"  retry_count: 2",
		"  timeout: 5s",
		"scan:",
		"  enable_multi_signal_detection: false",
		"  detect_assembly_metadata: false",
		"  min_severity_for_disable: high",
		"  minimum_encoded_string_length: 4",
		"  scan_directories: [UserLibs]",
		"  windows:",
		"    contextual: 15",
		"whitelist:",
		"  hashes:",
		"    - " + safeHash,
		"  remote_url: https://example.com/hashes.txt",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, ValidateConfig(cfg))
	assert.Equal(t, 5*time.Second, cfg.HTTPClient.Timeout)

	scan := cfg.ScanConfig()
	assert.False(t, scan.EnableMultiSignalDetection)
	assert.False(t, scan.DetectAssemblyMetadata)
	assert.True(t, scan.EnableAutoDisable)
	assert.Equal(t, findings.High, scan.MinSeverityForDisable)
	assert.Equal(t, 4, scan.MinimumEncodedStringLength)
	assert.Equal(t, []string{"UserLibs"}, scan.ScanDirectories)
	assert.Equal(t, []string{safeHash}, scan.WhitelistedHashes)
	assert.Equal(t, 15, scan.Windows.Contextual)
	assert.Equal(t, 5, scan.Windows.FolderArgument)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(wd) }()
	t.Setenv(EnvConfigPath, "")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{
			name: "empty config is valid",
			cfg:  &Config{},
		},
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: "configuration object is nil",
		},
		{
			name:    "unknown log level",
			cfg:     &Config{Logger: Logger{Level: "loud"}},
			wantErr: "logger directive is invalid",
		},
		{
			name:    "retry count out of range",
			cfg:     &Config{HTTPClient: HTTPClient{RetryCount: 21}},
			wantErr: "retry_count must be between 0 and 20",
		},
		{
			name:    "timeout too long",
			cfg:     &Config{HTTPClient: HTTPClient{Timeout: 101 * time.Second}},
			wantErr: "duration is too long",
		},
		{
			name:    "bad proxy port",
			cfg:     &Config{HTTPClient: HTTPClient{Proxy: Proxy{Host: "proxy.local", Port: 70000}}},
			wantErr: "port must be between 1 and 65535",
		},
		{
			name:    "unknown severity",
			cfg:     &Config{Scan: Scan{MinSeverityForDisable: "extreme"}},
			wantErr: "min_severity_for_disable",
		},
		{
			name:    "negative window",
			cfg:     &Config{Scan: Scan{Windows: Windows{Snippet: -1}}},
			wantErr: `window "snippet"`,
		},
		{
			name:    "empty scan directory",
			cfg:     &Config{Scan: Scan{ScanDirectories: []string{"Mods", " "}}},
			wantErr: "scan_directories contains an empty entry",
		},
		{
			name:    "short hash",
			cfg:     &Config{Whitelist: Whitelist{Hashes: []string{"abc"}}},
			wantErr: "must be 64 hex characters",
		},
		{
			name:    "non hex hash",
			cfg:     &Config{Whitelist: Whitelist{Hashes: []string{strings.Repeat("z", 64)}}},
			wantErr: "is not hex",
		},
		{
			name:    "remote url scheme",
			cfg:     &Config{Whitelist: Whitelist{RemoteURL: "ftp://example.com/list"}},
			wantErr: "remote_url must use http or https",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateProxyAddsScheme(t *testing.T) {
	proxy := Proxy{Host: "proxy.local/", Port: 8080}
	require.NoError(t, validateProxy(&proxy))
	assert.Equal(t, "http://proxy.local", proxy.Host)
}

func TestSetThenAndBoolOr(t *testing.T) {
	assert.Equal(t, 7, SetThen(0, 7))
	assert.Equal(t, 3, SetThen(3, 7))
	assert.Equal(t, 2*time.Second, SetThen(time.Duration(0), 2*time.Second))

	off := false
	scan := &Scan{EnableAutoScan: &off}
	assert.False(t, BoolOr(scan.EnableAutoScan, true))
	assert.True(t, BoolOr(scan.EnableAutoDisable, true))
}

func TestHTTPClientResolve(t *testing.T) {
	var missing *HTTPClient
	def := missing.Resolve()
	assert.Equal(t, DefaultHTTPSettings().Timeout, def.Timeout)
	assert.False(t, def.TLSClientConfig.InsecureSkipVerify)
	assert.Empty(t, def.Proxy)

	verify := false
	got := (&HTTPClient{
		RetryCount:      5,
		Timeout:         time.Second,
		TLSClientConfig: TLSClientConfig{Verify: &verify},
		Proxy:           Proxy{Host: "http://proxy.local", Port: 3128},
	}).Resolve()
	assert.Equal(t, 5, got.RetryCount)
	assert.Equal(t, time.Second, got.Timeout)
	assert.Equal(t, DefaultHTTPSettings().RetryWaitTime, got.RetryWaitTime)
	assert.True(t, got.TLSClientConfig.InsecureSkipVerify)
	assert.Equal(t, "http://proxy.local:3128", got.Proxy)
}
