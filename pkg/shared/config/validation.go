package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/scan-io-git/modscan/internal/findings"
)

const maxWindow = 1000

// ValidateConfig checks if the global configurations have valid values.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("YAML global config: configuration object is nil")
	}
	if err := ValidateLoggerConfig(&cfg.Logger); err != nil {
		return fmt.Errorf("YAML global config: logger directive is invalid: %w", err)
	}
	if err := ValidateHTTPConfig(&cfg.HTTPClient); err != nil {
		return fmt.Errorf("YAML global config: http_client directive is invalid: %w", err)
	}
	if err := ValidateScanConfig(&cfg.Scan); err != nil {
		return fmt.Errorf("YAML global config: scan directive is invalid: %w", err)
	}
	if err := ValidateWhitelistConfig(&cfg.Whitelist); err != nil {
		return fmt.Errorf("YAML global config: whitelist directive is invalid: %w", err)
	}
	return nil
}

// ValidateLoggerConfig checks the log level name.
func ValidateLoggerConfig(loggerConfig *Logger) error {
	if loggerConfig == nil {
		return fmt.Errorf("logger configuration is nil")
	}
	switch strings.ToUpper(loggerConfig.Level) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "ERROR":
		return nil
	}
	return fmt.Errorf("unknown log level %q", loggerConfig.Level)
}

// ValidateHTTPConfig checks if the HTTP configurations have valid values.
func ValidateHTTPConfig(httpConfig *HTTPClient) error {
	if httpConfig == nil {
		return fmt.Errorf("HTTP configuration is nil")
	}
	if httpConfig.RetryCount < 0 || httpConfig.RetryCount > 20 {
		return fmt.Errorf("retry_count must be between 0 and 20: %d", httpConfig.RetryCount)
	}

	durations := map[string]time.Duration{
		"RetryMaxWaitTime": httpConfig.RetryMaxWaitTime,
		"RetryWaitTime":    httpConfig.RetryWaitTime,
		"Timeout":          httpConfig.Timeout,
	}
	for name, duration := range durations {
		if err := validateDuration(duration, name, 100*time.Second); err != nil {
			return err
		}
	}

	if err := validateProxy(&httpConfig.Proxy); err != nil {
		return err
	}

	return nil
}

// ValidateScanConfig checks the scan section.
func ValidateScanConfig(scan *Scan) error {
	if scan == nil {
		return fmt.Errorf("scan configuration is nil")
	}
	if scan.MinSeverityForDisable != "" {
		if _, err := findings.ParseSeverity(scan.MinSeverityForDisable); err != nil {
			return fmt.Errorf("min_severity_for_disable: %w", err)
		}
	}
	if scan.SuspiciousThreshold < 0 {
		return fmt.Errorf("suspicious_threshold cannot be negative: %d", scan.SuspiciousThreshold)
	}
	if scan.MinimumEncodedStringLength < 0 || scan.MinimumEncodedStringLength > 100 {
		return fmt.Errorf("minimum_encoded_string_length must be between 1 and 100: %d", scan.MinimumEncodedStringLength)
	}
	if scan.Threads < 0 || scan.Threads > 256 {
		return fmt.Errorf("threads must be between 1 and 256: %d", scan.Threads)
	}
	for _, dir := range scan.ScanDirectories {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("scan_directories contains an empty entry")
		}
	}
	return validateWindows(scan.Windows)
}

func validateWindows(w Windows) error {
	windows := map[string]int{
		"folder_argument":      w.FolderArgument,
		"contextual":           w.Contextual,
		"reflection_lookback":  w.ReflectionLookback,
		"reflection_lookahead": w.ReflectionLookahead,
		"string_evidence":      w.StringEvidence,
		"snippet":              w.Snippet,
		"bypass_snippet":       w.BypassSnippet,
		"literal_lookback":     w.LiteralLookback,
		"parse_conv":           w.ParseConv,
		"loop_branch":          w.LoopBranch,
		"loop_local":           w.LoopLocal,
	}
	for name, v := range windows {
		if v < 0 || v > maxWindow {
			return fmt.Errorf("window %q must be between 0 and %d: %d", name, maxWindow, v)
		}
	}
	return nil
}

// ValidateWhitelistConfig checks hash formats and the remote list URL.
func ValidateWhitelistConfig(wl *Whitelist) error {
	if wl == nil {
		return fmt.Errorf("whitelist configuration is nil")
	}
	for _, h := range wl.Hashes {
		if err := ValidateSHA256(h); err != nil {
			return err
		}
	}
	if wl.RemoteURL != "" {
		u, err := url.Parse(wl.RemoteURL)
		if err != nil {
			return fmt.Errorf("invalid remote_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("remote_url must use http or https: %q", wl.RemoteURL)
		}
	}
	return nil
}

// ValidateSHA256 checks that h is a 64 character hex digest.
func ValidateSHA256(h string) error {
	if len(h) != 64 {
		return fmt.Errorf("hash %q must be 64 hex characters", h)
	}
	if _, err := hex.DecodeString(h); err != nil {
		return fmt.Errorf("hash %q is not hex: %w", h, err)
	}
	return nil
}

// validateDuration checks that a time.Duration is valid and within a specified maximum duration.
func validateDuration(d time.Duration, name string, max time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration for %q: %v cannot be negative", name, d)
	}
	if d > max {
		return fmt.Errorf("%q duration is too long: %v exceeds maximum of %v", name, d, max)
	}
	return nil
}

// validateProxy checks if the given Proxy settings are valid.
func validateProxy(proxy *Proxy) error {
	if proxy == nil {
		return fmt.Errorf("proxy configuration is nil")
	}

	// If host or port is not set, skip further validation
	if proxy.Host == "" || proxy.Port == 0 {
		return nil
	}

	if err := validateHost(&proxy.Host); err != nil {
		return err
	}

	return validatePort(proxy.Port)
}

// validateHost ensures the proxy host includes a scheme; adds "http" if missing.
func validateHost(host *string) error {
	if host == nil {
		return fmt.Errorf("host string pointer is nil")
	}

	if !strings.Contains(*host, "://") {
		*host = "http://" + *host
	}
	*host = strings.TrimRight(*host, "/")

	if _, err := url.Parse(*host); err != nil {
		return fmt.Errorf("invalid host URL: %w", err)
	}

	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}
