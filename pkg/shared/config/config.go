package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

const (
	// EnvConfigPath overrides the configuration file location.
	EnvConfigPath = "MODSCAN_CONFIG"
	// DefaultConfigFile is read from the working directory when present.
	DefaultConfigFile = "config.yml"
)

type Config struct {
	Logger     Logger     `yaml:"logger"`
	HTTPClient HTTPClient `yaml:"http_client"`
	Scan       Scan       `yaml:"scan"`
	Whitelist  Whitelist  `yaml:"whitelist"`
}

type Logger struct {
	Level           string `yaml:"level"`
	JSONFormat      *bool  `yaml:"json_format"`
	IncludeLocation *bool  `yaml:"include_location"`
	DisableTime     *bool  `yaml:"disable_time"`
}

type HTTPClient struct {
	Debug            *bool           `yaml:"debug"`
	RetryCount       int             `yaml:"retry_count"`
	RetryWaitTime    time.Duration   `yaml:"retry_wait_time"`
	RetryMaxWaitTime time.Duration   `yaml:"retry_max_wait_time"`
	Timeout          time.Duration   `yaml:"timeout"`
	TLSClientConfig  TLSClientConfig `yaml:"tls_client_config"`
	Proxy            Proxy           `yaml:"proxy"`
}

type TLSClientConfig struct {
	Verify *bool `yaml:"verify"`
}

type Proxy struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Scan is the YAML view of the scan settings. Unset values fall back to DefaultScanConfig.
type Scan struct {
	EnableAutoScan             *bool    `yaml:"enable_auto_scan"`
	EnableAutoDisable          *bool    `yaml:"enable_auto_disable"`
	MinSeverityForDisable      string   `yaml:"min_severity_for_disable"`
	ScanDirectories            []string `yaml:"scan_directories"`
	SuspiciousThreshold        int      `yaml:"suspicious_threshold"`
	DumpFullILReports          *bool    `yaml:"dump_full_il_reports"`
	MinimumEncodedStringLength int      `yaml:"minimum_encoded_string_length"`
	DetectAssemblyMetadata     *bool    `yaml:"detect_assembly_metadata"`
	EnableMultiSignalDetection *bool    `yaml:"enable_multi_signal_detection"`
	Threads                    int      `yaml:"threads"`
	Windows                    Windows  `yaml:"windows"`
}

// Whitelist lists SHA-256 hashes of assemblies known to be safe.
type Whitelist struct {
	Hashes    []string `yaml:"hashes"`
	RemoteURL string   `yaml:"remote_url"`
}

func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}
	return nil
}

func LoadYAML(configPath string, data interface{}) error {
	if err := ValidateConfigPath(configPath); err != nil {
		return err
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	if err := d.Decode(data); err != nil {
		return err
	}

	return nil
}

func NewConfig(configPath string) (*Config, error) {
	config := &Config{}

	if err := LoadYAML(configPath, config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadConfig reads the configuration from configPath, the MODSCAN_CONFIG
// variable or ./config.yml, in that order. Without any file it returns an
// empty configuration so defaults apply.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv(EnvConfigPath)
	}
	if configPath == "" {
		if err := ValidateConfigPath(DefaultConfigFile); err != nil {
			return &Config{}, nil
		}
		configPath = DefaultConfigFile
	}

	cfg, err := NewConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %q: %w", configPath, err)
	}
	return cfg, nil
}
