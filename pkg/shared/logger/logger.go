package logger

import (
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/modscan/pkg/shared/config"
)

// EnvLogLevel overrides the configured log level.
const EnvLogLevel = "MODSCAN_LOG_LEVEL"

// NewLogger creates a named logger writing to stderr, so that reports printed
// to stdout stay machine readable.
func NewLogger(cfg *config.Config, name string) hclog.Logger {
	level := os.Getenv(EnvLogLevel)
	if level == "" && cfg != nil {
		// the config file has the second priority
		level = cfg.Logger.Level
	}

	opts := &hclog.LoggerOptions{
		Name:        name,
		Output:      os.Stderr,
		Level:       getLogLevel(strings.ToUpper(level)),
		DisableTime: true,
	}
	if cfg != nil {
		opts.JSONFormat = config.BoolOr(cfg.Logger.JSONFormat, false)
		opts.IncludeLocation = config.BoolOr(cfg.Logger.IncludeLocation, false)
		opts.DisableTime = config.BoolOr(cfg.Logger.DisableTime, true)
	}
	return hclog.New(opts)
}

func getLogLevel(levelStr string) hclog.Level {
	switch levelStr {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "INFO":
		return hclog.Info
	case "WARN":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	default:
		return hclog.Info
	}
}
