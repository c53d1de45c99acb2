package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/internal/scanner"
	"github.com/scan-io-git/modscan/internal/whitelist"
	"github.com/scan-io-git/modscan/pkg/shared"
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

// Metadata of the plugin
var (
	Version       = "unknown"
	GolangVersion = "unknown"
	BuildTime     = "unknown"
)

// ScannerModscan serves the assembly scanner over the plugin protocol.
type ScannerModscan struct {
	logger       hclog.Logger
	globalConfig *config.Config
	scanner      *scanner.Scanner
}

// newScannerModscan creates a new instance of ScannerModscan.
func newScannerModscan(logger hclog.Logger) *ScannerModscan {
	return &ScannerModscan{
		logger: logger,
	}
}

// setGlobalConfig sets the global configuration for the ScannerModscan instance.
func (g *ScannerModscan) setGlobalConfig(globalConfig *config.Config) {
	g.globalConfig = globalConfig
}

// Setup validates the configuration sent by the host and prepares the scanner.
// A failing remote whitelist is logged and the local hashes are used.
func (g *ScannerModscan) Setup(configData config.Config) (bool, error) {
	if err := config.ValidateConfig(&configData); err != nil {
		g.logger.Error("invalid configuration", "error", err)
		return false, err
	}
	g.setGlobalConfig(&configData)

	wl, err := whitelist.Load(context.Background(), g.globalConfig, g.logger.Named("whitelist"))
	if err != nil {
		g.logger.Warn("remote whitelist unavailable, using local hashes", "error", err)
	}

	scanCfg := g.globalConfig.ScanConfig()
	s, err := scanner.New(rules.Default(scanCfg), scanCfg, wl, g.globalConfig.Scan.Threads, g.logger.Named("scanner"))
	if err != nil {
		return false, err
	}
	g.scanner = s
	return true, nil
}

// Scan scans the requested file or directory.
func (g *ScannerModscan) Scan(args shared.ScannerScanRequest) (shared.ScannerScanResponse, error) {
	var result shared.ScannerScanResponse
	g.logger.Info("scan is starting", "target", args.TargetPath)
	g.logger.Debug("debug info", "args", args)

	if err := g.validateScan(&args); err != nil {
		g.logger.Error("validation failed for scan operation", "error", err)
		return result, err
	}

	results, err := g.scanner.ScanPaths(context.Background(), []string{args.TargetPath}, args.GameRoot)
	if err != nil {
		g.logger.Error("scan failed", "target", args.TargetPath, "error", err)
		return result, fmt.Errorf("scan of %q failed: %w", args.TargetPath, err)
	}
	result.Results = results
	g.logger.Info("scan finished", "target", args.TargetPath, "files", len(results))
	return result, nil
}

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Level:      hclog.Trace,
		Output:     os.Stderr,
		JSONFormat: true,
	})

	modscanInstance := newScannerModscan(logger)

	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: shared.HandshakeConfig,
		Plugins: map[string]plugin.Plugin{
			shared.PluginTypeScanner: &shared.ScannerPlugin{Impl: modscanInstance},
		},
		Logger: logger,
	})
}
