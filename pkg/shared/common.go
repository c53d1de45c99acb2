package shared

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/hashicorp/go-plugin"
	"github.com/spf13/pflag"

	"github.com/scan-io-git/modscan/pkg/shared/config"
	"github.com/scan-io-git/modscan/pkg/shared/logger"
)

const PluginTypeScanner string = "scanner"

var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MODSCAN",
	MagicCookieValue: "5c0e2a6d8f3b41e79a1d2b7c64f0e8a3d9b52c17",
}

var PluginMap = map[string]plugin.Plugin{
	PluginTypeScanner: &ScannerPlugin{},
}

// Versions holds build metadata of a binary.
type Versions struct {
	Version       string `json:"version"`
	GolangVersion string `json:"golang_version"`
	BuildTime     string `json:"build_time"`
}

// WithPlugin starts the plugin binary at pluginPath, dispenses pluginType and
// passes it to f. The plugin process is killed when f returns.
func WithPlugin(cfg *config.Config, loggerName, pluginPath, pluginType string, f func(interface{}) error) error {
	logger := logger.NewLogger(cfg, loggerName)

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          PluginMap,
		Cmd:              exec.Command(pluginPath),
		Logger:           logger,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})
	defer client.Kill()

	rpcClient, err := client.Client()
	if err != nil {
		return fmt.Errorf("failed to start plugin %q: %w", pluginPath, err)
	}

	raw, err := rpcClient.Dispense(pluginType)
	if err != nil {
		return fmt.Errorf("failed to dispense %q from plugin %q: %w", pluginType, pluginPath, err)
	}

	return f(raw)
}

// ForEveryValueWithBoundedGoroutines calls f for every value with at most
// limit calls in flight. Once ctx is done no further calls are started and
// ctx.Err() is returned after the running ones finish.
func ForEveryValueWithBoundedGoroutines[T any](ctx context.Context, limit int, values []T, f func(i int, value T)) error {
	if limit < 1 {
		limit = 1
	}
	guard := make(chan struct{}, limit)
	var wg sync.WaitGroup
	var err error

loop:
	for i, value := range values {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case guard <- struct{}{}: // blocks while limit calls are running
		}
		wg.Add(1)
		go func(i int, value T) {
			defer wg.Done()
			defer func() { <-guard }()
			f(i, value)
		}(i, value)
	}
	wg.Wait()
	return err
}

// HasFlags reports whether any flag was set on the command line.
func HasFlags(flags *pflag.FlagSet) bool {
	changed := false
	flags.Visit(func(*pflag.Flag) {
		changed = true
	})
	return changed
}

// IsInList reports whether target is in list, ignoring case.
func IsInList(target string, list []string) bool {
	for _, item := range list {
		if strings.EqualFold(item, target) {
			return true
		}
	}
	return false
}
