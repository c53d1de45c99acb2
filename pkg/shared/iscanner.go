package shared

import (
	"fmt"
	"net/rpc"

	"github.com/hashicorp/go-plugin"

	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

// RPC method names served by ScannerRPCServer.
const (
	rpcScannerSetup = "Plugin.Setup"
	rpcScannerScan  = "Plugin.Scan"
)

// Scanner is the interface served by the out-of-process scanner plugin.
// Setup must succeed before Scan is called.
type Scanner interface {
	Setup(configData config.Config) (bool, error)
	Scan(args ScannerScanRequest) (ScannerScanResponse, error)
}

// ScannerScanRequest represents a single scan request.
type ScannerScanRequest struct {
	TargetPath string // File or directory to scan
	GameRoot   bool   // Restrict directory discovery to the configured scan directories
}

// ScannerScanResponse holds one result per assembly found below TargetPath,
// in discovery order.
type ScannerScanResponse struct {
	Results []findings.Result
}

// ScannerRPCClient is the host side of the plugin connection.
type ScannerRPCClient struct{ client *rpc.Client }

func (g *ScannerRPCClient) Setup(configData config.Config) (bool, error) {
	var ok bool
	if err := g.client.Call(rpcScannerSetup, configData, &ok); err != nil {
		return false, fmt.Errorf("scanner setup: %w", err)
	}
	return ok, nil
}

func (g *ScannerRPCClient) Scan(req ScannerScanRequest) (ScannerScanResponse, error) {
	var resp ScannerScanResponse
	if err := g.client.Call(rpcScannerScan, req, &resp); err != nil {
		return ScannerScanResponse{}, fmt.Errorf("scan %q: %w", req.TargetPath, err)
	}
	return resp, nil
}

// ScannerRPCServer is the plugin side; it forwards calls to Impl.
type ScannerRPCServer struct {
	Impl Scanner
}

func (s *ScannerRPCServer) Setup(configData config.Config, ok *bool) error {
	var err error
	*ok, err = s.Impl.Setup(configData)
	return err
}

func (s *ScannerRPCServer) Scan(req ScannerScanRequest, resp *ScannerScanResponse) error {
	var err error
	*resp, err = s.Impl.Scan(req)
	return err
}

// ScannerPlugin registers the scanner under PluginTypeScanner. Impl is only
// set in the plugin binary.
type ScannerPlugin struct {
	Impl Scanner
}

func (p *ScannerPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &ScannerRPCServer{Impl: p.Impl}, nil
}

func (ScannerPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &ScannerRPCClient{client: c}, nil
}
