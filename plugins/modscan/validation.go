package main

import (
	"fmt"
	"os"

	"github.com/scan-io-git/modscan/pkg/shared"
)

// validateScan checks that Setup ran and the target exists.
func (g *ScannerModscan) validateScan(args *shared.ScannerScanRequest) error {
	if g.scanner == nil {
		return fmt.Errorf("scanner is not set up, call Setup first")
	}
	if args.TargetPath == "" {
		return fmt.Errorf("target path is not specified")
	}
	info, err := os.Stat(args.TargetPath)
	if err != nil {
		return fmt.Errorf("target path %q is not accessible: %w", args.TargetPath, err)
	}
	if args.GameRoot && !info.IsDir() {
		return fmt.Errorf("game root %q is not a directory", args.TargetPath)
	}
	return nil
}
