package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/modscan/pkg/shared"
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

func TestScanRequiresSetup(t *testing.T) {
	g := newScannerModscan(hclog.NewNullLogger())
	_, err := g.Scan(shared.ScannerScanRequest{TargetPath: t.TempDir()})
	assert.Error(t, err)
}

func TestSetupAndScan(t *testing.T) {
	root := t.TempDir()
	modPath := filepath.Join(root, "Mods", "Broken.dll")
	require.NoError(t, os.MkdirAll(filepath.Dir(modPath), 0755))
	require.NoError(t, os.WriteFile(modPath, []byte("not an assembly"), 0644))

	g := newScannerModscan(hclog.NewNullLogger())
	ok, err := g.Setup(config.Config{})
	require.NoError(t, err)
	assert.True(t, ok)

	resp, err := g.Scan(shared.ScannerScanRequest{TargetPath: root, GameRoot: true})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, modPath, resp.Results[0].Path)

	_, err = g.Scan(shared.ScannerScanRequest{TargetPath: modPath, GameRoot: true})
	assert.Error(t, err)

	_, err = g.Scan(shared.ScannerScanRequest{TargetPath: filepath.Join(root, "missing")})
	assert.Error(t, err)
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	g := newScannerModscan(hclog.NewNullLogger())
	_, err := g.Setup(config.Config{Scan: config.Scan{MinSeverityForDisable: "extreme"}})
	assert.Error(t, err)
}
