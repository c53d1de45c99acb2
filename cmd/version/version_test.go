package version

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPluginVersions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "modscan"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "modscan", "VERSION"), []byte(`{"version":"1.2.0","plugin_type":"scanner"}`), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "broken"), 0755))

	got := getPluginVersions(dir)
	assert.Equal(t, map[string]PluginMeta{
		"modscan": {Version: "1.2.0", PluginType: "scanner"},
		"broken":  {Version: "unknown", PluginType: "unknown"},
	}, got)

	assert.Contains(t, getPluginVersions(filepath.Join(dir, "missing")), "unknown")
}

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "Core Version: vunknown\nGo Version: unknown\nBuild Time: unknown\n", buf.String())
}
