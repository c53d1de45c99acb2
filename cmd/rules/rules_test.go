package rules

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

func TestCollectRules(t *testing.T) {
	infos := collectRules(nil)
	require.Len(t, infos, len(rules.Default(config.DefaultScanConfig())))
	assert.Equal(t, rules.Base64RuleID, infos[0].ID)
	assert.Equal(t, rules.HexStringRuleID, infos[len(infos)-1].ID)
}

func TestRulesCommand(t *testing.T) {
	cmd := NewRulesCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Len(t, lines, len(collectRules(nil))+1)

	cmd = NewRulesCmd()
	buf.Reset()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--json"})
	t.Cleanup(func() { jsonOutput = false })
	require.NoError(t, cmd.Execute())

	var infos []RuleInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &infos))
	assert.Equal(t, collectRules(nil), infos)
}
