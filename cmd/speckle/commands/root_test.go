package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "abc1234", "2026-01-01")
	assert.Equal(t, "1.2.3 (commit: abc1234, built: 2026-01-01)", rootCmd.Version)
}

func TestRootHelpListsSubcommands(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"--help"})
	require.NoError(t, rootCmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "run")
	assert.Contains(t, output, "init")
	assert.Contains(t, output, "fields")
}

func TestFieldsCommand(t *testing.T) {
	assert.NoError(t, runFields(nil, nil))
}
