package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixCommand_RewritesCalls(t *testing.T) {
	cfg := writeTestConfig(t, "version: 1\n")
	dir := writePython(t, deprecatedDag)

	cmd := NewFixCommand(cfg)
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute())

	fixed, err := os.ReadFile(filepath.Join(dir, "dag.py"))
	require.NoError(t, err)

	assert.Contains(t, string(fixed), `backend.get_conn_value(conn_id="pg_default")`)
	assert.Contains(t, string(fixed), `backend.get_connection(conn_id="pg_default")`)
	assert.NotContains(t, string(fixed), "get_conn_uri")
	assert.NotContains(t, string(fixed), "get_connections")
}

func TestFixCommand_Idempotent(t *testing.T) {
	cfg := writeTestConfig(t, "version: 1\n")
	dir := writePython(t, deprecatedDag)

	cmd := NewFixCommand(cfg)
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute())

	first, err := os.ReadFile(filepath.Join(dir, "dag.py"))
	require.NoError(t, err)

	cmd2 := NewFixCommand(cfg)
	cmd2.SetArgs([]string{dir})
	require.NoError(t, cmd2.Execute())

	second, err := os.ReadFile(filepath.Join(dir, "dag.py"))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestFixCommand_DryRunLeavesFiles(t *testing.T) {
	cfg := writeTestConfig(t, "version: 1\n")
	dir := writePython(t, deprecatedDag)

	cmd := NewFixCommand(cfg)
	cmd.SetArgs([]string{dir, "--dry-run"})
	require.NoError(t, cmd.Execute())

	content, err := os.ReadFile(filepath.Join(dir, "dag.py"))
	require.NoError(t, err)
	assert.Equal(t, deprecatedDag, string(content))
}

func TestFixCommand_CleanTree(t *testing.T) {
	cfg := writeTestConfig(t, "version: 1\n")
	dir := writePython(t, cleanDag)

	cmd := NewFixCommand(cfg)
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute())

	content, err := os.ReadFile(filepath.Join(dir, "dag.py"))
	require.NoError(t, err)
	assert.Equal(t, cleanDag, string(content))
}
