package commands

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deprecatedDag = `from orchestrator.secrets import BaseSecretsBackend

backend = BaseSecretsBackend()
uri = backend.get_conn_uri(conn_id="pg_default")
conns = backend.get_connections(conn_id="pg_default")
`

const cleanDag = `from orchestrator.secrets import BaseSecretsBackend

backend = BaseSecretsBackend()
value = backend.get_conn_value(conn_id="pg_default")
`

// writePython writes a .py file into a fresh temp dir and returns the dir.
func writePython(t *testing.T, source string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dag.py"), []byte(source), 0644))
	return dir
}

func TestLintCommand_ReportsFindings(t *testing.T) {
	cfg := writeTestConfig(t, "version: 1\n")
	dir := writePython(t, deprecatedDag)

	cmd := NewLintCommand(cfg)
	cmd.SetArgs([]string{dir})

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := cmd.Execute()

	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	output := buf.String()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Found 2 removed API usage(s)")
	assert.Contains(t, output, "get_conn_uri is removed in 3.0, use BaseSecretsBackend.get_conn_value")
	assert.Contains(t, output, "get_connections is removed in 3.0, use BaseSecretsBackend.get_connection")
	assert.Contains(t, output, "dag.py:4")
}

func TestLintCommand_CleanTree(t *testing.T) {
	cfg := writeTestConfig(t, "version: 1\n")
	dir := writePython(t, cleanDag)

	cmd := NewLintCommand(cfg)
	output := captureOutput(t, cmd, []string{dir})

	assert.Contains(t, output, "No removed API usage found")
}

func TestLintCommand_JSONOutput(t *testing.T) {
	cfg := writeTestConfig(t, "version: 1\n")
	dir := writePython(t, deprecatedDag)

	cmd := NewLintCommand(cfg)
	cmd.SetArgs([]string{dir, "--json"})

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := cmd.Execute()

	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)

	require.Error(t, err)
	assert.Contains(t, buf.String(), `"total": 2`)
	assert.Contains(t, buf.String(), `"SK301": 2`)
}

func TestLintCommand_MissingPath(t *testing.T) {
	cfg := writeTestConfig(t, "version: 1\n")

	cmd := NewLintCommand(cfg)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "nope")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Scan failed")
}
