package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinworks/skein/pkg/deprecation"
)

const sampleDag = `from orchestrator.secrets import BaseSecretsBackend


class CustomBackend(BaseSecretsBackend):
    def fetch(self, conn_id):
        return self.get_conn_uri(conn_id)


def load_all(backend, conn_id):
    value = backend.get_conn_uri(conn_id)
    conns = backend.get_connections(conn_id)
    return value, conns
`

func TestScanSourceFindsRemovedCalls(t *testing.T) {
	t.Parallel()

	s := NewScanner(deprecation.Builtin(), nil)
	findings, err := s.ScanSource(context.Background(), "dags/etl.py", []byte(sampleDag))
	require.NoError(t, err)
	require.Len(t, findings, 3)

	first := findings[0]
	assert.Equal(t, "dags/etl.py", first.File)
	assert.Equal(t, "SK301", first.Rule)
	assert.Equal(t, "BaseSecretsBackend.get_conn_uri", first.OldSymbol)
	assert.Equal(t, "BaseSecretsBackend.get_conn_value", first.NewSymbol)
	assert.Equal(t, 6, first.Line)
	assert.Contains(t, first.Snippet, "self.get_conn_uri(conn_id)")

	last := findings[2]
	assert.Equal(t, "BaseSecretsBackend.get_connections", last.OldSymbol)
	assert.Equal(t, "BaseSecretsBackend.get_connection", last.NewSymbol)
}

func TestScanSourceIgnoresNewMethods(t *testing.T) {
	t.Parallel()

	source := `value = backend.get_conn_value(conn_id)
conn = backend.get_connection(conn_id)
uri = build_uri(conn_id)
`
	s := NewScanner(deprecation.Builtin(), nil)
	findings, err := s.ScanSource(context.Background(), "ok.py", []byte(source))
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestScanSourceIgnoresBareIdentifierCalls(t *testing.T) {
	t.Parallel()

	// A bare function with the same name is not an attribute call and is
	// left alone.
	source := "value = get_conn_uri(conn_id)\n"
	s := NewScanner(deprecation.Builtin(), nil)
	findings, err := s.ScanSource(context.Background(), "bare.py", []byte(source))
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestScanSourceCustomRules(t *testing.T) {
	t.Parallel()

	reg := deprecation.NewRegistry()
	require.NoError(t, reg.Register(deprecation.Deprecation{
		Rule:      "SK310",
		OldSymbol: "Variable.get_val",
		NewSymbol: "Variable.get_value",
		RemovedIn: "3.1",
	}))

	s := NewScanner(reg, nil)
	findings, err := s.ScanSource(context.Background(), "x.py", []byte("v = Variable.get_val('k')\n"))
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "SK310", findings[0].Rule)
}

func TestScanDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dags"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".venv"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dags", "etl.py"), []byte(sampleDag), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dags", "clean.py"), []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".venv", "vendored.py"), []byte(sampleDag), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("get_conn_uri"), 0o644))

	s := NewScanner(deprecation.Builtin(), nil)
	findings, err := s.ScanDir(context.Background(), dir)
	require.NoError(t, err)

	// Only dags/etl.py counts; .venv and non-Python files are skipped.
	require.Len(t, findings, 3)
	for _, f := range findings {
		assert.Equal(t, filepath.Join(dir, "dags", "etl.py"), f.File)
	}
}

func TestCountByRule(t *testing.T) {
	t.Parallel()

	s := NewScanner(deprecation.Builtin(), nil)
	findings, err := s.ScanSource(context.Background(), "x.py", []byte(sampleDag))
	require.NoError(t, err)

	counts := CountByRule(findings)
	assert.Equal(t, map[string]int{"SK301": 3}, counts)
}
