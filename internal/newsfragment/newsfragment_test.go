package newsfragment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validFragment = `---
rule: SK301
removed_in: "3.0"
renames:
  - old: BaseSecretsBackend.get_conn_uri
    new: BaseSecretsBackend.get_conn_value
  - old: BaseSecretsBackend.get_connections
    new: BaseSecretsBackend.get_connection
---

Removed deprecated methods from secrets backends.

* Types of change

  * [x] Dag changes
  * [ ] Config changes
  * [ ] API changes
  * [ ] CLI changes
  * [ ] Behaviour changes
  * [ ] Plugin changes
  * [ ] Dependency changes
  * [ ] Code interface changes
`

func TestParseValidFragment(t *testing.T) {
	t.Parallel()

	f, err := Parse("sk301.md", []byte(validFragment))
	require.NoError(t, err)

	assert.Equal(t, "SK301", f.Rule)
	assert.Equal(t, "3.0", f.RemovedIn)
	require.Len(t, f.Renames, 2)
	assert.Equal(t, "BaseSecretsBackend.get_conn_uri", f.Renames[0].OldSymbol)
	assert.Equal(t, "BaseSecretsBackend.get_conn_value", f.Renames[0].NewSymbol)
	assert.Equal(t, "Removed deprecated methods from secrets backends.", f.Summary)
	require.Len(t, f.Checklist, 8)
	assert.Equal(t, "Dag changes", f.SelectedCategory())

	assert.NoError(t, f.Validate())
}

func TestParseMissingFrontMatter(t *testing.T) {
	t.Parallel()

	_, err := Parse("x.md", []byte("just prose\n"))
	assert.ErrorContains(t, err, "Invalid fragment")
}

func TestParseSchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
	}{
		{"missing rule", "---\nremoved_in: \"3.0\"\n---\n\nbody\n"},
		{"bad rule format", "---\nrule: not-a-rule\n---\n\nbody\n"},
		{"rename missing new", "---\nrule: SK301\nrenames:\n  - old: A.b\n---\n\nbody\n"},
		{"unknown field", "---\nrule: SK301\nseverity: high\n---\n\nbody\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse("x.md", []byte(tt.header))
			assert.Error(t, err)
		})
	}
}

func TestParseCRLFFragment(t *testing.T) {
	t.Parallel()

	crlf := strings.ReplaceAll(validFragment, "\n", "\r\n")
	f, err := Parse("sk301.md", []byte(crlf))
	require.NoError(t, err)

	assert.Equal(t, "SK301", f.Rule)
	require.Len(t, f.Renames, 2)
	assert.NoError(t, f.Validate())
	assert.Equal(t, "Dag changes", f.SelectedCategory())
}

func TestValidateExactlyOneSelected(t *testing.T) {
	t.Parallel()

	none := strings.Replace(validFragment, "[x] Dag changes", "[ ] Dag changes", 1)
	f, err := Parse("x.md", []byte(none))
	require.NoError(t, err)
	assert.ErrorContains(t, f.Validate(), "exactly one change type")

	two := strings.Replace(validFragment, "[ ] Config changes", "[x] Config changes", 1)
	f, err = Parse("x.md", []byte(two))
	require.NoError(t, err)
	assert.ErrorContains(t, f.Validate(), "exactly one change type")
}

func TestValidateChecklistCoverage(t *testing.T) {
	t.Parallel()

	short := strings.Replace(validFragment, "  * [ ] Code interface changes\n", "", 1)
	f, err := Parse("x.md", []byte(short))
	require.NoError(t, err)
	assert.ErrorContains(t, f.Validate(), "cover all 8 change types")

	unknown := strings.Replace(validFragment, "Code interface changes", "Kernel changes", 1)
	f, err = Parse("x.md", []byte(unknown))
	require.NoError(t, err)
	assert.ErrorContains(t, f.Validate(), "unknown change type")
}

func TestValidateInterfaceChangeNeedsRenames(t *testing.T) {
	t.Parallel()

	noRenames := `---
rule: SK301
---

Removed backend lookup methods.

* Types of change

  * [x] Dag changes
  * [ ] Config changes
  * [ ] API changes
  * [ ] CLI changes
  * [ ] Behaviour changes
  * [ ] Plugin changes
  * [ ] Dependency changes
  * [ ] Code interface changes
`
	f, err := Parse("x.md", []byte(noRenames))
	require.NoError(t, err)
	assert.ErrorContains(t, f.Validate(), "requires a rename table")

	// Behaviour changes do not touch the interface; no table needed.
	behaviour := strings.Replace(noRenames, "[x] Dag changes", "[ ] Dag changes", 1)
	behaviour = strings.Replace(behaviour, "[ ] Behaviour changes", "[x] Behaviour changes", 1)
	f, err = Parse("x.md", []byte(behaviour))
	require.NoError(t, err)
	assert.NoError(t, f.Validate())
}

func TestValidateRenames(t *testing.T) {
	t.Parallel()

	same := strings.Replace(validFragment,
		"new: BaseSecretsBackend.get_conn_value",
		"new: BaseSecretsBackend.get_conn_uri", 1)
	f, err := Parse("x.md", []byte(same))
	require.NoError(t, err)
	assert.Error(t, f.Validate())
}

func TestBuiltinFragment(t *testing.T) {
	t.Parallel()

	f := Builtin()
	require.NoError(t, f.Validate())

	assert.Equal(t, "SK301", f.Rule)
	assert.Equal(t, "Dag changes", f.SelectedCategory())
	require.Len(t, f.Renames, 2)

	// The builtin note lists exactly the published method renames.
	assert.Equal(t, "BaseSecretsBackend.get_conn_uri", f.Renames[0].OldSymbol)
	assert.Equal(t, "BaseSecretsBackend.get_connections", f.Renames[1].OldSymbol)
}

func TestRenderRoundTrip(t *testing.T) {
	t.Parallel()

	f := Builtin()
	rendered := f.Render()

	parsed, err := Parse("sk301.md", []byte(rendered))
	require.NoError(t, err)
	require.NoError(t, parsed.Validate())

	assert.Equal(t, f.Rule, parsed.Rule)
	assert.Equal(t, f.Summary, parsed.Summary)
	assert.Equal(t, f.SelectedCategory(), parsed.SelectedCategory())
	assert.Equal(t, f.Renames, parsed.Renames)
}

func TestLoadDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sk301.md"), []byte(validFragment), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not a fragment"), 0o644))

	fragments, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, "SK301", fragments[0].Rule)
}

func TestLoadMissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorContains(t, err, "Cannot read fragment directory")
}
