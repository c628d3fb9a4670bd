package backends_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinworks/skein/internal/backends"
	"github.com/skeinworks/skein/internal/config"
)

func TestRegistryCreation(t *testing.T) {
	t.Parallel()

	registry := backends.NewRegistry()
	assert.NotNil(t, registry)
	assert.GreaterOrEqual(t, len(registry.SupportedTypes()), 9, "all built-in backends registered")
}

func TestRegistryIsSupported(t *testing.T) {
	t.Parallel()

	registry := backends.NewRegistry()

	tests := []struct {
		name          string
		backendType   string
		wantSupported bool
	}{
		{"env", "env", true},
		{"file", "file", true},
		{"literal", "literal", true},
		{"metastore", "metastore", true},
		{"aws_secretsmanager", "aws.secretsmanager", true},
		{"aws_ssm", "aws.ssm", true},
		{"gcp_secretmanager", "gcp.secretmanager", true},
		{"azure_keyvault", "azure.keyvault", true},
		{"keyring", "keyring", true},
		{"unknown", "vault9000", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.wantSupported, registry.IsSupported(tt.backendType))
		})
	}
}

func TestRegistryCreate(t *testing.T) {
	t.Parallel()

	registry := backends.NewRegistry()

	b, err := registry.Create("local", config.BackendConfig{
		Type: "literal",
		Config: map[string]interface{}{
			"connections": map[string]interface{}{
				"pg_default": "postgres://u:p@host/db",
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "local", b.Name())
}

func TestRegistryCreateUnknownType(t *testing.T) {
	t.Parallel()

	registry := backends.NewRegistry()
	_, err := registry.Create("x", config.BackendConfig{Type: "nope"})
	assert.ErrorContains(t, err, "unknown backend type")
}

func TestRegistryCreateMissingRequiredField(t *testing.T) {
	t.Parallel()

	registry := backends.NewRegistry()

	_, err := registry.Create("f", config.BackendConfig{Type: "file"})
	assert.ErrorContains(t, err, "path")

	_, err = registry.Create("m", config.BackendConfig{Type: "metastore"})
	assert.ErrorContains(t, err, "dsn")
}
