// Package backends implements the built-in secrets backends and their
// factory registry.
package backends

import (
	"fmt"
	"sort"

	"github.com/skeinworks/skein/internal/config"
	"github.com/skeinworks/skein/pkg/backend"
)

// Factory creates a backend instance from its skein.yaml block.
type Factory func(name string, config map[string]interface{}) (backend.Backend, error)

// Registry manages backend creation by type string.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with all built-in backends registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.RegisterFactory("env", NewEnvBackendFactory)
	r.RegisterFactory("file", NewFileBackendFactory)
	r.RegisterFactory("literal", NewLiteralBackendFactory)
	r.RegisterFactory("metastore", NewMetastoreBackendFactory)
	r.RegisterFactory("aws.secretsmanager", NewAWSSecretsManagerBackendFactory)
	r.RegisterFactory("aws.ssm", NewAWSSSMBackendFactory)
	r.RegisterFactory("gcp.secretmanager", NewGCPSecretManagerBackendFactory)
	r.RegisterFactory("azure.keyvault", NewAzureKeyVaultBackendFactory)
	r.RegisterFactory("keyring", NewKeyringBackendFactory)

	return r
}

// RegisterFactory registers a factory for a backend type.
func (r *Registry) RegisterFactory(backendType string, factory Factory) {
	r.factories[backendType] = factory
}

// Create instantiates a backend from its configuration block.
func (r *Registry) Create(name string, cfg config.BackendConfig) (backend.Backend, error) {
	factory, ok := r.factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
	return factory(name, cfg.Config)
}

// SupportedTypes returns the registered backend types, sorted.
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsSupported reports whether a backend type is registered.
func (r *Registry) IsSupported(backendType string) bool {
	_, ok := r.factories[backendType]
	return ok
}

// Option helpers shared by the backend constructors. Backend config blocks
// arrive as map[string]interface{} from the inline YAML.

func stringOpt(cfg map[string]interface{}, key, fallback string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func boolOpt(cfg map[string]interface{}, key string, fallback bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return fallback
}
