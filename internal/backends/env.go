package backends

import (
	"context"
	"os"
	"strings"

	"github.com/skeinworks/skein/pkg/backend"
	"github.com/skeinworks/skein/pkg/connection"
)

// Environment variable prefixes the env backend searches. A connection
// stored as SKEIN_CONN_PG_DEFAULT resolves the conn id "pg_default".
const (
	connEnvPrefix = "SKEIN_CONN_"
	varEnvPrefix  = "SKEIN_VAR_"
)

// EnvBackend resolves connections and variables from process environment
// variables. It is the conventional first backend in the search chain.
type EnvBackend struct {
	name string
	// lookup is swapped out in tests; defaults to os.LookupEnv.
	lookup func(string) (string, bool)
}

// NewEnvBackend creates an environment-variable backend.
func NewEnvBackend(name string) *EnvBackend {
	return &EnvBackend{name: name, lookup: os.LookupEnv}
}

// NewEnvBackendFactory creates the env backend from configuration.
func NewEnvBackendFactory(name string, _ map[string]interface{}) (backend.Backend, error) {
	return NewEnvBackend(name), nil
}

func (e *EnvBackend) Name() string {
	return e.name
}

// envKey maps an identifier to its environment variable name.
func envKey(prefix, id string) string {
	return prefix + strings.ToUpper(id)
}

func (e *EnvBackend) GetConnValue(ctx context.Context, connID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	value, ok := e.lookup(envKey(connEnvPrefix, connID))
	if !ok || value == "" {
		return "", backend.NotFoundError{Backend: e.name, ConnID: connID}
	}
	return value, nil
}

func (e *EnvBackend) GetConnection(ctx context.Context, connID string) (*connection.Connection, error) {
	value, err := e.GetConnValue(ctx, connID)
	if err != nil {
		return nil, err
	}
	return backend.Deserialize(connID, value)
}

func (e *EnvBackend) GetVariable(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	value, ok := e.lookup(envKey(varEnvPrefix, key))
	if !ok {
		return "", backend.NotFoundError{Backend: e.name, ConnID: key}
	}
	return value, nil
}

// ListConnIDs enumerates the SKEIN_CONN_ variables in the environment.
func (e *EnvBackend) ListConnIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range os.Environ() {
		if !strings.HasPrefix(entry, connEnvPrefix) {
			continue
		}
		name, _, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		ids = append(ids, strings.ToLower(strings.TrimPrefix(name, connEnvPrefix)))
	}
	return ids, nil
}

func (e *EnvBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		SupportsVariables: true,
		SupportsListing:   true,
		RequiresAuth:      false,
	}
}

func (e *EnvBackend) Validate(ctx context.Context) error {
	return nil
}

var _ backend.Lister = (*EnvBackend)(nil)
