package backends

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/skeinworks/skein/pkg/backend"
	"github.com/skeinworks/skein/pkg/connection"
)

// KeyringBackend resolves connections from the operating system keychain
// (macOS Keychain, Linux Secret Service, Windows Credential Manager).
// Entries are stored under a service name with "conn:" / "var:" account
// prefixes so connections and variables do not collide.
type KeyringBackend struct {
	name    string
	service string
	// get is swapped out in tests; defaults to keyring.Get.
	get func(service, account string) (string, error)
}

// NewKeyringBackend creates a keyring backend for the given service name.
func NewKeyringBackend(name, service string) *KeyringBackend {
	return &KeyringBackend{name: name, service: service, get: keyring.Get}
}

// NewKeyringBackendFactory creates a keyring backend from configuration:
//
//	type: keyring
//	service: skein      # optional, defaults to "skein"
func NewKeyringBackendFactory(name string, cfg map[string]interface{}) (backend.Backend, error) {
	return NewKeyringBackend(name, stringOpt(cfg, "service", "skein")), nil
}

func (k *KeyringBackend) Name() string {
	return k.name
}

func (k *KeyringBackend) lookup(ctx context.Context, account, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	value, err := k.get(k.service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", backend.NotFoundError{Backend: k.name, ConnID: id}
		}
		return "", fmt.Errorf("keyring lookup failed: %w", err)
	}
	return value, nil
}

func (k *KeyringBackend) GetConnValue(ctx context.Context, connID string) (string, error) {
	return k.lookup(ctx, "conn:"+connID, connID)
}

func (k *KeyringBackend) GetConnection(ctx context.Context, connID string) (*connection.Connection, error) {
	value, err := k.GetConnValue(ctx, connID)
	if err != nil {
		return nil, err
	}
	return backend.Deserialize(connID, value)
}

func (k *KeyringBackend) GetVariable(ctx context.Context, key string) (string, error) {
	return k.lookup(ctx, "var:"+key, key)
}

func (k *KeyringBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		SupportsVariables: true,
		RequiresAuth:      true,
		AuthMethods:       []string{"keyring"},
	}
}

// Validate probes the keyring; ErrNotFound proves the keyring service is
// reachable.
func (k *KeyringBackend) Validate(ctx context.Context) error {
	_, err := k.lookup(ctx, "conn:skein-validate-probe", "skein-validate-probe")
	if err == nil {
		return nil
	}
	if _, ok := err.(backend.NotFoundError); ok {
		return nil
	}
	return backend.AuthError{
		Backend: k.name,
		Message: fmt.Sprintf("OS keyring unavailable: %v", err),
	}
}
