package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/skeinworks/skein/pkg/backend"
	"github.com/skeinworks/skein/pkg/connection"
)

// AzureKeyVaultClientAPI is the subset of the Key Vault client the backend
// uses. Tests substitute a mock.
type AzureKeyVaultClientAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// AzureKeyVaultBackend resolves connections from Azure Key Vault. Vault
// secret names allow only alphanumerics and dashes, so conn ids have their
// underscores replaced: skein-connections-pg-default.
type AzureKeyVaultBackend struct {
	name      string
	client    AzureKeyVaultClientAPI
	vaultURL  string
	connPath  prefixedPath
	varPath   prefixedPath
	variables bool
}

// AzureKeyVaultOption is a functional option for testing hooks.
type AzureKeyVaultOption func(*AzureKeyVaultBackend)

// WithAzureKeyVaultClient injects a custom client (for testing).
func WithAzureKeyVaultClient(client AzureKeyVaultClientAPI) AzureKeyVaultOption {
	return func(b *AzureKeyVaultBackend) {
		b.client = client
	}
}

// NewAzureKeyVaultBackendFactory creates the backend from its skein.yaml
// block:
//
//	type: azure.keyvault
//	vault_url: https://myvault.vault.azure.net
//	connections_prefix: skein-connections
//	tenant_id: ...        # optional, for client-secret auth
//	client_id: ...
//	client_secret: ...
func NewAzureKeyVaultBackendFactory(name string, cfg map[string]interface{}) (backend.Backend, error) {
	return NewAzureKeyVaultBackend(name, cfg)
}

// NewAzureKeyVaultBackend creates an Azure Key Vault backend.
func NewAzureKeyVaultBackend(name string, cfg map[string]interface{}, opts ...AzureKeyVaultOption) (*AzureKeyVaultBackend, error) {
	vaultURL := stringOpt(cfg, "vault_url", "")

	sep := stringOpt(cfg, "sep", "-")
	b := &AzureKeyVaultBackend{
		name:     name,
		vaultURL: vaultURL,
		connPath: prefixedPath{prefix: stringOpt(cfg, "connections_prefix", "skein-connections"), sep: sep},
		varPath:  prefixedPath{prefix: stringOpt(cfg, "variables_prefix", ""), sep: sep},
	}
	b.variables = b.varPath.prefix != ""

	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		if vaultURL == "" {
			return nil, fmt.Errorf("missing required 'vault_url' field for Azure Key Vault backend")
		}

		cred, err := azureCredential(cfg)
		if err != nil {
			return nil, err
		}
		client, err := azsecrets.NewClient(vaultURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
		}
		b.client = client
	}

	return b, nil
}

func azureCredential(cfg map[string]interface{}) (azcore.TokenCredential, error) {
	tenantID := stringOpt(cfg, "tenant_id", "")
	clientID := stringOpt(cfg, "client_id", "")
	clientSecret := stringOpt(cfg, "client_secret", "")

	if tenantID != "" && clientID != "" && clientSecret != "" {
		cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client-secret credential: %w", err)
		}
		return cred, nil
	}

	// DefaultAzureCredential covers managed identity, workload identity,
	// the Azure CLI, and environment variables.
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return cred, nil
}

func (b *AzureKeyVaultBackend) Name() string {
	return b.name
}

// vaultSecretName maps an identifier to a valid Key Vault secret name.
func (b *AzureKeyVaultBackend) vaultSecretName(path prefixedPath, id string) string {
	return strings.ReplaceAll(path.keyFor(id), "_", "-")
}

func (b *AzureKeyVaultBackend) getSecret(ctx context.Context, secretName, id string) (string, error) {
	resp, err := b.client.GetSecret(ctx, secretName, "", nil)
	if err != nil {
		return "", b.wrapError(err, id)
	}
	if resp.Value == nil {
		return "", fmt.Errorf("secret %q has no value", secretName)
	}
	return *resp.Value, nil
}

func (b *AzureKeyVaultBackend) GetConnValue(ctx context.Context, connID string) (string, error) {
	return b.getSecret(ctx, b.vaultSecretName(b.connPath, connID), connID)
}

func (b *AzureKeyVaultBackend) GetConnection(ctx context.Context, connID string) (*connection.Connection, error) {
	value, err := b.GetConnValue(ctx, connID)
	if err != nil {
		return nil, err
	}
	return backend.Deserialize(connID, value)
}

func (b *AzureKeyVaultBackend) GetVariable(ctx context.Context, key string) (string, error) {
	if !b.variables {
		return "", backend.NotFoundError{Backend: b.name, ConnID: key}
	}
	return b.getSecret(ctx, b.vaultSecretName(b.varPath, key), key)
}

func (b *AzureKeyVaultBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		SupportsVariables: b.variables,
		RequiresAuth:      true,
		AuthMethods:       []string{"managed-identity", "client-secret", "azure-cli"},
	}
}

// Validate reads a probe secret; NotFound proves the credentials work.
func (b *AzureKeyVaultBackend) Validate(ctx context.Context) error {
	_, err := b.getSecret(ctx, b.vaultSecretName(b.connPath, "skein-validate-probe"), "skein-validate-probe")
	if err == nil {
		return nil
	}
	if _, ok := err.(backend.NotFoundError); ok {
		return nil
	}
	return backend.AuthError{
		Backend: b.name,
		Message: fmt.Sprintf("Azure authentication failed: %v", err),
	}
}

func (b *AzureKeyVaultBackend) wrapError(err error, id string) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 404:
			return backend.NotFoundError{Backend: b.name, ConnID: id}
		case 401, 403:
			return backend.AuthError{
				Backend: b.name,
				Message: fmt.Sprintf("Azure authentication/authorization failed: %v", err),
			}
		}
	}
	return fmt.Errorf("Azure Key Vault error: %w", err)
}
