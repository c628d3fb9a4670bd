package backends

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"

	"github.com/skeinworks/skein/pkg/backend"
	"github.com/skeinworks/skein/pkg/connection"
)

// GCPSecretManagerClientAPI is the subset of the Secret Manager client the
// backend uses. Tests substitute a mock.
type GCPSecretManagerClientAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// GCPSecretManagerBackend resolves connections from Google Cloud Secret
// Manager. Secret names allow only letters, digits, dashes and
// underscores, so the default separator is "-":
// skein-connections-pg_default.
type GCPSecretManagerBackend struct {
	name      string
	client    GCPSecretManagerClientAPI
	projectID string
	connPath  prefixedPath
	varPath   prefixedPath
	variables bool
}

// GCPSecretManagerOption is a functional option for testing hooks.
type GCPSecretManagerOption func(*GCPSecretManagerBackend)

// WithGCPSecretManagerClient injects a custom client (for testing).
func WithGCPSecretManagerClient(client GCPSecretManagerClientAPI) GCPSecretManagerOption {
	return func(b *GCPSecretManagerBackend) {
		b.client = client
	}
}

// NewGCPSecretManagerBackendFactory creates the backend from its
// skein.yaml block:
//
//	type: gcp.secretmanager
//	project_id: my-project
//	connections_prefix: skein-connections
//	impersonate_service_account: sa@my-project.iam.gserviceaccount.com
func NewGCPSecretManagerBackendFactory(name string, cfg map[string]interface{}) (backend.Backend, error) {
	return NewGCPSecretManagerBackend(name, cfg)
}

// NewGCPSecretManagerBackend creates a GCP Secret Manager backend.
func NewGCPSecretManagerBackend(name string, cfg map[string]interface{}, opts ...GCPSecretManagerOption) (*GCPSecretManagerBackend, error) {
	projectID := stringOpt(cfg, "project_id", "")
	if projectID == "" {
		return nil, fmt.Errorf("missing required 'project_id' field for GCP Secret Manager backend")
	}

	sep := stringOpt(cfg, "sep", "-")
	b := &GCPSecretManagerBackend{
		name:      name,
		projectID: projectID,
		connPath:  prefixedPath{prefix: stringOpt(cfg, "connections_prefix", "skein-connections"), sep: sep},
		varPath:   prefixedPath{prefix: stringOpt(cfg, "variables_prefix", ""), sep: sep},
	}
	b.variables = b.varPath.prefix != ""

	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		var clientOpts []option.ClientOption
		if keyPath := stringOpt(cfg, "service_account_key_path", ""); keyPath != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(keyPath))
		}
		if target := stringOpt(cfg, "impersonate_service_account", ""); target != "" {
			ts, err := impersonate.CredentialsTokenSource(context.Background(), impersonate.CredentialsConfig{
				TargetPrincipal: target,
				Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to impersonate %s: %w", target, err)
			}
			clientOpts = append(clientOpts, option.WithTokenSource(ts))
		}

		client, err := secretmanager.NewClient(context.Background(), clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
		}
		b.client = client
	}

	return b, nil
}

func (b *GCPSecretManagerBackend) Name() string {
	return b.name
}

func (b *GCPSecretManagerBackend) accessSecret(ctx context.Context, secretID, id string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", b.projectID, secretID)
	resp, err := b.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resource,
	})
	if err != nil {
		return "", b.wrapError(err, id)
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret %q has no payload", secretID)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (b *GCPSecretManagerBackend) GetConnValue(ctx context.Context, connID string) (string, error) {
	return b.accessSecret(ctx, b.connPath.keyFor(connID), connID)
}

func (b *GCPSecretManagerBackend) GetConnection(ctx context.Context, connID string) (*connection.Connection, error) {
	value, err := b.GetConnValue(ctx, connID)
	if err != nil {
		return nil, err
	}
	return backend.Deserialize(connID, value)
}

func (b *GCPSecretManagerBackend) GetVariable(ctx context.Context, key string) (string, error) {
	if !b.variables {
		return "", backend.NotFoundError{Backend: b.name, ConnID: key}
	}
	return b.accessSecret(ctx, b.varPath.keyFor(key), key)
}

func (b *GCPSecretManagerBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		SupportsVariables: b.variables,
		RequiresAuth:      true,
		AuthMethods:       []string{"application-default-credentials", "service-account-key", "impersonation"},
	}
}

// Validate reads a probe secret to exercise authentication. A NotFound
// answer proves the credentials work; only auth failures are fatal.
func (b *GCPSecretManagerBackend) Validate(ctx context.Context) error {
	_, err := b.accessSecret(ctx, b.connPath.keyFor("skein-validate-probe"), "skein-validate-probe")
	if err == nil {
		return nil
	}
	if _, ok := err.(backend.NotFoundError); ok {
		return nil
	}
	return backend.AuthError{
		Backend: b.name,
		Message: fmt.Sprintf("GCP authentication failed: %v", err),
	}
}

func (b *GCPSecretManagerBackend) wrapError(err error, id string) error {
	errStr := err.Error()
	if strings.Contains(errStr, "NotFound") || strings.Contains(errStr, "not found") {
		return backend.NotFoundError{Backend: b.name, ConnID: id}
	}
	if strings.Contains(errStr, "PermissionDenied") || strings.Contains(errStr, "Unauthenticated") {
		return backend.AuthError{
			Backend: b.name,
			Message: fmt.Sprintf("GCP authentication/authorization failed: %v", err),
		}
	}
	return fmt.Errorf("GCP Secret Manager error: %w", err)
}
