package backends_test

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinworks/skein/internal/backends"
	"github.com/skeinworks/skein/pkg/backend"
)

type mockGCPSecretManagerClient struct {
	secrets  map[string]string
	err      error
	lastName string
}

func (m *mockGCPSecretManagerClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	m.lastName = req.GetName()
	if m.err != nil {
		return nil, m.err
	}
	value, ok := m.secrets[req.GetName()]
	if !ok {
		return nil, errors.New("rpc error: code = NotFound desc = secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func newGCPBackend(t *testing.T, cfg map[string]interface{}, client *mockGCPSecretManagerClient) *backends.GCPSecretManagerBackend {
	t.Helper()
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	if _, ok := cfg["project_id"]; !ok {
		cfg["project_id"] = "my-project"
	}
	b, err := backends.NewGCPSecretManagerBackend("gcp", cfg, backends.WithGCPSecretManagerClient(client))
	require.NoError(t, err)
	return b
}

func TestGCPSecretManagerGetConnValue(t *testing.T) {
	t.Parallel()

	client := &mockGCPSecretManagerClient{secrets: map[string]string{
		"projects/my-project/secrets/skein-connections-pg_default/versions/latest": "postgres://svc:pw@db.internal:5432/analytics",
	}}
	b := newGCPBackend(t, nil, client)

	value, err := b.GetConnValue(context.Background(), "pg_default")
	require.NoError(t, err)
	assert.Equal(t, "postgres://svc:pw@db.internal:5432/analytics", value)
	assert.Equal(t, "projects/my-project/secrets/skein-connections-pg_default/versions/latest", client.lastName)
}

func TestGCPSecretManagerRequiresProjectID(t *testing.T) {
	t.Parallel()

	_, err := backends.NewGCPSecretManagerBackend("gcp", map[string]interface{}{})
	assert.ErrorContains(t, err, "project_id")
}

func TestGCPSecretManagerNotFound(t *testing.T) {
	t.Parallel()

	b := newGCPBackend(t, nil, &mockGCPSecretManagerClient{})

	_, err := b.GetConnValue(context.Background(), "ghost")
	var notFound backend.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "gcp", notFound.Backend)
}

func TestGCPSecretManagerAuthError(t *testing.T) {
	t.Parallel()

	b := newGCPBackend(t, nil, &mockGCPSecretManagerClient{
		err: errors.New("rpc error: code = PermissionDenied desc = forbidden"),
	})

	_, err := b.GetConnValue(context.Background(), "pg_default")
	var authErr backend.AuthError
	require.True(t, errors.As(err, &authErr))
}

func TestGCPSecretManagerValidate(t *testing.T) {
	t.Parallel()

	// The probe secret not existing still proves credentials work.
	assert.NoError(t, newGCPBackend(t, nil, &mockGCPSecretManagerClient{}).Validate(context.Background()))

	denied := newGCPBackend(t, nil, &mockGCPSecretManagerClient{
		err: errors.New("rpc error: code = Unauthenticated desc = missing credentials"),
	})
	var authErr backend.AuthError
	require.True(t, errors.As(denied.Validate(context.Background()), &authErr))
}

func TestGCPSecretManagerVariables(t *testing.T) {
	t.Parallel()

	client := &mockGCPSecretManagerClient{secrets: map[string]string{
		"projects/my-project/secrets/skein-variables-deploy_env/versions/latest": "staging",
	}}

	withVars := newGCPBackend(t, map[string]interface{}{
		"variables_prefix": "skein-variables",
	}, client)
	v, err := withVars.GetVariable(context.Background(), "deploy_env")
	require.NoError(t, err)
	assert.Equal(t, "staging", v)
}

func TestGCPSecretManagerContract(t *testing.T) {
	client := &mockGCPSecretManagerClient{secrets: map[string]string{}}
	backend.RunContractTests(t, backend.ContractTest{
		CreateBackend: func(t *testing.T) backend.Backend {
			return newGCPBackend(t, nil, client)
		},
		SetupConnection: func(t *testing.T, _ backend.Backend) (string, func()) {
			connID, value := "contract_probe", "postgres://u:p@host:5432/db"
			client.secrets["projects/my-project/secrets/skein-connections-"+connID+"/versions/latest"] = value
			return connID, func() {}
		},
	})
}
