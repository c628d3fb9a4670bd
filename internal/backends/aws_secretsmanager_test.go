package backends_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinworks/skein/internal/backends"
	"github.com/skeinworks/skein/pkg/backend"
)

type mockSecretsManagerClient struct {
	secrets   map[string]string
	listErr   error
	lastInput *secretsmanager.GetSecretValueInput
}

func (m *mockSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.lastInput = params
	value, ok := m.secrets[aws.ToString(params.SecretId)]
	if !ok {
		return nil, &types.ResourceNotFoundException{}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(value)}, nil
}

func (m *mockSecretsManagerClient) ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return &secretsmanager.ListSecretsOutput{}, nil
}

func newSecretsManagerBackend(t *testing.T, cfg map[string]interface{}, client *mockSecretsManagerClient) *backends.AWSSecretsManagerBackend {
	t.Helper()
	b, err := backends.NewAWSSecretsManagerBackend("aws", cfg, backends.WithSecretsManagerClient(client))
	require.NoError(t, err)
	return b
}

func TestSecretsManagerGetConnValue(t *testing.T) {
	t.Parallel()

	client := &mockSecretsManagerClient{secrets: map[string]string{
		"skein/connections/pg_default": "postgres://svc:pw@db.internal:5432/analytics",
	}}
	b := newSecretsManagerBackend(t, nil, client)

	value, err := b.GetConnValue(context.Background(), "pg_default")
	require.NoError(t, err)
	assert.Equal(t, "postgres://svc:pw@db.internal:5432/analytics", value)
	assert.Equal(t, "skein/connections/pg_default", aws.ToString(client.lastInput.SecretId))
}

func TestSecretsManagerGetConnectionFromJSON(t *testing.T) {
	t.Parallel()

	client := &mockSecretsManagerClient{secrets: map[string]string{
		"skein/connections/kusto": `{"conn_type": "azure_data_explorer", "host": "https://cluster.kusto.windows.net", "login": "client-id"}`,
	}}
	b := newSecretsManagerBackend(t, nil, client)

	conn, err := b.GetConnection(context.Background(), "kusto")
	require.NoError(t, err)
	assert.Equal(t, "azure_data_explorer", conn.ConnType)
	assert.Equal(t, "https://cluster.kusto.windows.net", conn.Host)
}

func TestSecretsManagerCustomPrefix(t *testing.T) {
	t.Parallel()

	client := &mockSecretsManagerClient{secrets: map[string]string{
		"prod-connections-pg_default": "postgres://h",
	}}
	b := newSecretsManagerBackend(t, map[string]interface{}{
		"connections_prefix": "prod-connections",
		"sep":                "-",
	}, client)

	_, err := b.GetConnValue(context.Background(), "pg_default")
	assert.NoError(t, err)
}

func TestSecretsManagerNotFound(t *testing.T) {
	t.Parallel()

	b := newSecretsManagerBackend(t, nil, &mockSecretsManagerClient{})

	_, err := b.GetConnValue(context.Background(), "ghost")
	var notFound backend.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "ghost", notFound.ConnID)
}

func TestSecretsManagerVariables(t *testing.T) {
	t.Parallel()

	client := &mockSecretsManagerClient{secrets: map[string]string{
		"skein/variables/deploy_env": "staging",
	}}

	// Without a variables_prefix the backend reports variables as absent.
	noVars := newSecretsManagerBackend(t, nil, client)
	_, err := noVars.GetVariable(context.Background(), "deploy_env")
	var notFound backend.NotFoundError
	assert.True(t, errors.As(err, &notFound))
	assert.False(t, noVars.Capabilities().SupportsVariables)

	withVars := newSecretsManagerBackend(t, map[string]interface{}{
		"variables_prefix": "skein/variables",
	}, client)
	v, err := withVars.GetVariable(context.Background(), "deploy_env")
	require.NoError(t, err)
	assert.Equal(t, "staging", v)
	assert.True(t, withVars.Capabilities().SupportsVariables)
}

func TestSecretsManagerValidate(t *testing.T) {
	t.Parallel()

	ok := newSecretsManagerBackend(t, nil, &mockSecretsManagerClient{})
	assert.NoError(t, ok.Validate(context.Background()))

	denied := newSecretsManagerBackend(t, nil, &mockSecretsManagerClient{
		listErr: errors.New("AccessDeniedException: not authorized"),
	})
	err := denied.Validate(context.Background())
	var authErr backend.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "aws", authErr.Backend)
}

func TestSecretsManagerContract(t *testing.T) {
	client := &mockSecretsManagerClient{secrets: map[string]string{}}
	backend.RunContractTests(t, backend.ContractTest{
		CreateBackend: func(t *testing.T) backend.Backend {
			return newSecretsManagerBackend(t, nil, client)
		},
		SetupConnection: func(t *testing.T, _ backend.Backend) (string, func()) {
			connID, value := "contract_probe", "postgres://u:p@host:5432/db"
			client.secrets["skein/connections/"+connID] = value
			return connID, func() {}
		},
	})
}
