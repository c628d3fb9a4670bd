package backends_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinworks/skein/internal/backends"
	"github.com/skeinworks/skein/pkg/backend"
)

type mockSSMClient struct {
	parameters  map[string]string
	describeErr error
	decrypted   bool
}

func (m *mockSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.decrypted = aws.ToBool(params.WithDecryption)
	value, ok := m.parameters[aws.ToString(params.Name)]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Value: aws.String(value)},
	}, nil
}

func (m *mockSSMClient) DescribeParameters(ctx context.Context, params *ssm.DescribeParametersInput, optFns ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error) {
	if m.describeErr != nil {
		return nil, m.describeErr
	}
	return &ssm.DescribeParametersOutput{}, nil
}

func newSSMBackend(t *testing.T, cfg map[string]interface{}, client *mockSSMClient) *backends.AWSSSMBackend {
	t.Helper()
	b, err := backends.NewAWSSSMBackend("ssm", cfg, backends.WithSSMClient(client))
	require.NoError(t, err)
	return b
}

func TestSSMGetConnValue(t *testing.T) {
	t.Parallel()

	client := &mockSSMClient{parameters: map[string]string{
		"/skein/connections/pg_default": "postgres://svc:pw@db.internal:5432/analytics",
	}}
	b := newSSMBackend(t, nil, client)

	value, err := b.GetConnValue(context.Background(), "pg_default")
	require.NoError(t, err)
	assert.Equal(t, "postgres://svc:pw@db.internal:5432/analytics", value)
	assert.True(t, client.decrypted, "SecureString parameters must be decrypted")
}

func TestSSMNotFound(t *testing.T) {
	t.Parallel()

	b := newSSMBackend(t, nil, &mockSSMClient{})

	_, err := b.GetConnValue(context.Background(), "ghost")
	var notFound backend.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "ssm", notFound.Backend)
}

func TestSSMVariables(t *testing.T) {
	t.Parallel()

	client := &mockSSMClient{parameters: map[string]string{
		"/skein/variables/deploy_env": "staging",
	}}

	noVars := newSSMBackend(t, nil, client)
	var notFound backend.NotFoundError
	_, err := noVars.GetVariable(context.Background(), "deploy_env")
	assert.True(t, errors.As(err, &notFound))

	withVars := newSSMBackend(t, map[string]interface{}{
		"variables_prefix": "/skein/variables",
	}, client)
	v, err := withVars.GetVariable(context.Background(), "deploy_env")
	require.NoError(t, err)
	assert.Equal(t, "staging", v)
}

func TestSSMValidate(t *testing.T) {
	t.Parallel()

	ok := newSSMBackend(t, nil, &mockSSMClient{})
	assert.NoError(t, ok.Validate(context.Background()))

	denied := newSSMBackend(t, nil, &mockSSMClient{
		describeErr: errors.New("AccessDeniedException"),
	})
	var authErr backend.AuthError
	require.True(t, errors.As(denied.Validate(context.Background()), &authErr))
}

func TestSSMContract(t *testing.T) {
	client := &mockSSMClient{parameters: map[string]string{}}
	backend.RunContractTests(t, backend.ContractTest{
		CreateBackend: func(t *testing.T) backend.Backend {
			return newSSMBackend(t, nil, client)
		},
		SetupConnection: func(t *testing.T, _ backend.Backend) (string, func()) {
			connID, value := "contract_probe", "postgres://u:p@host:5432/db"
			client.parameters["/skein/connections/"+connID] = value
			return connID, func() {}
		},
	})
}
