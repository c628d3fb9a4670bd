package backends

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/skeinworks/skein/pkg/backend"
	"github.com/skeinworks/skein/pkg/connection"
)

// SSMClientAPI is the subset of the AWS SSM client the backend uses.
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	DescribeParameters(ctx context.Context, params *ssm.DescribeParametersInput, optFns ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error)
}

// AWSSSMBackend resolves connections from SSM Parameter Store. Parameter
// names are path style: <connections_prefix>/<conn_id>. SecureString
// parameters are decrypted transparently.
type AWSSSMBackend struct {
	name      string
	client    SSMClientAPI
	connPath  prefixedPath
	varPath   prefixedPath
	variables bool
	decrypt   bool
}

// AWSSSMOption is a functional option for testing hooks.
type AWSSSMOption func(*AWSSSMBackend)

// WithSSMClient injects a custom client (for testing).
func WithSSMClient(client SSMClientAPI) AWSSSMOption {
	return func(b *AWSSSMBackend) {
		b.client = client
	}
}

// NewAWSSSMBackendFactory creates the backend from configuration.
func NewAWSSSMBackendFactory(name string, cfg map[string]interface{}) (backend.Backend, error) {
	return NewAWSSSMBackend(name, cfg)
}

// NewAWSSSMBackend creates an SSM Parameter Store backend.
func NewAWSSSMBackend(name string, cfg map[string]interface{}, opts ...AWSSSMOption) (*AWSSSMBackend, error) {
	b := &AWSSSMBackend{
		name:     name,
		connPath: prefixedPath{prefix: stringOpt(cfg, "connections_prefix", "/skein/connections"), sep: "/"},
		varPath:  prefixedPath{prefix: stringOpt(cfg, "variables_prefix", ""), sep: "/"},
		decrypt:  boolOpt(cfg, "with_decryption", true),
	}
	b.variables = b.varPath.prefix != ""

	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(stringOpt(cfg, "region", "us-east-1")))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		b.client = ssm.NewFromConfig(awsCfg)
	}

	return b, nil
}

func (b *AWSSSMBackend) Name() string {
	return b.name
}

func (b *AWSSSMBackend) getParameter(ctx context.Context, paramName, id string) (string, error) {
	result, err := b.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(b.decrypt),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", backend.NotFoundError{Backend: b.name, ConnID: id}
		}
		if isAWSAuthError(err) {
			return "", backend.AuthError{
				Backend: b.name,
				Message: fmt.Sprintf("AWS authentication/authorization failed: %v", err),
			}
		}
		return "", fmt.Errorf("SSM Parameter Store error: %w", err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %q has no value", paramName)
	}
	return *result.Parameter.Value, nil
}

func (b *AWSSSMBackend) GetConnValue(ctx context.Context, connID string) (string, error) {
	return b.getParameter(ctx, b.connPath.keyFor(connID), connID)
}

func (b *AWSSSMBackend) GetConnection(ctx context.Context, connID string) (*connection.Connection, error) {
	value, err := b.GetConnValue(ctx, connID)
	if err != nil {
		return nil, err
	}
	return backend.Deserialize(connID, value)
}

func (b *AWSSSMBackend) GetVariable(ctx context.Context, key string) (string, error) {
	if !b.variables {
		return "", backend.NotFoundError{Backend: b.name, ConnID: key}
	}
	return b.getParameter(ctx, b.varPath.keyFor(key), key)
}

func (b *AWSSSMBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		SupportsVariables: b.variables,
		RequiresAuth:      true,
		AuthMethods:       []string{"aws-credentials", "iam-role", "environment-variables"},
	}
}

func (b *AWSSSMBackend) Validate(ctx context.Context) error {
	_, err := b.client.DescribeParameters(ctx, &ssm.DescribeParametersInput{
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return backend.AuthError{
			Backend: b.name,
			Message: fmt.Sprintf("AWS authentication failed: %v", err),
		}
	}
	return nil
}
