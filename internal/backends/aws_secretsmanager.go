package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/skeinworks/skein/pkg/backend"
	"github.com/skeinworks/skein/pkg/connection"
)

// SecretsManagerClientAPI is the subset of the AWS Secrets Manager client
// the backend uses. Tests substitute a mock.
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

// AWSSecretsManagerBackend resolves connections stored as AWS Secrets
// Manager secrets. The secret name is built as
// <connections_prefix><sep><conn_id>; the secret string holds the
// connection's URI or JSON representation.
type AWSSecretsManagerBackend struct {
	name      string
	client    SecretsManagerClientAPI
	region    string
	connPath  prefixedPath
	varPath   prefixedPath
	variables bool
}

// prefixedPath builds storage keys from identifiers.
type prefixedPath struct {
	prefix string
	sep    string
}

func (p prefixedPath) keyFor(id string) string {
	if p.prefix == "" {
		return id
	}
	return p.prefix + p.sep + id
}

// AWSSecretsManagerOption is a functional option for testing hooks.
type AWSSecretsManagerOption func(*AWSSecretsManagerBackend)

// WithSecretsManagerClient injects a custom client (for testing).
func WithSecretsManagerClient(client SecretsManagerClientAPI) AWSSecretsManagerOption {
	return func(b *AWSSecretsManagerBackend) {
		b.client = client
	}
}

// NewAWSSecretsManagerBackendFactory creates the backend from its
// skein.yaml block:
//
//	type: aws.secretsmanager
//	region: eu-west-1
//	connections_prefix: skein/connections
//	variables_prefix: skein/variables
//	sep: "/"
func NewAWSSecretsManagerBackendFactory(name string, cfg map[string]interface{}) (backend.Backend, error) {
	return NewAWSSecretsManagerBackend(name, cfg)
}

// NewAWSSecretsManagerBackend creates an AWS Secrets Manager backend.
func NewAWSSecretsManagerBackend(name string, cfg map[string]interface{}, opts ...AWSSecretsManagerOption) (*AWSSecretsManagerBackend, error) {
	region := stringOpt(cfg, "region", "us-east-1")
	sep := stringOpt(cfg, "sep", "/")

	b := &AWSSecretsManagerBackend{
		name:     name,
		region:   region,
		connPath: prefixedPath{prefix: stringOpt(cfg, "connections_prefix", "skein/connections"), sep: sep},
		varPath:  prefixedPath{prefix: stringOpt(cfg, "variables_prefix", ""), sep: sep},
	}
	b.variables = b.varPath.prefix != ""

	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		configOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}

		// Static credentials support LocalStack and CI runs.
		accessKeyID := stringOpt(cfg, "access_key_id", "")
		secretAccessKey := stringOpt(cfg, "secret_access_key", "")
		if accessKeyID != "" && secretAccessKey != "" {
			configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
			))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), configOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		var clientOpts []func(*secretsmanager.Options)
		if endpoint := stringOpt(cfg, "endpoint", ""); endpoint != "" {
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = aws.String(endpoint)
			})
		}
		b.client = secretsmanager.NewFromConfig(awsCfg, clientOpts...)
	}

	return b, nil
}

func (b *AWSSecretsManagerBackend) Name() string {
	return b.name
}

func (b *AWSSecretsManagerBackend) getSecret(ctx context.Context, secretName, id string) (string, error) {
	result, err := b.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return "", b.wrapError(err, id)
	}

	if result.SecretString != nil {
		return *result.SecretString, nil
	}
	if result.SecretBinary != nil {
		return string(result.SecretBinary), nil
	}
	return "", fmt.Errorf("secret %q has no value", secretName)
}

func (b *AWSSecretsManagerBackend) GetConnValue(ctx context.Context, connID string) (string, error) {
	return b.getSecret(ctx, b.connPath.keyFor(connID), connID)
}

func (b *AWSSecretsManagerBackend) GetConnection(ctx context.Context, connID string) (*connection.Connection, error) {
	value, err := b.GetConnValue(ctx, connID)
	if err != nil {
		return nil, err
	}
	return backend.Deserialize(connID, value)
}

func (b *AWSSecretsManagerBackend) GetVariable(ctx context.Context, key string) (string, error) {
	if !b.variables {
		return "", backend.NotFoundError{Backend: b.name, ConnID: key}
	}
	return b.getSecret(ctx, b.varPath.keyFor(key), key)
}

func (b *AWSSecretsManagerBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		SupportsVariables: b.variables,
		RequiresAuth:      true,
		AuthMethods:       []string{"aws-credentials", "iam-role", "environment-variables"},
	}
}

func (b *AWSSecretsManagerBackend) Validate(ctx context.Context) error {
	_, err := b.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{
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

func (b *AWSSecretsManagerBackend) wrapError(err error, id string) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return backend.NotFoundError{Backend: b.name, ConnID: id}
	}
	if isAWSAuthError(err) {
		return backend.AuthError{
			Backend: b.name,
			Message: fmt.Sprintf("AWS authentication/authorization failed: %v", err),
		}
	}
	return fmt.Errorf("AWS Secrets Manager error: %w", err)
}

func isAWSAuthError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "AccessDenied") ||
		strings.Contains(errStr, "UnauthorizedOperation") ||
		strings.Contains(errStr, "InvalidUserID") ||
		strings.Contains(errStr, "Forbidden") ||
		strings.Contains(errStr, "ExpiredToken")
}
