package secrets

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"prepmate/internal/infra/config"
)

// secretsAPI abstracts the Secrets Manager client for testability.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Fetcher reads secrets from AWS Secrets Manager.
type Fetcher struct {
	client secretsAPI
}

// NewFetcher creates a fetcher using the default AWS credential chain.
func NewFetcher(ctx context.Context) (*Fetcher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Fetcher{client: secretsmanager.NewFromConfig(awsCfg)}, nil
}

// newFetcherWithClient creates a fetcher with an injected client (for testing).
func newFetcherWithClient(client secretsAPI) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch returns the string value of a secret.
func (f *Fetcher) Fetch(ctx context.Context, secretID string) (string, error) {
	out, err := f.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %q: %w", secretID, err)
	}
	return aws.ToString(out.SecretString), nil
}

// Export resolves the configured secret at startup and exports it into the
// process environment for the telemetry backend. A config with no secret is
// a no-op.
func Export(ctx context.Context, cfg config.SecretsConfig) error {
	if cfg.SecretID == "" || cfg.TelemetryEnvVar == "" {
		return nil
	}
	fetcher, err := NewFetcher(ctx)
	if err != nil {
		return err
	}
	value, err := fetcher.Fetch(ctx, cfg.SecretID)
	if err != nil {
		return err
	}
	return os.Setenv(cfg.TelemetryEnvVar, value)
}
