package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretsAPI is the subset of *secretsmanager.Client used to resolve values.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// newSecretsClient builds the Secrets Manager client from the default
// credential chain. Tests replace it.
var newSecretsClient = func(ctx context.Context) (secretsAPI, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// resolveAWSSecretsManager reads a Secrets Manager secret. The reference is a
// secret name or ARN, optionally followed by #key to pick one field of a
// JSON secret such as the ones the console creates for key/value pairs.
func resolveAWSSecretsManager(ctx context.Context, ref string) (string, error) {
	secretID, field, _ := strings.Cut(ref, "#")
	if secretID == "" {
		return "", fmt.Errorf("AWS_SM reference %q has no secret id", ref)
	}

	client, err := newSecretsClient(ctx)
	if err != nil {
		return "", err
	}
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("getting secret %q: %w", secretID, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string value", secretID)
	}
	if field == "" {
		return *out.SecretString, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(*out.SecretString), &fields); err != nil {
		return "", fmt.Errorf("secret %q is not a JSON object: %w", secretID, err)
	}
	val, ok := fields[field]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", field, secretID)
	}
	return fmt.Sprint(val), nil
}
