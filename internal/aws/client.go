package aws

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// LoadConfig loads the default AWS config with an optional profile and region.
func LoadConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// RealClient implements Client using the AWS SDK v2.
type RealClient struct {
	stsClient  *sts.Client
	iamClient  *iam.Client
	glueClient *glue.Client
	s3Client   *s3.Client
}

// NewRealClient creates the account-level clients from a loaded config.
func NewRealClient(cfg aws.Config) *RealClient {
	return &RealClient{
		stsClient:  sts.NewFromConfig(cfg),
		iamClient:  iam.NewFromConfig(cfg),
		glueClient: glue.NewFromConfig(cfg),
		s3Client:   s3.NewFromConfig(cfg),
	}
}

// VerifyCredentials checks the current AWS credentials using STS.
func (c *RealClient) VerifyCredentials(ctx context.Context) (*CallerIdentity, error) {
	out, err := c.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("getting caller identity: %w", err)
	}

	return &CallerIdentity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}

// CheckEMRAccess checks whether the caller may create EMR clusters.
func (c *RealClient) CheckEMRAccess(ctx context.Context) (bool, error) {
	return c.simulatePolicy(ctx, "elasticmapreduce:RunJobFlow", "arn:aws:elasticmapreduce:*:*:cluster/*")
}

// CheckGlueAccess checks whether the caller may read the Glue Data Catalog.
func (c *RealClient) CheckGlueAccess(ctx context.Context) (bool, error) {
	return c.simulatePolicy(ctx, "glue:GetDatabases", "arn:aws:glue:*:*:catalog")
}

func (c *RealClient) simulatePolicy(ctx context.Context, action, resource string) (bool, error) {
	identity, err := c.VerifyCredentials(ctx)
	if err != nil {
		return false, err
	}

	out, err := c.iamClient.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: aws.String(identity.ARN),
		ActionNames:     []string{action},
		ResourceArns:    []string{resource},
	})
	if err != nil {
		// Assumed-role sessions often cannot simulate their own policy.
		return false, nil
	}

	for _, result := range out.EvaluationResults {
		if result.EvalDecision == "allowed" {
			return true, nil
		}
	}
	return false, nil
}

// GetObject downloads an S3 object into memory.
func (c *RealClient) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}
