//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	awspkg "github.com/beamline/emrattach/internal/aws"
)

func clusterID(t *testing.T) string {
	t.Helper()
	return os.Getenv("EMRATTACH_TEST_CLUSTER_ID")
}

func awsProfile() string {
	return os.Getenv("EMRATTACH_TEST_AWS_PROFILE")
}

func awsRegion() string {
	return envOrDefault("EMRATTACH_TEST_AWS_REGION", "us-east-1")
}

func skipIfNoCluster(t *testing.T) {
	t.Helper()
	if clusterID(t) == "" {
		t.Skip("skipping: EMRATTACH_TEST_CLUSTER_ID not set")
	}
}

func skipIfNoAWS(t *testing.T) {
	t.Helper()
	if os.Getenv("EMRATTACH_TEST_AWS") == "" {
		t.Skip("skipping: EMRATTACH_TEST_AWS not set")
	}
}

func loadAWS(t *testing.T) aws.Config {
	t.Helper()
	cfg, err := awspkg.LoadConfig(context.Background(), awsProfile(), awsRegion())
	if err != nil {
		t.Fatalf("loading AWS config: %v", err)
	}
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
