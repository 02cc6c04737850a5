//go:build integration

package integration

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beamline/emrattach/internal/attach"
	awspkg "github.com/beamline/emrattach/internal/aws"
	"github.com/beamline/emrattach/internal/sparkmagic"
)

func TestCallerIdentity(t *testing.T) {
	skipIfNoAWS(t)
	ctx := context.Background()

	client := awspkg.NewRealClient(loadAWS(t))
	identity, err := client.VerifyCredentials(ctx)
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if identity.Account == "" || identity.ARN == "" {
		t.Errorf("identity = %+v", identity)
	}

	access, err := awspkg.CheckAccountAccess(ctx, client, true)
	if err != nil {
		t.Fatalf("CheckAccountAccess: %v", err)
	}
	t.Logf("access: %+v", access)
}

func TestDescribeExistingCluster(t *testing.T) {
	skipIfNoCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cluster := awspkg.NewEMRClient(loadAWS(t), quietLogger())
	info, err := cluster.DescribeCluster(ctx, clusterID(t))
	if err != nil {
		t.Fatalf("DescribeCluster: %v", err)
	}
	if info.ID != clusterID(t) {
		t.Errorf("ID = %q", info.ID)
	}
	t.Logf("cluster %s (%s) is %s", info.ID, info.Name, info.Status.State)
}

func TestAttachExistingCluster(t *testing.T) {
	skipIfNoCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg := loadAWS(t)
	cluster := awspkg.NewEMRClient(cfg, quietLogger())
	source, err := sparkmagic.NewSource(envOrDefault("EMRATTACH_TEST_TEMPLATE_URL", sparkmagic.DefaultTemplateURL), awspkg.NewRealClient(cfg), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "config.json")

	flow := &attach.Flow{
		Writer: &sparkmagic.Generator{Source: source, OutputPath: out, Logger: quietLogger()},
		Poller: &attach.Poller{Cluster: cluster, Logger: quietLogger()},
		Logger: quietLogger(),
	}
	res, err := flow.Run(ctx, attach.Options{ClusterID: clusterID(t)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if net.ParseIP(res.MasterAddress) == nil {
		t.Errorf("master address %q is not an IP", res.MasterAddress)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), sparkmagic.Placeholder) {
		t.Error("placeholder left in written config")
	}
}

func TestDescribeUnknownCluster(t *testing.T) {
	skipIfNoAWS(t)
	cluster := awspkg.NewEMRClient(loadAWS(t), quietLogger())

	_, err := cluster.ClusterState(context.Background(), "j-DOESNOTEXIST0")
	if err == nil {
		t.Fatal("expected error for unknown cluster")
	}
	if !awspkg.IsPermanent(err) {
		t.Errorf("unknown cluster should be a permanent error: %v", err)
	}
}
