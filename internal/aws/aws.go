package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/emr/types"
)

// ClusterAPI is the EMR control surface used by the attach flow.
type ClusterAPI interface {
	CreateCluster(ctx context.Context, spec ClusterSpec) (*CreateResult, error)
	ClusterState(ctx context.Context, clusterID string) (*ClusterStatus, error)
	DescribeCluster(ctx context.Context, clusterID string) (*ClusterInfo, error)
	ListInstances(ctx context.Context, clusterID string, groups ...types.InstanceGroupType) ([]Instance, error)
	TerminateCluster(ctx context.Context, clusterID string) error
}

// Client defines the account-level AWS operations used by preflight checks
// and template downloads.
type Client interface {
	VerifyCredentials(ctx context.Context) (*CallerIdentity, error)
	CheckEMRAccess(ctx context.Context) (bool, error)
	CheckGlueAccess(ctx context.Context) (bool, error)
	CountGlueDatabases(ctx context.Context) (int, error)
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// CreateResult identifies a newly created cluster.
type CreateResult struct {
	ClusterID  string
	ClusterARN string
}

// ClusterStatus is the provider-owned state of a cluster.
type ClusterStatus struct {
	State  types.ClusterState
	Code   string
	Reason string
}

// ClusterInfo is a summary of DescribeCluster.
type ClusterInfo struct {
	ID              string
	Name            string
	Status          ClusterStatus
	ReleaseLabel    string
	MasterPublicDNS string
	Applications    []string
	CollectionType  string
}

// Instance is one EC2 instance of a cluster.
type Instance struct {
	ID            string
	EC2InstanceID string
	PrivateIP     string
	PrivateDNS    string
	PublicDNS     string
	State         string
}

// CallerIdentity holds AWS STS caller identity information.
type CallerIdentity struct {
	Account string
	ARN     string
	UserID  string
}

// AccountAccess describes what the caller may do in the account.
type AccountAccess struct {
	EMRAvailable         bool
	GlueAvailable        bool
	GlueCatalogReachable bool
	GlueDatabases        int
	Message              string
}

// CheckAccountAccess determines whether the caller can create EMR clusters
// and, when needGlue is set, read the Glue Data Catalog.
func CheckAccountAccess(ctx context.Context, client Client, needGlue bool) (*AccountAccess, error) {
	emrOK, emrErr := client.CheckEMRAccess(ctx)
	if emrErr != nil {
		return nil, emrErr
	}

	access := &AccountAccess{EMRAvailable: emrOK}
	if needGlue {
		glueOK, err := client.CheckGlueAccess(ctx)
		if err != nil {
			return nil, err
		}
		access.GlueAvailable = glueOK
		if n, err := client.CountGlueDatabases(ctx); err == nil {
			access.GlueCatalogReachable = true
			access.GlueDatabases = n
		}
	}

	switch {
	case !emrOK:
		access.Message = "EMR cluster creation is not permitted. Check IAM permissions."
	case needGlue && !access.GlueCatalogReachable:
		access.Message = "EMR is available but the Glue Data Catalog is not reachable."
	case needGlue:
		access.Message = "EMR and the Glue Data Catalog are available."
	default:
		access.Message = "EMR is available."
	}

	return access, nil
}
