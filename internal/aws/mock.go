package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/emr/types"
)

// MockClient is a test double for the Client interface.
type MockClient struct {
	Identity       *CallerIdentity
	IdentityErr    error
	EMRAccess      bool
	EMRErr         error
	GlueAccess     bool
	GlueErr        error
	GlueDatabases  int
	GlueCatalogErr error
	Objects        map[string][]byte // "bucket/key" → data
	GetObjectErr   error
}

// NewMockClient creates a new MockClient with default values.
func NewMockClient() *MockClient {
	return &MockClient{
		Identity: &CallerIdentity{
			Account: "123456789012",
			ARN:     "arn:aws:iam::123456789012:user/test",
			UserID:  "AIDA12345",
		},
		Objects: make(map[string][]byte),
	}
}

func (m *MockClient) VerifyCredentials(_ context.Context) (*CallerIdentity, error) {
	return m.Identity, m.IdentityErr
}

func (m *MockClient) CheckEMRAccess(_ context.Context) (bool, error) {
	return m.EMRAccess, m.EMRErr
}

func (m *MockClient) CheckGlueAccess(_ context.Context) (bool, error) {
	return m.GlueAccess, m.GlueErr
}

func (m *MockClient) CountGlueDatabases(_ context.Context) (int, error) {
	return m.GlueDatabases, m.GlueCatalogErr
}

func (m *MockClient) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	if m.GetObjectErr != nil {
		return nil, m.GetObjectErr
	}
	data, ok := m.Objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("getting s3://%s/%s: not found", bucket, key)
	}
	return data, nil
}

// MockCluster is a scripted test double for ClusterAPI. States are returned
// in order, the last one repeating; StateErrs, when set, are returned for
// the matching call before the state script advances.
type MockCluster struct {
	CreateResult *CreateResult
	CreateErr    error
	States       []ClusterStatus
	StateErrs    []error
	Info         *ClusterInfo
	DescribeErr  error
	Instances    [][]Instance
	ListErr      error
	TerminateErr error

	// Track calls
	CreatedSpecs  []ClusterSpec
	StateCalls    int
	ListCalls     int
	ListedGroups  []types.InstanceGroupType
	TerminatedIDs []string
	stateIdx      int
	instanceIdx   int
}

func (m *MockCluster) CreateCluster(_ context.Context, spec ClusterSpec) (*CreateResult, error) {
	m.CreatedSpecs = append(m.CreatedSpecs, spec)
	return m.CreateResult, m.CreateErr
}

func (m *MockCluster) ClusterState(_ context.Context, clusterID string) (*ClusterStatus, error) {
	m.StateCalls++
	if i := m.StateCalls - 1; i < len(m.StateErrs) && m.StateErrs[i] != nil {
		return nil, &ProviderError{Op: "describing EMR cluster", ClusterID: clusterID, Err: m.StateErrs[i]}
	}
	if len(m.States) == 0 {
		return &ClusterStatus{State: types.ClusterStateWaiting}, nil
	}
	status := m.States[m.stateIdx]
	if m.stateIdx < len(m.States)-1 {
		m.stateIdx++
	}
	return &status, nil
}

func (m *MockCluster) DescribeCluster(_ context.Context, clusterID string) (*ClusterInfo, error) {
	if m.DescribeErr != nil {
		return nil, m.DescribeErr
	}
	if m.Info != nil {
		return m.Info, nil
	}
	return &ClusterInfo{ID: clusterID}, nil
}

func (m *MockCluster) ListInstances(_ context.Context, _ string, groups ...types.InstanceGroupType) ([]Instance, error) {
	m.ListCalls++
	m.ListedGroups = groups
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	if len(m.Instances) == 0 {
		return []Instance{}, nil
	}
	instances := m.Instances[m.instanceIdx]
	if m.instanceIdx < len(m.Instances)-1 {
		m.instanceIdx++
	}
	return instances, nil
}

func (m *MockCluster) TerminateCluster(_ context.Context, clusterID string) error {
	m.TerminatedIDs = append(m.TerminatedIDs, clusterID)
	return m.TerminateErr
}
