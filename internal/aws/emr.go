package aws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"
)

// EMRAPI is the subset of *emr.Client used here.
type EMRAPI interface {
	RunJobFlow(ctx context.Context, params *emr.RunJobFlowInput, optFns ...func(*emr.Options)) (*emr.RunJobFlowOutput, error)
	DescribeCluster(ctx context.Context, params *emr.DescribeClusterInput, optFns ...func(*emr.Options)) (*emr.DescribeClusterOutput, error)
	ListInstances(ctx context.Context, params *emr.ListInstancesInput, optFns ...func(*emr.Options)) (*emr.ListInstancesOutput, error)
	TerminateJobFlows(ctx context.Context, params *emr.TerminateJobFlowsInput, optFns ...func(*emr.Options)) (*emr.TerminateJobFlowsOutput, error)
}

// EMRClient implements ClusterAPI for Amazon EMR. Each method is a single
// API call; retries beyond the SDK's own retryer are left to callers.
type EMRClient struct {
	api    EMRAPI
	logger *slog.Logger

	mu          sync.Mutex
	collections map[string]types.InstanceCollectionType
}

// NewEMRClient creates an EMR client from a loaded AWS config.
func NewEMRClient(cfg aws.Config, logger *slog.Logger) *EMRClient {
	return NewEMRClientWithAPI(emr.NewFromConfig(cfg), logger)
}

// NewEMRClientWithAPI wraps an existing EMR API implementation.
func NewEMRClientWithAPI(api EMRAPI, logger *slog.Logger) *EMRClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &EMRClient{api: api, logger: logger, collections: make(map[string]types.InstanceCollectionType)}
}

// CreateCluster builds the RunJobFlow request for spec and submits it.
func (c *EMRClient) CreateCluster(ctx context.Context, spec ClusterSpec) (*CreateResult, error) {
	input := BuildRunJobFlowInput(spec)
	logJSON(c.logger, "run job flow request", input)

	out, err := c.api.RunJobFlow(ctx, input)
	if err != nil {
		return nil, &ProviderError{Op: "creating EMR cluster", Err: err}
	}
	logJSON(c.logger, "run job flow response", out)

	result := &CreateResult{
		ClusterID:  aws.ToString(out.JobFlowId),
		ClusterARN: aws.ToString(out.ClusterArn),
	}
	c.logger.Info("EMR cluster requested", "cluster_id", result.ClusterID, "name", spec.Name)
	return result, nil
}

// ClusterState returns the current state of a cluster.
func (c *EMRClient) ClusterState(ctx context.Context, clusterID string) (*ClusterStatus, error) {
	cluster, err := c.describe(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	return toStatus(cluster.Status), nil
}

// DescribeCluster returns a summary of a cluster.
func (c *EMRClient) DescribeCluster(ctx context.Context, clusterID string) (*ClusterInfo, error) {
	cluster, err := c.describe(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	info := &ClusterInfo{
		ID:              aws.ToString(cluster.Id),
		Name:            aws.ToString(cluster.Name),
		Status:          *toStatus(cluster.Status),
		ReleaseLabel:    aws.ToString(cluster.ReleaseLabel),
		MasterPublicDNS: aws.ToString(cluster.MasterPublicDnsName),
		CollectionType:  string(cluster.InstanceCollectionType),
	}
	for _, app := range cluster.Applications {
		info.Applications = append(info.Applications, aws.ToString(app.Name))
	}
	return info, nil
}

func (c *EMRClient) describe(ctx context.Context, clusterID string) (*types.Cluster, error) {
	out, err := c.api.DescribeCluster(ctx, &emr.DescribeClusterInput{
		ClusterId: aws.String(clusterID),
	})
	if err != nil {
		return nil, &ProviderError{Op: "describing EMR cluster", ClusterID: clusterID, Err: err}
	}
	logJSON(c.logger, "describe cluster response", out)
	if out.Cluster == nil {
		return &types.Cluster{Id: aws.String(clusterID)}, nil
	}
	return out.Cluster, nil
}

// ListInstances returns the instances of the given roles, MASTER when none
// are given. Instance-fleet clusters are filtered by fleet type, one listing
// per role, since the group filter only applies to instance groups. An empty
// slice means nothing matched yet.
func (c *EMRClient) ListInstances(ctx context.Context, clusterID string, groups ...types.InstanceGroupType) ([]Instance, error) {
	if len(groups) == 0 {
		groups = []types.InstanceGroupType{types.InstanceGroupTypeMaster}
	}

	fleets, err := c.usesFleets(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	if !fleets {
		return c.listInstances(ctx, &emr.ListInstancesInput{
			ClusterId:          aws.String(clusterID),
			InstanceGroupTypes: groups,
		})
	}

	instances := []Instance{}
	for _, g := range groups {
		found, err := c.listInstances(ctx, &emr.ListInstancesInput{
			ClusterId:         aws.String(clusterID),
			InstanceFleetType: types.InstanceFleetType(g),
		})
		if err != nil {
			return nil, err
		}
		instances = append(instances, found...)
	}
	return instances, nil
}

// usesFleets reports whether a cluster was built from instance fleets. The
// collection type never changes, so it is looked up once per cluster.
func (c *EMRClient) usesFleets(ctx context.Context, clusterID string) (bool, error) {
	c.mu.Lock()
	collection, ok := c.collections[clusterID]
	c.mu.Unlock()
	if !ok {
		cluster, err := c.describe(ctx, clusterID)
		if err != nil {
			return false, err
		}
		collection = cluster.InstanceCollectionType
		c.mu.Lock()
		c.collections[clusterID] = collection
		c.mu.Unlock()
	}
	return collection == types.InstanceCollectionTypeInstanceFleet, nil
}

func (c *EMRClient) listInstances(ctx context.Context, input *emr.ListInstancesInput) ([]Instance, error) {
	clusterID := aws.ToString(input.ClusterId)
	paginator := emr.NewListInstancesPaginator(c.api, input)

	instances := []Instance{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &ProviderError{Op: "listing EMR instances", ClusterID: clusterID, Err: err}
		}
		logJSON(c.logger, "list instances response", page)

		for _, inst := range page.Instances {
			instance := Instance{
				ID:            aws.ToString(inst.Id),
				EC2InstanceID: aws.ToString(inst.Ec2InstanceId),
				PrivateIP:     aws.ToString(inst.PrivateIpAddress),
				PrivateDNS:    aws.ToString(inst.PrivateDnsName),
				PublicDNS:     aws.ToString(inst.PublicDnsName),
			}
			if inst.Status != nil {
				instance.State = string(inst.Status.State)
			}
			instances = append(instances, instance)
		}
	}
	return instances, nil
}

// TerminateCluster requests termination and returns without waiting.
func (c *EMRClient) TerminateCluster(ctx context.Context, clusterID string) error {
	_, err := c.api.TerminateJobFlows(ctx, &emr.TerminateJobFlowsInput{
		JobFlowIds: []string{clusterID},
	})
	if err != nil {
		return &ProviderError{Op: "terminating EMR cluster", ClusterID: clusterID, Err: err}
	}
	c.logger.Info("EMR cluster termination requested", "cluster_id", clusterID)
	return nil
}

func toStatus(s *types.ClusterStatus) *ClusterStatus {
	if s == nil {
		return &ClusterStatus{}
	}
	status := &ClusterStatus{State: s.State}
	if s.StateChangeReason != nil {
		status.Code = string(s.StateChangeReason.Code)
		status.Reason = aws.ToString(s.StateChangeReason.Message)
	}
	return status
}

// logJSON writes v as indented JSON at debug level.
func logJSON(logger *slog.Logger, msg string, v any) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Debug(msg, "error", err)
		return
	}
	logger.Debug(msg, "payload", string(data))
}
