package compute

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/beamline/emrattach/internal/aws"
	"github.com/beamline/emrattach/internal/config"
)

const (
	DefaultReleaseLabel  = "emr-5.28.0"
	DefaultSparkLogLevel = "INFO"

	// Flag defaults for a parameter set that leaves them out. Without
	// keep-alive a cluster with no steps shuts down after bootstrap.
	DefaultVisibleToAllUsers    = true
	DefaultKeepAliveWhenNoSteps = true
	DefaultTerminationProtected = false
)

// Manager turns a parameter-set and size selection into a running cluster
// request.
type Manager struct {
	Cluster aws.ClusterAPI
	Logger  *slog.Logger
}

// New creates a Manager for the given cluster API.
func New(cluster aws.ClusterAPI, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{Cluster: cluster, Logger: logger}
}

// ClusterName is the name given to clusters created for a selection.
func ClusterName(paramSet, size string) string {
	return fmt.Sprintf("Spark-%s-Size-%s", paramSet, size)
}

// Launch loads the selection from configPath, validates it and requests a
// new cluster. It returns the cluster id.
func (m *Manager) Launch(ctx context.Context, size, paramSet, configPath string) (string, error) {
	params, err := config.Load(ctx, configPath, paramSet, size)
	if err != nil {
		return "", err
	}
	if err := params.Validate(); err != nil {
		return "", &config.Error{Path: configPath, Err: err}
	}

	spec := SpecFromParams(ClusterName(paramSet, size), params)
	m.Logger.Info("creating EMR cluster",
		"name", spec.Name,
		"release", spec.ReleaseLabel,
		"master", spec.Master.InstanceType,
		"core", spec.Core.Demand(),
		"task", spec.Task.Demand(),
	)

	result, err := m.Cluster.CreateCluster(ctx, spec)
	if err != nil {
		return "", err
	}
	return result.ClusterID, nil
}

// SpecFromParams maps a resolved selection onto a ClusterSpec.
func SpecFromParams(name string, p *config.Params) aws.ClusterSpec {
	c := p.Cluster

	spec := aws.ClusterSpec{
		Name:         name,
		LogURI:       c.LoggingS3Path,
		ReleaseLabel: c.ReleaseLabel,
		SubnetID:     c.SubnetID,
		JobFlowRole:  c.EMREC2Role,
		ServiceRole:  c.EMRRole,

		VisibleToAllUsers:    boolOr(c.VisibleToAllUsers, DefaultVisibleToAllUsers),
		KeepAliveWhenNoSteps: boolOr(c.KeepClusterAliveWhenNoSteps, DefaultKeepAliveWhenNoSteps),
		TerminationProtected: boolOr(c.TerminationProtected, DefaultTerminationProtected),

		EBSRootVolumeSize: p.EBSRootVolumeSize(),
		StepConcurrency:   p.StepConcurrency(),

		KeyPairName:                    c.KeyPairName,
		MasterSecurityGroup:            c.SecurityGroupMaster,
		AdditionalMasterSecurityGroups: c.SecurityGroupsMasterAdditional,
		SlaveSecurityGroup:             c.SecurityGroupSlave,
		AdditionalSlaveSecurityGroups:  c.SecurityGroupsSlaveAdditional,
		ServiceAccessSecurityGroup:     c.SecurityGroupServiceAccess,

		SparkLogLevel:              c.SparkLogLevel,
		Python3:                    c.Python3,
		SparkGlueCatalog:           c.SparkGlueCatalog,
		HiveGlueCatalog:            c.HiveGlueCatalog,
		PrestoGlueCatalog:          c.PrestoGlueCatalog,
		MaximizeResourceAllocation: c.MaximizeResourceAllocation,
		SparkJars:                  c.SparkJarsPath,
		SparkDefaults:              properties(c.SparkDefaults),

		Applications:   c.Applications,
		BootstrapPaths: c.BootstrapsPaths,
		Debugging:      c.Debugging,

		Master: fleet(p.Size.Role(config.RoleMaster)),
		Core:   fleet(p.Size.Role(config.RoleCore)),
		Task:   fleet(p.Size.Role(config.RoleTask)),

		Tags: properties(c.Tags),
	}

	if spec.ReleaseLabel == "" {
		spec.ReleaseLabel = DefaultReleaseLabel
	}
	if spec.SparkLogLevel == "" {
		spec.SparkLogLevel = DefaultSparkLogLevel
	}
	return spec
}

func boolOr(v *bool, def bool) *bool {
	if v != nil {
		return v
	}
	return &def
}

func fleet(r config.RoleProfile) aws.FleetSpec {
	return aws.FleetSpec{
		InstanceType:       r.InstanceType,
		OnDemandCount:      r.OnDemand,
		SpotCount:          r.Spot,
		EBSSizeGB:          r.EBSSizeGB,
		BidPercentage:      r.SpotBidPercentage,
		SpotTimeoutMinutes: r.SpotTimeoutMinutes,
		FallbackToOnDemand: r.SpotTimeoutToOnDemand,
	}
}

// properties keeps nil as nil so absent mappings stay absent in the request.
func properties(pairs config.Pairs) []aws.Property {
	if pairs == nil {
		return nil
	}
	out := make([]aws.Property, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, aws.Property{Key: p.Key, Value: p.Value})
	}
	return out
}
