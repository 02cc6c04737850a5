package aws

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"
)

const (
	glueHiveClientFactory = "com.amazonaws.glue.catalog.metastore.AWSGlueDataCatalogHiveClientFactory"
	pysparkPython         = "/usr/bin/python3"
	ebsVolumeType         = "gp2"

	DebugStepName = "Setup Hadoop Debugging"
)

// FleetSpec sizes one instance fleet.
type FleetSpec struct {
	InstanceType  string
	OnDemandCount int32
	SpotCount     int32
	EBSSizeGB     *int32
	// BidPercentage and SpotTimeoutMinutes are only sent when SpotCount > 0.
	BidPercentage      *float64
	SpotTimeoutMinutes *int32
	FallbackToOnDemand bool
}

// Demand is the total capacity requested for the fleet.
func (f FleetSpec) Demand() int32 { return f.OnDemandCount + f.SpotCount }

// Property is an ordered key/value pair.
type Property struct {
	Key   string
	Value string
}

// ClusterSpec is everything needed to build a RunJobFlow request.
// Empty strings and nil slices are left out of the request.
type ClusterSpec struct {
	Name         string
	LogURI       string
	ReleaseLabel string
	SubnetID     string
	// JobFlowRole is the EC2 instance profile, ServiceRole the EMR service role.
	JobFlowRole string
	ServiceRole string

	VisibleToAllUsers    *bool
	KeepAliveWhenNoSteps *bool
	TerminationProtected *bool

	EBSRootVolumeSize int32
	StepConcurrency   int32

	KeyPairName                    string
	MasterSecurityGroup            string
	AdditionalMasterSecurityGroups []string
	SlaveSecurityGroup             string
	AdditionalSlaveSecurityGroups  []string
	ServiceAccessSecurityGroup     string

	SparkLogLevel              string
	Python3                    bool
	SparkGlueCatalog           bool
	HiveGlueCatalog            bool
	PrestoGlueCatalog          bool
	MaximizeResourceAllocation bool
	SparkJars                  []string
	SparkDefaults              []Property

	Applications   []string
	BootstrapPaths []string

	Debugging bool
	Steps     []types.StepConfig

	Master FleetSpec
	Core   FleetSpec
	Task   FleetSpec

	Tags []Property
}

// BuildRunJobFlowInput turns a ClusterSpec into an EMR RunJobFlow request.
// Values are passed through unchecked; the EMR API rejects bad ones.
func BuildRunJobFlowInput(spec ClusterSpec) *emr.RunJobFlowInput {
	input := &emr.RunJobFlowInput{
		Name:                 aws.String(spec.Name),
		LogUri:               aws.String(spec.LogURI),
		ReleaseLabel:         aws.String(spec.ReleaseLabel),
		VisibleToAllUsers:    spec.VisibleToAllUsers,
		JobFlowRole:          aws.String(spec.JobFlowRole),
		ServiceRole:          aws.String(spec.ServiceRole),
		EbsRootVolumeSize:    aws.Int32(spec.EBSRootVolumeSize),
		StepConcurrencyLevel: aws.Int32(spec.StepConcurrency),
		Instances: &types.JobFlowInstancesConfig{
			KeepJobFlowAliveWhenNoSteps: spec.KeepAliveWhenNoSteps,
			TerminationProtected:        spec.TerminationProtected,
			Ec2SubnetId:                 aws.String(spec.SubnetID),
		},
	}

	inst := input.Instances
	if spec.KeyPairName != "" {
		inst.Ec2KeyName = aws.String(spec.KeyPairName)
	}
	if spec.MasterSecurityGroup != "" {
		inst.EmrManagedMasterSecurityGroup = aws.String(spec.MasterSecurityGroup)
	}
	if spec.AdditionalMasterSecurityGroups != nil {
		inst.AdditionalMasterSecurityGroups = spec.AdditionalMasterSecurityGroups
	}
	if spec.SlaveSecurityGroup != "" {
		inst.EmrManagedSlaveSecurityGroup = aws.String(spec.SlaveSecurityGroup)
	}
	if spec.AdditionalSlaveSecurityGroups != nil {
		inst.AdditionalSlaveSecurityGroups = spec.AdditionalSlaveSecurityGroups
	}
	if spec.ServiceAccessSecurityGroup != "" {
		inst.ServiceAccessSecurityGroup = aws.String(spec.ServiceAccessSecurityGroup)
	}

	input.Configurations = buildConfigurations(spec)

	if len(spec.Applications) > 0 {
		input.Applications = make([]types.Application, 0, len(spec.Applications))
		for _, name := range spec.Applications {
			input.Applications = append(input.Applications, types.Application{Name: aws.String(name)})
		}
	}

	if len(spec.BootstrapPaths) > 0 {
		input.BootstrapActions = make([]types.BootstrapActionConfig, 0, len(spec.BootstrapPaths))
		for _, path := range spec.BootstrapPaths {
			input.BootstrapActions = append(input.BootstrapActions, types.BootstrapActionConfig{
				Name:                  aws.String(path),
				ScriptBootstrapAction: &types.ScriptBootstrapActionConfig{Path: aws.String(path)},
			})
		}
	}

	if spec.Debugging || len(spec.Steps) > 0 {
		input.Steps = make([]types.StepConfig, 0, len(spec.Steps)+1)
		if spec.Debugging {
			input.Steps = append(input.Steps, DebugStep())
		}
		input.Steps = append(input.Steps, spec.Steps...)
	}

	inst.InstanceFleets = append(inst.InstanceFleets, buildFleet(types.InstanceFleetTypeMaster, spec.Master))
	if spec.Core.Demand() > 0 {
		inst.InstanceFleets = append(inst.InstanceFleets, buildFleet(types.InstanceFleetTypeCore, spec.Core))
	}
	if spec.Task.Demand() > 0 {
		inst.InstanceFleets = append(inst.InstanceFleets, buildFleet(types.InstanceFleetTypeTask, spec.Task))
	}

	if spec.Tags != nil {
		input.Tags = make([]types.Tag, 0, len(spec.Tags))
		for _, tag := range spec.Tags {
			input.Tags = append(input.Tags, types.Tag{Key: aws.String(tag.Key), Value: aws.String(tag.Value)})
		}
	}

	return input
}

// DebugStep is the step that enables the EMR debugging tool.
func DebugStep() types.StepConfig {
	return types.StepConfig{
		Name:            aws.String(DebugStepName),
		ActionOnFailure: types.ActionOnFailureTerminateCluster,
		HadoopJarStep: &types.HadoopJarStepConfig{
			Jar:  aws.String("command-runner.jar"),
			Args: []string{"state-pusher-script"},
		},
	}
}

func buildConfigurations(spec ClusterSpec) []types.Configuration {
	configs := []types.Configuration{
		{
			Classification: aws.String("spark-log4j"),
			Properties: map[string]string{
				"log4j.rootCategory": spec.SparkLogLevel + ", console",
			},
		},
	}

	if spec.Python3 {
		configs = append(configs, types.Configuration{
			Classification: aws.String("spark-env"),
			Properties:     map[string]string{},
			Configurations: []types.Configuration{
				{
					Classification: aws.String("export"),
					Properties:     map[string]string{"PYSPARK_PYTHON": pysparkPython},
				},
			},
		})
	}
	if spec.SparkGlueCatalog {
		configs = append(configs, types.Configuration{
			Classification: aws.String("spark-hive-site"),
			Properties:     map[string]string{"hive.metastore.client.factory.class": glueHiveClientFactory},
		})
	}
	if spec.HiveGlueCatalog {
		configs = append(configs, types.Configuration{
			Classification: aws.String("hive-site"),
			Properties:     map[string]string{"hive.metastore.client.factory.class": glueHiveClientFactory},
		})
	}
	if spec.PrestoGlueCatalog {
		configs = append(configs, types.Configuration{
			Classification: aws.String("presto-connector-hive"),
			Properties:     map[string]string{"hive.metastore.glue.datacatalog.enabled": "true"},
		})
	}
	if spec.MaximizeResourceAllocation {
		configs = append(configs, types.Configuration{
			Classification: aws.String("spark"),
			Properties:     map[string]string{"maximizeResourceAllocation": "true"},
		})
	}

	if spec.SparkJars != nil || spec.SparkDefaults != nil {
		props := make(map[string]string, len(spec.SparkDefaults)+1)
		if spec.SparkJars != nil {
			props["spark.jars"] = strings.Join(spec.SparkJars, ",")
		}
		for _, p := range spec.SparkDefaults {
			props[p.Key] = p.Value
		}
		configs = append(configs, types.Configuration{
			Classification: aws.String("spark-defaults"),
			Properties:     props,
		})
	}

	return configs
}

func buildFleet(fleetType types.InstanceFleetType, f FleetSpec) types.InstanceFleetConfig {
	typeConfig := types.InstanceTypeConfig{
		InstanceType:     aws.String(f.InstanceType),
		WeightedCapacity: aws.Int32(1),
		EbsConfiguration: &types.EbsConfiguration{
			EbsBlockDeviceConfigs: []types.EbsBlockDeviceConfig{
				{
					VolumeSpecification: &types.VolumeSpecification{
						SizeInGB:   f.EBSSizeGB,
						VolumeType: aws.String(ebsVolumeType),
					},
					VolumesPerInstance: aws.Int32(1),
				},
			},
			EbsOptimized: aws.Bool(true),
		},
	}

	fleet := types.InstanceFleetConfig{
		Name:                   aws.String(string(fleetType)),
		InstanceFleetType:      fleetType,
		TargetOnDemandCapacity: aws.Int32(f.OnDemandCount),
		TargetSpotCapacity:     aws.Int32(f.SpotCount),
	}

	if f.SpotCount > 0 {
		typeConfig.BidPriceAsPercentageOfOnDemandPrice = f.BidPercentage
		fleet.LaunchSpecifications = &types.InstanceFleetProvisioningSpecifications{
			SpotSpecification: &types.SpotProvisioningSpecification{
				TimeoutDurationMinutes: f.SpotTimeoutMinutes,
				TimeoutAction:          spotTimeoutAction(f.FallbackToOnDemand),
			},
		}
	}

	fleet.InstanceTypeConfigs = []types.InstanceTypeConfig{typeConfig}
	return fleet
}

func spotTimeoutAction(fallbackToOnDemand bool) types.SpotProvisioningTimeoutAction {
	if fallbackToOnDemand {
		return types.SpotProvisioningTimeoutActionSwitchToOnDemand
	}
	return types.SpotProvisioningTimeoutActionTerminateCluster
}
