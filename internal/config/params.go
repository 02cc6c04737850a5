package config

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Role identifies an instance fleet role.
type Role string

const (
	RoleMaster Role = "master"
	RoleCore   Role = "core"
	RoleTask   Role = "task"
)

// Roles lists every fleet role in request order.
var Roles = []Role{RoleMaster, RoleCore, RoleTask}

// SizeProfile is one t-shirt size of a parameter set. Field names follow
// the flat keys of the parameter file.
type SizeProfile struct {
	InstanceTypeMaster string `yaml:"instance_type_master"`
	InstanceTypeCore   string `yaml:"instance_type_core"`
	InstanceTypeTask   string `yaml:"instance_type_task"`

	InstanceNumOnDemandMaster *int32 `yaml:"instance_num_on_demand_master"`
	InstanceNumOnDemandCore   *int32 `yaml:"instance_num_on_demand_core"`
	InstanceNumOnDemandTask   *int32 `yaml:"instance_num_on_demand_task"`

	InstanceNumSpotMaster *int32 `yaml:"instance_num_spot_master"`
	InstanceNumSpotCore   *int32 `yaml:"instance_num_spot_core"`
	InstanceNumSpotTask   *int32 `yaml:"instance_num_spot_task"`

	InstanceEBSSizeMaster *int32 `yaml:"instance_ebs_size_master"`
	InstanceEBSSizeCore   *int32 `yaml:"instance_ebs_size_core"`
	InstanceEBSSizeTask   *int32 `yaml:"instance_ebs_size_task"`

	SpotBidPercentageOfOnDemandMaster *float64 `yaml:"spot_bid_percentage_of_on_demand_master"`
	SpotBidPercentageOfOnDemandCore   *float64 `yaml:"spot_bid_percentage_of_on_demand_core"`
	SpotBidPercentageOfOnDemandTask   *float64 `yaml:"spot_bid_percentage_of_on_demand_task"`

	SpotProvisioningTimeoutMaster *int32 `yaml:"spot_provisioning_timeout_master"`
	SpotProvisioningTimeoutCore   *int32 `yaml:"spot_provisioning_timeout_core"`
	SpotProvisioningTimeoutTask   *int32 `yaml:"spot_provisioning_timeout_task"`

	SpotTimeoutToOnDemandMaster bool `yaml:"spot_timeout_to_on_demand_master"`
	SpotTimeoutToOnDemandCore   bool `yaml:"spot_timeout_to_on_demand_core"`
	SpotTimeoutToOnDemandTask   bool `yaml:"spot_timeout_to_on_demand_task"`
}

// RoleProfile is the sizing of a single fleet role.
type RoleProfile struct {
	InstanceType       string
	OnDemand           int32
	Spot               int32
	EBSSizeGB          *int32
	SpotBidPercentage  *float64
	SpotTimeoutMinutes *int32
	// SpotTimeoutToOnDemand switches to on-demand capacity when spot
	// provisioning times out instead of terminating the cluster.
	SpotTimeoutToOnDemand bool
}

// Demand is the total number of instances requested for the role.
func (r RoleProfile) Demand() int32 { return r.OnDemand + r.Spot }

// Role returns the sizing of the given role. Absent counts read as zero.
func (s SizeProfile) Role(role Role) RoleProfile {
	switch role {
	case RoleMaster:
		return RoleProfile{
			InstanceType:          s.InstanceTypeMaster,
			OnDemand:              deref(s.InstanceNumOnDemandMaster),
			Spot:                  deref(s.InstanceNumSpotMaster),
			EBSSizeGB:             s.InstanceEBSSizeMaster,
			SpotBidPercentage:     s.SpotBidPercentageOfOnDemandMaster,
			SpotTimeoutMinutes:    s.SpotProvisioningTimeoutMaster,
			SpotTimeoutToOnDemand: s.SpotTimeoutToOnDemandMaster,
		}
	case RoleCore:
		return RoleProfile{
			InstanceType:          s.InstanceTypeCore,
			OnDemand:              deref(s.InstanceNumOnDemandCore),
			Spot:                  deref(s.InstanceNumSpotCore),
			EBSSizeGB:             s.InstanceEBSSizeCore,
			SpotBidPercentage:     s.SpotBidPercentageOfOnDemandCore,
			SpotTimeoutMinutes:    s.SpotProvisioningTimeoutCore,
			SpotTimeoutToOnDemand: s.SpotTimeoutToOnDemandCore,
		}
	case RoleTask:
		return RoleProfile{
			InstanceType:          s.InstanceTypeTask,
			OnDemand:              deref(s.InstanceNumOnDemandTask),
			Spot:                  deref(s.InstanceNumSpotTask),
			EBSSizeGB:             s.InstanceEBSSizeTask,
			SpotBidPercentage:     s.SpotBidPercentageOfOnDemandTask,
			SpotTimeoutMinutes:    s.SpotProvisioningTimeoutTask,
			SpotTimeoutToOnDemand: s.SpotTimeoutToOnDemandTask,
		}
	default:
		return RoleProfile{}
	}
}

// ParamSet holds the cluster-wide settings of a parameter set.
type ParamSet struct {
	LoggingS3Path string `yaml:"logging_s3_path"`
	ReleaseLabel  string `yaml:"release_label,omitempty"`
	SubnetID      string `yaml:"subnet_id"`
	EMREC2Role    string `yaml:"emr_ec2_role"`
	EMRRole       string `yaml:"emr_role"`

	SparkGlueCatalog  bool `yaml:"spark_glue_catalog"`
	HiveGlueCatalog   bool `yaml:"hive_glue_catalog"`
	PrestoGlueCatalog bool `yaml:"presto_glue_catalog"`
	Python3           bool `yaml:"python3"`
	Debugging         bool `yaml:"debugging"`

	Applications    []string `yaml:"applications"`
	BootstrapsPaths []string `yaml:"bootstraps_paths"`

	VisibleToAllUsers *bool  `yaml:"visible_to_all_users"`
	KeyPairName       string `yaml:"key_pair_name"`

	SecurityGroupMaster            string   `yaml:"security_group_master"`
	SecurityGroupsMasterAdditional []string `yaml:"security_groups_master_additional"`
	SecurityGroupSlave             string   `yaml:"security_group_slave"`
	SecurityGroupsSlaveAdditional  []string `yaml:"security_groups_slave_additional"`
	SecurityGroupServiceAccess     string   `yaml:"security_group_service_access"`

	SparkLogLevel              string   `yaml:"spark_log_level"`
	SparkJarsPath              []string `yaml:"spark_jars_path"`
	SparkDefaults              Pairs    `yaml:"spark_defaults"`
	MaximizeResourceAllocation bool     `yaml:"maximize_resource_allocation"`

	KeepClusterAliveWhenNoSteps *bool `yaml:"keep_cluster_alive_when_no_steps"`
	TerminationProtected        *bool `yaml:"termination_protected"`

	Tags Pairs `yaml:"tags"`

	EBSRootVolumeSize  *int32 `yaml:"ebs_root_volume_size"`
	NumConcurrentSteps *int32 `yaml:"num_concurrent_steps"`
}

// UsesGlueCatalog reports whether any engine is pointed at the Glue Data Catalog.
func (p ParamSet) UsesGlueCatalog() bool {
	return p.SparkGlueCatalog || p.HiveGlueCatalog || p.PrestoGlueCatalog
}

func (p *ParamSet) resolveSecrets(ctx context.Context) error {
	fields := map[string]*string{
		"logging_s3_path":               &p.LoggingS3Path,
		"subnet_id":                     &p.SubnetID,
		"emr_ec2_role":                  &p.EMREC2Role,
		"emr_role":                      &p.EMRRole,
		"key_pair_name":                 &p.KeyPairName,
		"security_group_master":         &p.SecurityGroupMaster,
		"security_group_slave":          &p.SecurityGroupSlave,
		"security_group_service_access": &p.SecurityGroupServiceAccess,
	}
	for name, field := range fields {
		v, err := ResolveValue(ctx, *field)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field = v
	}
	if err := p.Tags.resolveSecrets(ctx); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	if err := p.SparkDefaults.resolveSecrets(ctx); err != nil {
		return fmt.Errorf("spark_defaults: %w", err)
	}
	return nil
}

// Pair is a single key/value entry of an ordered mapping.
type Pair struct {
	Key   string
	Value string
}

// Pairs is a string mapping that keeps document order.
type Pairs []Pair

// UnmarshalYAML decodes a mapping node, keeping key order.
func (p *Pairs) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", value.Line)
	}
	out := make(Pairs, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var pair Pair
		if err := value.Content[i].Decode(&pair.Key); err != nil {
			return err
		}
		if err := value.Content[i+1].Decode(&pair.Value); err != nil {
			return err
		}
		out = append(out, pair)
	}
	*p = out
	return nil
}

func (p Pairs) resolveSecrets(ctx context.Context) error {
	for i := range p {
		v, err := ResolveValue(ctx, p[i].Value)
		if err != nil {
			return fmt.Errorf("%s: %w", p[i].Key, err)
		}
		p[i].Value = v
	}
	return nil
}

// Validate checks the selection for values the EMR API is known to reject.
// It is optional; the request builder itself passes values through.
func (p *Params) Validate() error {
	var errs []error

	master := p.Size.Role(RoleMaster)
	if master.InstanceType == "" {
		errs = append(errs, errors.New("instance_type_master is required"))
	}
	if master.Demand() < 1 {
		errs = append(errs, errors.New("master fleet must request at least one instance"))
	}

	for _, role := range Roles {
		r := p.Size.Role(role)
		if r.OnDemand < 0 || r.Spot < 0 {
			errs = append(errs, fmt.Errorf("%s: instance counts must not be negative", role))
		}
		if r.Demand() > 0 && r.InstanceType == "" {
			errs = append(errs, fmt.Errorf("instance_type_%s is required when instances are requested", role))
		}
		if r.Spot > 0 {
			if r.SpotTimeoutMinutes == nil || *r.SpotTimeoutMinutes < 5 || *r.SpotTimeoutMinutes > 1440 {
				errs = append(errs, fmt.Errorf("spot_provisioning_timeout_%s must be between 5 and 1440 minutes", role))
			}
			if r.SpotBidPercentage != nil && (*r.SpotBidPercentage <= 0 || *r.SpotBidPercentage > 100) {
				errs = append(errs, fmt.Errorf("spot_bid_percentage_of_on_demand_%s must be within (0, 100]", role))
			}
		}
	}

	if p.Cluster.SubnetID == "" {
		errs = append(errs, errors.New("subnet_id is required"))
	}
	if p.Cluster.EMREC2Role == "" || p.Cluster.EMRRole == "" {
		errs = append(errs, errors.New("emr_ec2_role and emr_role are required"))
	}

	return errors.Join(errs...)
}

func deref(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
