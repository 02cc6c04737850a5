package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath     = "emr.yaml"
	DefaultParamSet = "default"

	defaultEBSRootVolumeSize = 15
	defaultStepConcurrency   = 5
)

var (
	ErrMissingSpec      = errors.New("missing top-level spec key")
	ErrParamSetNotFound = errors.New("parameter set not found")
	ErrSizeNotFound     = errors.New("cluster size not found")
)

// Error is returned for any problem reading or resolving the parameter file.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Document is the parameter file layout.
type Document struct {
	Spec *Spec `yaml:"spec"`
}

// Spec holds the two lookup tables of the parameter file.
type Spec struct {
	// ClusterSize maps parameter-set name → size name → sizing.
	ClusterSize map[string]map[string]SizeProfile `yaml:"clusterSize"`
	// ClusterParamSet maps parameter-set name → cluster-wide settings.
	ClusterParamSet map[string]ParamSet `yaml:"clusterParamSet"`
}

// Params is a resolved (parameter set, size) selection.
type Params struct {
	ParamSetName string
	SizeName     string
	Size         SizeProfile
	Cluster      ParamSet
}

// EBSRootVolumeSize returns the root volume size in GiB, 15 when unset.
func (p *Params) EBSRootVolumeSize() int32 {
	if p.Cluster.EBSRootVolumeSize == nil {
		return defaultEBSRootVolumeSize
	}
	return *p.Cluster.EBSRootVolumeSize
}

// StepConcurrency returns the step concurrency level, 5 when unset.
func (p *Params) StepConcurrency() int32 {
	if p.Cluster.NumConcurrentSteps == nil {
		return defaultStepConcurrency
	}
	return *p.Cluster.NumConcurrentSteps
}

// Load reads the parameter file at path and selects the given parameter set
// and size. String values holding secret references are resolved.
func Load(ctx context.Context, path, paramSet, size string) (*Params, error) {
	spec, err := readSpec(path)
	if err != nil {
		return nil, err
	}

	sizes, ok := spec.ClusterSize[paramSet]
	if !ok {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: clusterSize.%s", ErrParamSetNotFound, paramSet)}
	}
	profile, ok := sizes[size]
	if !ok {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: clusterSize.%s.%s", ErrSizeNotFound, paramSet, size)}
	}

	cluster, err := selectParamSet(ctx, path, spec, paramSet)
	if err != nil {
		return nil, err
	}

	return &Params{
		ParamSetName: paramSet,
		SizeName:     size,
		Size:         profile,
		Cluster:      *cluster,
	}, nil
}

// LoadParamSet reads only the cluster-wide settings of a parameter set.
func LoadParamSet(ctx context.Context, path, paramSet string) (*ParamSet, error) {
	spec, err := readSpec(path)
	if err != nil {
		return nil, err
	}
	return selectParamSet(ctx, path, spec, paramSet)
}

// Sizes lists the size names defined for a parameter set, sorted.
func Sizes(path, paramSet string) ([]string, error) {
	sizes, err := SizeProfiles(path, paramSet)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(sizes))
	for name := range sizes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// SizeProfiles returns every size of a parameter set keyed by name.
func SizeProfiles(path, paramSet string) (map[string]SizeProfile, error) {
	spec, err := readSpec(path)
	if err != nil {
		return nil, err
	}
	sizes, ok := spec.ClusterSize[paramSet]
	if !ok {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: clusterSize.%s", ErrParamSetNotFound, paramSet)}
	}
	return sizes, nil
}

func readSpec(path string) (*Spec, error) {
	if path == "" {
		path = DefaultPath
	}
	path = ExpandHome(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("reading config: %w", err)}
	}

	doc := &Document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("parsing config: %w", err)}
	}
	if doc.Spec == nil {
		return nil, &Error{Path: path, Err: ErrMissingSpec}
	}
	return doc.Spec, nil
}

func selectParamSet(ctx context.Context, path string, spec *Spec, name string) (*ParamSet, error) {
	ps, ok := spec.ClusterParamSet[name]
	if !ok {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: clusterParamSet.%s", ErrParamSetNotFound, name)}
	}
	if err := ps.resolveSecrets(ctx); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("resolving secrets: %w", err)}
	}
	return &ps, nil
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

// ResolveValue resolves a secret reference of the form ${ENV:NAME},
// ${VAULT:path#key} or ${AWS_SM:secret-id[#key]}. Plain values pass through.
func ResolveValue(ctx context.Context, val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ctx, ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ctx, ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
