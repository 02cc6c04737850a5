package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/beamline/emrattach/internal/config"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "~/.emrattach/state.yaml"

// State records the cluster the notebook environment was last attached to.
type State struct {
	ClusterID     string    `yaml:"cluster_id,omitempty"`
	ClusterName   string    `yaml:"cluster_name,omitempty"`
	MasterAddress string    `yaml:"master_address,omitempty"`
	ConfigPath    string    `yaml:"config_path,omitempty"`
	ParamSet      string    `yaml:"param_set,omitempty"`
	Size          string    `yaml:"size,omitempty"`
	Created       bool      `yaml:"created,omitempty"`
	AttachedAt    time.Time `yaml:"attached_at,omitempty"`
	LastUpdated   time.Time `yaml:"last_updated"`
}

// Load reads the state from disk. A missing file yields an empty state.
func Load(path string) (*State, error) {
	if path == "" {
		path = DefaultPath
	}
	path = config.ExpandHome(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	s := &State{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	return s, nil
}

// Save writes the state to disk.
func (s *State) Save(path string) error {
	if path == "" {
		path = DefaultPath
	}
	path = config.ExpandHome(path)

	s.LastUpdated = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Clear removes the state file.
func Clear(path string) error {
	if path == "" {
		path = DefaultPath
	}
	err := os.Remove(config.ExpandHome(path))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// HasCluster reports whether a cluster has been recorded.
func (s *State) HasCluster() bool {
	return s.ClusterID != ""
}
