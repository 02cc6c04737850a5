package attach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/beamline/emrattach/internal/compute"
	"github.com/beamline/emrattach/internal/state"
)

// Phase is a step of the attachment flow.
type Phase string

const (
	PhaseInitial      Phase = "initial"
	PhaseAttached     Phase = "attached"
	PhaseProvisioning Phase = "provisioning"
	PhaseReady        Phase = "ready"
	PhaseFailed       Phase = "failed"
)

// Options selects either an existing cluster or a size to provision.
type Options struct {
	ClusterID  string
	Size       string
	ParamSet   string
	ConfigPath string
}

// Validate requires exactly one of ClusterID and Size.
func (o Options) Validate() error {
	switch {
	case o.ClusterID == "" && o.Size == "":
		return &UsageError{Msg: "either a cluster id or a cluster size is required"}
	case o.ClusterID != "" && o.Size != "":
		return &UsageError{Msg: "a cluster id and a cluster size are mutually exclusive"}
	}
	return nil
}

// Launcher requests a new cluster for a selection and returns its id.
type Launcher interface {
	Launch(ctx context.Context, size, paramSet, configPath string) (string, error)
}

// ConfigWriter writes the notebook client configuration for a master
// address and returns the written path.
type ConfigWriter interface {
	Generate(ctx context.Context, masterAddress string) (string, error)
}

// Result describes how far a run got.
type Result struct {
	ClusterID     string
	MasterAddress string
	ConfigPath    string
	Created       bool
	Phase         Phase
	Attempts      int
}

// Flow attaches the notebook environment to a cluster, provisioning one
// first when asked to.
type Flow struct {
	Launcher Launcher
	Writer   ConfigWriter
	Poller   *Poller
	Logger   *slog.Logger

	// StatePath is where the attachment is recorded. Empty skips recording.
	StatePath string

	// OnPhase, when set, is called on every phase change.
	OnPhase func(phase Phase, clusterID string)
}

// Run executes the flow. The returned Result is non-nil whenever the options
// were valid, including on failure.
func (f *Flow) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res := &Result{Phase: PhaseInitial, ClusterID: opts.ClusterID}
	enter := func(phase Phase) {
		res.Phase = phase
		if f.OnPhase != nil {
			f.OnPhase(phase, res.ClusterID)
		}
	}
	fail := func(err error) (*Result, error) {
		enter(PhaseFailed)
		logger.Error("attach failed", "cluster_id", res.ClusterID, "error", err)
		return res, err
	}

	if opts.ClusterID != "" {
		status, err := f.Poller.State(ctx, opts.ClusterID)
		if err != nil {
			return fail(err)
		}
		res.Attempts = 1
		if IsTerminal(status.State) {
			return fail(failed(opts.ClusterID, status))
		}
		logger.Info("attaching to existing cluster", "cluster_id", opts.ClusterID, "state", status.State)
		enter(PhaseAttached)
	} else {
		id, err := f.Launcher.Launch(ctx, opts.Size, opts.ParamSet, opts.ConfigPath)
		if err != nil {
			return fail(err)
		}
		res.ClusterID = id
		res.Created = true
		enter(PhaseProvisioning)
		logger.Info("waiting for cluster", "cluster_id", id)

		attempts, err := f.Poller.WaitReady(ctx, id)
		res.Attempts = attempts
		if err != nil {
			return fail(err)
		}
		enter(PhaseReady)
	}

	addr, err := f.Poller.MasterAddress(ctx, res.ClusterID)
	if err != nil {
		return fail(err)
	}
	res.MasterAddress = addr
	logger.Info("master node found", "cluster_id", res.ClusterID, "address", addr)

	path, err := f.Writer.Generate(ctx, addr)
	if err != nil {
		return fail(err)
	}
	res.ConfigPath = path

	if f.StatePath != "" {
		if err := f.record(opts, res); err != nil {
			logger.Warn("recording attachment failed", "error", err)
		}
	}
	return res, nil
}

func (f *Flow) record(opts Options, res *Result) error {
	st := &state.State{
		ClusterID:     res.ClusterID,
		MasterAddress: res.MasterAddress,
		ConfigPath:    res.ConfigPath,
		Created:       res.Created,
		AttachedAt:    time.Now(),
	}
	if res.Created {
		st.ParamSet = opts.ParamSet
		st.Size = opts.Size
		st.ClusterName = compute.ClusterName(opts.ParamSet, opts.Size)
	}
	if err := st.Save(f.StatePath); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}
