package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"

	"github.com/beamline/emrattach/internal/attach"
	awspkg "github.com/beamline/emrattach/internal/aws"
	"github.com/beamline/emrattach/internal/compute"
	"github.com/beamline/emrattach/internal/config"
	"github.com/beamline/emrattach/internal/lock"
	"github.com/beamline/emrattach/internal/logging"
	"github.com/beamline/emrattach/internal/sparkmagic"
	"github.com/beamline/emrattach/internal/state"
)

var (
	clusterID    string
	clusterSize  string
	configFile   string
	paramSetName string

	outputPath   string
	templateURL  string
	pollInterval time.Duration
	pollTimeout  time.Duration
	maxAttempts  int

	awsProfile string
	awsRegion  string
	logLevel   string
	logDir     string

	statePath = state.DefaultPath

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// AWS clients are built through these so tests can substitute mocks.
var (
	loadAWSConfig    = awspkg.LoadConfig
	newClusterClient = func(cfg aws.Config, logger *slog.Logger) awspkg.ClusterAPI {
		return awspkg.NewEMRClient(cfg, logger)
	}
	newAccountClient = func(cfg aws.Config) awspkg.Client {
		return awspkg.NewRealClient(cfg)
	}
)

var rootCmd = &cobra.Command{
	Use:   "emrattach",
	Short: "Attach sparkmagic notebooks to Amazon EMR clusters",
	Long: `emrattach points a local sparkmagic installation at an Amazon EMR cluster.

Given --emrClusterId it attaches to that cluster. Given --clusterSize it
provisions a new cluster from the parameter file, waits until it is ready
and then attaches to it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAttach,
}

func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&clusterID, "emrClusterId", "e", "", "id of an existing EMR cluster to attach to")
	pf.StringVarP(&clusterSize, "clusterSize", "s", "", "size of the cluster to provision")
	pf.StringVarP(&configFile, "configFile", "c", config.DefaultPath, "parameter file")
	pf.StringVarP(&paramSetName, "paramSetName", "p", config.DefaultParamSet, "parameter set to use")
	pf.StringVar(&awsProfile, "profile", "", "AWS shared config profile")
	pf.StringVar(&awsRegion, "region", "", "AWS region")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&logDir, "log-dir", "", "log directory (default: "+logging.DefaultDir+")")

	addAttachFlags(rootCmd)
}

// addAttachFlags registers the flags of commands that run the attach flow.
func addAttachFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&outputPath, "output", sparkmagic.DefaultOutputPath, "sparkmagic config file to write")
	f.StringVar(&templateURL, "template-url", sparkmagic.DefaultTemplateURL, "sparkmagic config template (https://, s3:// or a local path)")
	f.DurationVar(&pollInterval, "poll-interval", attach.DefaultPollInterval, "pause between cluster state checks")
	f.DurationVar(&pollTimeout, "timeout", attach.DefaultPollTimeout, "maximum time to wait for a new cluster")
	f.IntVar(&maxAttempts, "max-attempts", 0, "maximum number of state checks (0 for no limit)")
}

func runAttach(cmd *cobra.Command, _ []string) error {
	opts := attach.Options{
		ClusterID:  clusterID,
		Size:       clusterSize,
		ParamSet:   paramSetName,
		ConfigPath: configFile,
	}
	if err := opts.Validate(); err != nil {
		_ = cmd.Usage()
		return err
	}

	logger, closer, err := logging.Setup(logLevel, logDir)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := lock.Acquire(lock.DefaultPath)
	if err != nil {
		return err
	}
	defer l.Release()
	logger.Debug("lock acquired", "path", l.Path())

	flow, err := newFlow(ctx, logger)
	if err != nil {
		return err
	}

	res, err := flow.Run(ctx, opts)
	if err != nil {
		return attachFailed(cmd, res, err)
	}

	printSummary(cmd.OutOrStdout(), res)
	return nil
}

// newFlow wires the attach flow to AWS and the sparkmagic template.
func newFlow(ctx context.Context, logger *slog.Logger) (*attach.Flow, error) {
	cfg, err := loadAWSConfig(ctx, awsProfile, awsRegion)
	if err != nil {
		return nil, err
	}
	cluster := newClusterClient(cfg, logger)

	source, err := sparkmagic.NewSource(templateURL, newAccountClient(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}

	return &attach.Flow{
		Launcher: compute.New(cluster, logger),
		Writer: &sparkmagic.Generator{
			Source:     source,
			OutputPath: outputPath,
			Logger:     logger,
		},
		Poller: &attach.Poller{
			Cluster:     cluster,
			Interval:    pollInterval,
			Timeout:     pollTimeout,
			MaxAttempts: maxAttempts,
			Logger:      logger,
		},
		Logger:    logger,
		StatePath: statePath,
	}, nil
}

// attachFailed points at a cluster that was created before the failure.
func attachFailed(cmd *cobra.Command, res *attach.Result, err error) error {
	if res != nil && res.Created {
		fmt.Fprintf(cmd.ErrOrStderr(), "Cluster %s was created; terminate it with `emrattach terminate -e %s --confirm` if it is no longer needed.\n", res.ClusterID, res.ClusterID)
	}
	if errors.Is(err, context.Canceled) {
		return errors.New("interrupted")
	}
	return err
}

// commandLogger sets up logging for subcommands that talk to AWS.
func commandLogger() (*slog.Logger, io.Closer, error) {
	return logging.Setup(logLevel, logDir)
}

// resolveClusterID falls back to the last attached cluster.
func resolveClusterID() (string, error) {
	if clusterID != "" {
		return clusterID, nil
	}
	st, err := state.Load(statePath)
	if err != nil {
		return "", fmt.Errorf("loading state: %w", err)
	}
	if !st.HasCluster() {
		return "", &attach.UsageError{Msg: "no cluster id given and no attached cluster recorded; pass --emrClusterId"}
	}
	return st.ClusterID, nil
}
