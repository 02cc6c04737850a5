package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/beamline/emrattach/internal/config"
	"github.com/beamline/emrattach/internal/lock"
	"github.com/beamline/emrattach/internal/logging"
	"github.com/beamline/emrattach/internal/state"
	"github.com/beamline/emrattach/internal/wizard"
)

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Interactively choose a cluster size or an existing cluster, then attach",
	Long: `pick lists the cluster sizes of the selected parameter set. Choosing a
size provisions a new cluster; pressing e attaches to an existing cluster
instead. Progress is shown until the sparkmagic config is written.`,
	RunE: runPick,
}

func init() {
	addAttachFlags(pickCmd)
	rootCmd.AddCommand(pickCmd)
}

func runPick(cmd *cobra.Command, _ []string) error {
	profiles, err := config.SizeProfiles(configFile, paramSetName)
	if err != nil && !errors.Is(err, config.ErrParamSetNotFound) {
		return err
	}

	last := ""
	if st, err := state.Load(statePath); err == nil && st.HasCluster() {
		last = st.ClusterID
	}

	choice, err := wizard.RunPicker(paramSetName, profiles, last, tea.WithAltScreen())
	if err != nil {
		return err
	}
	if choice.Cancelled {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil
	}
	opts := choice.Options(paramSetName, configFile)

	// The progress view owns the terminal, so logs go only to the file.
	logger, closer, err := logging.SetupFile(logLevel, logDir)
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

	res, err := wizard.RunWithProgress(ctx, flow, opts)
	if err != nil {
		return attachFailed(cmd, res, err)
	}

	printSummary(cmd.OutOrStdout(), res)
	return nil
}
