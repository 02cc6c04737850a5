package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beamline/emrattach/internal/attach"
	"github.com/beamline/emrattach/internal/state"
)

var terminateConfirm bool

var terminateCmd = &cobra.Command{
	Use:   "terminate",
	Short: "Terminate a cluster",
	Long:  `Request termination of the cluster given by --emrClusterId, or the last attached cluster. Returns without waiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveClusterID()
		if err != nil {
			return err
		}
		if !terminateConfirm {
			return &attach.UsageError{Msg: fmt.Sprintf("refusing to terminate %s without --confirm", id)}
		}

		logger, closer, err := commandLogger()
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx := cmd.Context()
		cfg, err := loadAWSConfig(ctx, awsProfile, awsRegion)
		if err != nil {
			return err
		}
		if err := newClusterClient(cfg, logger).TerminateCluster(ctx, id); err != nil {
			return err
		}

		st, err := state.Load(statePath)
		if err == nil && st.ClusterID == id {
			if err := state.Clear(statePath); err != nil {
				logger.Warn("clearing state failed", "error", err)
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Termination requested for "+id))
		return nil
	},
}

func init() {
	terminateCmd.Flags().BoolVar(&terminateConfirm, "confirm", false, "confirm termination")
	rootCmd.AddCommand(terminateCmd)
}
