package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beamline/emrattach/internal/attach"
	"github.com/beamline/emrattach/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a cluster",
	Long:  `Describe the cluster given by --emrClusterId, or the last attached cluster.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveClusterID()
		if err != nil {
			return err
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
		info, err := newClusterClient(cfg, logger).DescribeCluster(ctx, id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render(info.ID))
		printField(out, "Name", info.Name)
		stateStyle := warnStyle
		switch {
		case attach.IsReady(info.Status.State):
			stateStyle = successStyle
		case attach.IsTerminal(info.Status.State):
			stateStyle = errStyle
		}
		fmt.Fprintln(out, labelStyle.Render("State")+stateStyle.Render(string(info.Status.State)))
		printField(out, "Reason", info.Status.Reason)
		printField(out, "Release", info.ReleaseLabel)
		printField(out, "Applications", strings.Join(info.Applications, ", "))
		printField(out, "Master DNS", info.MasterPublicDNS)

		st, err := state.Load(statePath)
		if err == nil && st.ClusterID == info.ID {
			printField(out, "Master IP", st.MasterAddress)
			printField(out, "Config", st.ConfigPath)
			if !st.AttachedAt.IsZero() {
				printField(out, "Attached", st.AttachedAt.Format("2006-01-02 15:04:05"))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
