package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beamline/emrattach/internal/attach"
	awspkg "github.com/beamline/emrattach/internal/aws"
	"github.com/beamline/emrattach/internal/compute"
	"github.com/beamline/emrattach/internal/config"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the RunJobFlow request for a parameter set and size",
	Long:  `Build the EMR RunJobFlow request that --clusterSize would submit and print it as JSON. No AWS calls are made.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if clusterSize == "" {
			return &attach.UsageError{Msg: "--clusterSize is required"}
		}

		params, err := config.Load(cmd.Context(), configFile, paramSetName, clusterSize)
		if err != nil {
			return err
		}
		if err := params.Validate(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("warning: "+err.Error()))
		}

		spec := compute.SpecFromParams(compute.ClusterName(paramSetName, clusterSize), params)
		data, err := json.MarshalIndent(awspkg.BuildRunJobFlowInput(spec), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
}
