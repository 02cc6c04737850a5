package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beamline/emrattach/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a parameter set and its sizes",
	Long:  `Load the parameter file and check the selected size, or every size of the parameter set when --clusterSize is not given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sizes := []string{clusterSize}
		if clusterSize == "" {
			all, err := config.Sizes(configFile, paramSetName)
			if err != nil {
				return err
			}
			sizes = all
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s / %s", configFile, paramSetName)))

		var failed []string
		for _, size := range sizes {
			params, err := config.Load(cmd.Context(), configFile, paramSetName, size)
			if err == nil {
				err = params.Validate()
			}
			if err != nil {
				failed = append(failed, size)
				fmt.Fprintf(out, "  %s %s\n", errStyle.Render("FAIL"), size)
				fmt.Fprintf(out, "       %s\n", err)
				continue
			}
			fmt.Fprintf(out, "  %s %s\n", successStyle.Render(" OK "), size)
		}

		if len(failed) > 0 {
			return fmt.Errorf("%d of %d sizes invalid", len(failed), len(sizes))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
