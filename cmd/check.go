package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	awspkg "github.com/beamline/emrattach/internal/aws"
	"github.com/beamline/emrattach/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify AWS credentials and EMR permissions",
	Long: `Check the caller identity and whether it may create EMR clusters. When the
selected parameter set uses the Glue Data Catalog, also check that the
catalog is reachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, closer, err := commandLogger()
		if err != nil {
			return err
		}
		defer closer.Close()

		needGlue := false
		if ps, err := config.LoadParamSet(cmd.Context(), configFile, paramSetName); err != nil {
			logger.Warn("parameter set not loaded, skipping Glue checks", "error", err)
		} else {
			needGlue = ps.UsesGlueCatalog()
		}

		ctx := cmd.Context()
		cfg, err := loadAWSConfig(ctx, awsProfile, awsRegion)
		if err != nil {
			return err
		}
		client := newAccountClient(cfg)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Checking AWS credentials and permissions...")

		identity, err := client.VerifyCredentials(ctx)
		if err != nil {
			return fmt.Errorf("verifying credentials: %w", err)
		}
		printField(out, "Account", identity.Account)
		printField(out, "ARN", identity.ARN)
		printField(out, "Region", cfg.Region)

		access, err := awspkg.CheckAccountAccess(ctx, client, needGlue)
		if err != nil {
			return fmt.Errorf("checking account access: %w", err)
		}
		printField(out, "EMR", yesNo(access.EMRAvailable))
		if needGlue {
			printField(out, "Glue", yesNo(access.GlueAvailable))
			printField(out, "Glue catalog", fmt.Sprintf("%s (%d databases)", yesNo(access.GlueCatalogReachable), access.GlueDatabases))
		}

		if !access.EMRAvailable || (needGlue && !access.GlueCatalogReachable) {
			fmt.Fprintln(out, warnStyle.Render(access.Message))
			return nil
		}
		fmt.Fprintln(out, successStyle.Render(access.Message))
		return nil
	},
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
