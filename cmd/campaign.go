package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/campaignfile"
	"github.com/sells-group/leadfetch/internal/model"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Manage campaigns",
}

var campaignImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create or update campaigns from a YAML or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		campaigns, err := campaignfile.Load(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for i := range campaigns {
			if err := st.UpsertCampaign(ctx, &campaigns[i]); err != nil {
				return eris.Wrapf(err, "campaign: upsert %s", campaigns[i].ID)
			}
			zap.L().Debug("campaign upserted", zap.String("campaign_id", campaigns[i].ID))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d campaigns from %s\n", len(campaigns), args[0]) //nolint:errcheck
		return nil
	},
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		user, _ := cmd.Flags().GetString("user")
		campaigns, err := st.ListCampaigns(ctx, user)
		if err != nil {
			return eris.Wrap(err, "campaign: list")
		}
		return writeCampaignsTable(cmd.OutOrStdout(), campaigns)
	},
}

var campaignDeactivateCmd = &cobra.Command{
	Use:   "deactivate <campaign-id>",
	Short: "Deactivate a campaign so running jobs stop at the next page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SetCampaignActive(ctx, args[0], false); err != nil {
			return eris.Wrapf(err, "campaign: deactivate %s", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "campaign %s deactivated\n", args[0]) //nolint:errcheck
		return nil
	},
}

func writeCampaignsTable(out io.Writer, campaigns []model.Campaign) error {
	if len(campaigns) == 0 {
		_, err := fmt.Fprintln(out, "No campaigns found.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tNAME\tMODE\tMAX\tACTIVE\tSHEET") //nolint:errcheck
	fmt.Fprintln(w, "--\t----\t----\t----\t---\t------\t-----") //nolint:errcheck
	for _, c := range campaigns {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\t%s\n", //nolint:errcheck
			c.ID, c.UserID, truncate(c.Name, 30), c.SearchMode, c.MaxLeads, c.IsActive, c.SheetName)
	}
	return w.Flush()
}

func init() {
	campaignListCmd.Flags().String("user", "", "filter by owning user ID")
	campaignCmd.AddCommand(campaignImportCmd, campaignListCmd, campaignDeactivateCmd)
	rootCmd.AddCommand(campaignCmd)
}
