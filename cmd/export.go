package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadfetch/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a campaign's stored leads to an XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		campaign, _ := cmd.Flags().GetString("campaign")
		out, _ := cmd.Flags().GetString("out")
		if campaign == "" {
			return eris.New("export: --campaign is required")
		}
		if out == "" {
			out = campaign + ".xlsx"
		}
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := export.Leads(ctx, st, campaign, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d leads to %s\n", n, out) //nolint:errcheck
		return nil
	},
}

func init() {
	exportCmd.Flags().String("campaign", "", "campaign ID to export")
	exportCmd.Flags().String("out", "", "output path (default <campaign>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
