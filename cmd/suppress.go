package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var suppressCmd = &cobra.Command{
	Use:   "suppress <email>...",
	Short: "Add emails to a user's suppression list",
	Long:  "Suppressed emails are still stored when fetched but are flagged so they are never contacted.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user, _ := cmd.Flags().GetString("user")
		if user == "" {
			return eris.New("suppress: --user is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var added int
		for _, email := range args {
			email = strings.ToLower(strings.TrimSpace(email))
			if email == "" {
				continue
			}
			if err := st.AddSuppression(ctx, user, email); err != nil {
				return eris.Wrapf(err, "suppress: add %s", email)
			}
			added++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "suppressed %d emails for %s\n", added, user) //nolint:errcheck
		return nil
	},
}

func init() {
	suppressCmd.Flags().String("user", "", "owning user ID")
	rootCmd.AddCommand(suppressCmd)
}
