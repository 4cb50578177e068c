package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saltyorg/vidprev/internal/credentials"
)

func newCredentialsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the stored Jellyfin credential document",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Store a credential document (the web client's jellyfin_credentials value)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			db, err := ctx.database()
			if err != nil {
				return err
			}
			creds, err := credentials.Import(db, string(raw))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored credentials for user %s (token %s)\n", creds.UserID, creds.Masked())
			return nil
		},
	})

	var asJSON bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the credentials the engine would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := ctx.credentials()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, map[string]string{
					"user_id": creds.UserID,
					"address": creds.Address,
					"token":   creds.Masked(),
				})
			}
			rows := [][]string{
				{"User", creds.UserID},
				{"Address", creds.Address},
				{"Token", creds.Masked()},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored credential document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.database()
			if err != nil {
				return err
			}
			if err := db.RemoveItem(credentials.StorageKey); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials removed")
			return nil
		},
	})

	return cmd
}
