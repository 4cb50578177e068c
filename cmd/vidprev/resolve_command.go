package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saltyorg/vidprev/internal/source"
)

type resolveResult struct {
	ItemID   string `json:"item_id"`
	MediaID  string `json:"media_id"`
	Direct   string `json:"direct_url"`
	Fallback string `json:"fallback_url"`
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resolve ITEM_ID",
		Short: "Resolve an item to its preview media and stream URLs",
		Long:  "Resolve follows a series to the first episode of its first season, a season to its first episode, and prints the direct and transcoded stream URLs a preview would try.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, _, err := ctx.resolver(cmd)
			if err != nil {
				return err
			}

			itemID := args[0]
			mediaID, err := resolver.Resolve(cmd.Context(), itemID)
			if err != nil {
				return err
			}

			res := resolveResult{
				ItemID:   itemID,
				MediaID:  mediaID,
				Direct:   resolver.Direct(mediaID).URL,
				Fallback: resolver.Fallback(mediaID).URL,
			}
			if asJSON {
				return writeJSON(cmd, res)
			}

			rows := [][]string{
				{"item", res.ItemID},
				{"media", res.MediaID},
				{source.DirectPlay.String(), res.Direct},
				{source.TranscodedFallback.String(), res.Fallback},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
