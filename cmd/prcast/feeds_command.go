package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"prcast/internal/feed"
	"prcast/internal/logging"
	"prcast/internal/publish"
)

func newFeedsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Manage the published RSS feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newFeedsRebuildCommand(ctx))
	return cmd
}

func newFeedsRebuildCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Re-render every feed file from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			finalizer := publish.NewFinalizer(feed.NewStore(store.DB()), cfg, logging.NewNop())
			feedIDs, err := finalizer.RebuildAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %d feed(s)\n", len(feedIDs))
			return nil
		},
	}
}
