package main

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"prcast/internal/intake"
	"prcast/internal/logging"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var action string
	var merged bool
	var delivery string

	cmd := &cobra.Command{
		Use:   "submit <owner/repo> <pr-number>",
		Short: "Submit a pull request for episode production without a webhook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prNumber, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid pull request number %q", args[1])
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if delivery == "" {
				delivery = "manual-" + uuid.NewString()
			}

			in := intake.New(store, cfg, logging.NewNop())
			result, err := in.Submit(cmd.Context(), intake.Event{
				Repo:       args[0],
				PRNumber:   prNumber,
				Action:     action,
				Merged:     merged,
				DeliveryID: delivery,
			})
			if err != nil {
				return err
			}

			out := map[string]string{"disposition": string(result.Disposition)}
			if result.Job != nil {
				out["job_id"] = result.Job.ID
				out["stage"] = string(result.Job.Stage)
			}
			return writeJSON(cmd, out)
		},
	}

	cmd.Flags().StringVar(&action, "action", "closed", "Pull request action to simulate")
	cmd.Flags().BoolVar(&merged, "merged", true, "Whether the pull request was merged")
	cmd.Flags().StringVar(&delivery, "delivery", "", "Delivery ID (defaults to a generated manual ID)")
	return cmd
}
