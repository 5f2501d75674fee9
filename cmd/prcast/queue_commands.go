package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"prcast/internal/intake"
	"prcast/internal/logging"
	"prcast/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the episode job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueRetryCommand(ctx))
	cmd.AddCommand(newQueueClearCommand(ctx))
	cmd.AddCommand(newQueueHealthCommand(ctx))
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var stageFlags []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var stages []queue.Stage
			for _, value := range stageFlags {
				stage, ok := queue.ParseStage(value)
				if !ok {
					return fmt.Errorf("unknown stage %q", value)
				}
				stages = append(stages, stage)
			}

			jobs, err := store.ListByStage(cmd.Context(), stages...)
			if err != nil {
				return err
			}

			if jsonOut {
				type jobView struct {
					ID           string `json:"id"`
					Repo         string `json:"repo"`
					PRNumber     int    `json:"pr_number"`
					EventKind    string `json:"event_kind"`
					Stage        string `json:"stage"`
					AttemptCount int    `json:"attempt_count"`
					ErrorReason  string `json:"error_reason,omitempty"`
				}
				views := make([]jobView, 0, len(jobs))
				for _, job := range jobs {
					views = append(views, jobView{
						ID:           job.ID,
						Repo:         job.Repo,
						PRNumber:     job.PRNumber,
						EventKind:    job.EventKind,
						Stage:        string(job.Stage),
						AttemptCount: job.AttemptCount,
						ErrorReason:  job.ErrorReason,
					})
				}
				return writeJSON(cmd, views)
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					shortID(job.ID),
					job.Repo,
					strconv.Itoa(job.PRNumber),
					job.EventKind,
					job.Stage.Label(),
					strconv.Itoa(job.AttemptCount),
					job.UpdatedAt.Local().Format(time.DateTime),
					job.ErrorReason,
				})
			}
			headers := []string{"ID", "Repo", "PR", "Event", "Stage", "Attempts", "Updated", "Error"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(cmd.OutOrStdout(), headers, rows, aligns))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&stageFlags, "stage", nil, "Filter by stage (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>...",
		Short: "Resubmit failed jobs as fresh attempts",
		Args:  cobra.MinimumNArgs(1),
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

			in := intake.New(store, cfg, logging.NewNop())
			for _, id := range args {
				result, err := in.Resubmit(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s resubmitted as %s\n", id, result.Job.ID)
			}
			return nil
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var removed int64
			if all {
				removed, err = store.Clear(cmd.Context())
			} else {
				removed, err = store.ClearDone(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d job(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every job, not just finished ones")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show aggregate queue counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			summary, err := store.Health(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, summary)
			}

			rows := [][]string{
				{"Total", strconv.Itoa(summary.Total)},
				{"Waiting", strconv.Itoa(summary.Waiting)},
				{"In flight", strconv.Itoa(summary.InFlight)},
				{"Retrying", strconv.Itoa(summary.Retrying)},
				{"Done", strconv.Itoa(summary.Done)},
				{"Failed", strconv.Itoa(summary.Failed)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(cmd.OutOrStdout(), []string{"State", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
