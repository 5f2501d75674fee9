package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in full, including stage payloads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			job, err := store.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %s not found", args[0])
			}

			view := map[string]any{
				"id":            job.ID,
				"repo":          job.Repo,
				"pr_number":     job.PRNumber,
				"event_kind":    job.EventKind,
				"delivery_id":   job.DeliveryID,
				"attempt_seq":   job.AttemptSeq,
				"stage":         string(job.Stage),
				"attempt_count": job.AttemptCount,
				"created_at":    job.CreatedAt,
				"updated_at":    job.UpdatedAt,
				"version":       job.Version,
			}
			if job.Supersedes != "" {
				view["supersedes"] = job.Supersedes
			}
			if job.ErrorReason != "" {
				view["error_reason"] = job.ErrorReason
			}
			if job.NextRetryAt != nil {
				view["next_retry_at"] = job.NextRetryAt
			}
			if job.LeaseOwner != "" {
				view["lease_owner"] = job.LeaseOwner
				view["lease_expires"] = job.LeaseExpires
			}
			for key, payload := range map[string]string{
				"context": job.ContextJSON,
				"script":  job.ScriptJSON,
				"audio":   job.AudioJSON,
				"episode": job.EpisodeJSON,
			} {
				if payload == "" {
					continue
				}
				view[key] = json.RawMessage(payload)
			}
			return writeJSON(cmd, view)
		},
	}
}
