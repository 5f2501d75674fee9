package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"prcast/internal/config"
	"prcast/internal/logging"
	"prcast/internal/queue"
	"prcast/internal/services"
	"prcast/internal/services/github"
)

// ContextCollector fetches pull request context. Satisfied by *github.Client.
type ContextCollector interface {
	CollectPR(ctx context.Context, repo string, number int) (*github.PRContext, error)
}

// Collector gathers PR context for jobs at the collecting stage.
type Collector struct {
	client ContextCollector
	cfg    *config.Config
	logger *slog.Logger
}

// NewCollector builds the collecting stage handler.
func NewCollector(client ContextCollector, cfg *config.Config, logger *slog.Logger) *Collector {
	return &Collector{
		client: client,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "collector"),
	}
}

func (c *Collector) Prepare(ctx context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.Repo) == "" || job.PRNumber <= 0 {
		return services.Wrap(services.ErrValidation, "collecting", "prepare", fmt.Sprintf("job %s has no pull request target", job.ID), nil)
	}
	return nil
}

// Execute collects metadata, diff, reviews, and discussion for the job's pull
// request. A PR that was closed without merging is reported superseded: the
// episode would describe a change that never landed.
func (c *Collector) Execute(ctx context.Context, job *queue.Job) error {
	prctx, err := c.client.CollectPR(ctx, job.Repo, job.PRNumber)
	if err != nil {
		return err
	}

	if job.EventKind == "merged" && !prctx.PR.Merged && strings.EqualFold(prctx.PR.State, "closed") {
		return services.Wrap(services.ErrSuperseded, "collecting", "collect", fmt.Sprintf("pr %s#%d closed without merge", job.Repo, job.PRNumber), nil)
	}

	encoded, err := json.Marshal(prctx)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "collecting", "collect", "encode pr context", err)
	}
	job.ContextJSON = string(encoded)

	c.logger.Info("pr context collected",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldRepo, job.Repo),
		logging.Int("pr", job.PRNumber),
		logging.Int("reviews", len(prctx.Reviews)),
		logging.Int("comments", len(prctx.Comments)),
		logging.Bool("diff_truncated", prctx.DiffTruncated))
	return nil
}

func (c *Collector) HealthCheck(ctx context.Context) Health {
	if strings.TrimSpace(c.cfg.GitHub.Token) == "" {
		return Unhealthy("collector", "github token not configured")
	}
	return Healthy("collector")
}
