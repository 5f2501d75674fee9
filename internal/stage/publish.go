package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"prcast/internal/config"
	"prcast/internal/logging"
	"prcast/internal/publish"
	"prcast/internal/queue"
	"prcast/internal/services"
)

// EpisodePublisher finalizes episodes into feeds. Satisfied by *publish.Finalizer.
type EpisodePublisher interface {
	Publish(ctx context.Context, job *queue.Job) (*publish.EpisodeRecord, error)
}

// Publisher finalizes jobs at the publishing stage.
type Publisher struct {
	finalizer EpisodePublisher
	cfg       *config.Config
	logger    *slog.Logger
}

// NewPublisher builds the publishing stage handler.
func NewPublisher(finalizer EpisodePublisher, cfg *config.Config, logger *slog.Logger) *Publisher {
	return &Publisher{
		finalizer: finalizer,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "publisher"),
	}
}

func (p *Publisher) Prepare(ctx context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.AudioJSON) == "" {
		return services.Wrap(services.ErrValidation, "publishing", "prepare", fmt.Sprintf("job %s has no rendered audio", job.ID), nil)
	}
	return nil
}

func (p *Publisher) Execute(ctx context.Context, job *queue.Job) error {
	record, err := p.finalizer.Publish(ctx, job)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "publishing", "publish", "encode episode record", err)
	}
	job.EpisodeJSON = string(encoded)
	return nil
}

func (p *Publisher) HealthCheck(ctx context.Context) Health {
	if strings.TrimSpace(p.cfg.Paths.FeedsDir) == "" {
		return Unhealthy("publisher", "feeds directory not configured")
	}
	return Healthy("publisher")
}
