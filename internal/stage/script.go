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
	"prcast/internal/services/llm"
)

// ScriptWriter turns collected context into dialogue. Satisfied by *llm.Client.
type ScriptWriter interface {
	GenerateDialogue(ctx context.Context, req llm.ScriptRequest) (*llm.Dialogue, error)
}

// Scripter writes the episode dialogue for jobs at the scripting stage.
type Scripter struct {
	writer ScriptWriter
	cfg    *config.Config
	logger *slog.Logger
}

// NewScripter builds the scripting stage handler.
func NewScripter(writer ScriptWriter, cfg *config.Config, logger *slog.Logger) *Scripter {
	return &Scripter{
		writer: writer,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "scripter"),
	}
}

func (s *Scripter) Prepare(ctx context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.ContextJSON) == "" {
		return services.Wrap(services.ErrValidation, "scripting", "prepare", fmt.Sprintf("job %s has no collected context", job.ID), nil)
	}
	return nil
}

func (s *Scripter) Execute(ctx context.Context, job *queue.Job) error {
	var prctx github.PRContext
	if err := json.Unmarshal([]byte(job.ContextJSON), &prctx); err != nil {
		return services.Wrap(services.ErrPermanent, "scripting", "script", "decode pr context", err)
	}

	dialogue, err := s.writer.GenerateDialogue(ctx, llm.ScriptRequest{
		Context:   &prctx,
		EventKind: job.EventKind,
		HostAName: s.cfg.Podcast.HostAName,
		HostBName: s.cfg.Podcast.HostBName,
	})
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(dialogue)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "scripting", "script", "encode dialogue", err)
	}
	job.ScriptJSON = string(encoded)

	s.logger.Info("dialogue written",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldRepo, job.Repo),
		logging.String("title", dialogue.Title),
		logging.Int("turns", len(dialogue.Turns)))
	return nil
}

func (s *Scripter) HealthCheck(ctx context.Context) Health {
	if strings.TrimSpace(s.cfg.LLM.APIKey) == "" {
		return Unhealthy("scripter", "llm api key not configured")
	}
	return Healthy("scripter")
}
