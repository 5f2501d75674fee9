package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"prcast/internal/audio"
	"prcast/internal/config"
	"prcast/internal/logging"
	"prcast/internal/queue"
	"prcast/internal/services"
	"prcast/internal/services/llm"
)

// SpeechRenderer synthesizes one spoken line. Satisfied by *tts.Client.
type SpeechRenderer interface {
	RenderTurn(ctx context.Context, voice, text string) ([]byte, error)
}

// Renderer produces the episode audio for jobs at the rendering stage.
type Renderer struct {
	speech    SpeechRenderer
	assembler *audio.Assembler
	cfg       *config.Config
	logger    *slog.Logger
}

// NewRenderer builds the rendering stage handler.
func NewRenderer(speech SpeechRenderer, cfg *config.Config, logger *slog.Logger) *Renderer {
	gap := time.Duration(cfg.TTS.TurnGapMillis) * time.Millisecond
	return &Renderer{
		speech:    speech,
		assembler: audio.NewAssembler(cfg.Paths.AudioDir, gap),
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "renderer"),
	}
}

func (r *Renderer) Prepare(ctx context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.ScriptJSON) == "" {
		return services.Wrap(services.ErrValidation, "rendering", "prepare", fmt.Sprintf("job %s has no dialogue", job.ID), nil)
	}
	return nil
}

// Execute renders every turn with its host's voice and assembles the segments
// into one mp3. The whole stage reruns on retry; segments are not cached
// across attempts.
func (r *Renderer) Execute(ctx context.Context, job *queue.Job) error {
	var dialogue llm.Dialogue
	if err := json.Unmarshal([]byte(job.ScriptJSON), &dialogue); err != nil {
		return services.Wrap(services.ErrPermanent, "rendering", "render", "decode dialogue", err)
	}
	if len(dialogue.Turns) == 0 {
		return services.Wrap(services.ErrPermanent, "rendering", "render", "dialogue has no turns", nil)
	}

	segments := make([][]byte, 0, len(dialogue.Turns))
	for i, turn := range dialogue.Turns {
		voice := r.voiceFor(turn.Host)
		if voice == "" {
			return services.Wrap(services.ErrConfiguration, "rendering", "render", fmt.Sprintf("no voice configured for host %q", turn.Host), nil)
		}
		segment, err := r.speech.RenderTurn(ctx, voice, turn.Text)
		if err != nil {
			// Keep the client's classification intact.
			return fmt.Errorf("render turn %d: %w", i, err)
		}
		segments = append(segments, segment)
	}

	episode, err := r.assembler.Assemble(job.Repo, job.ID, segments)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(episode)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "rendering", "render", "encode episode", err)
	}
	job.AudioJSON = string(encoded)

	r.logger.Info("episode audio rendered",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldRepo, job.Repo),
		logging.Int("turns", episode.Turns),
		logging.Int64("bytes", episode.Bytes),
		logging.Duration("duration", episode.Duration))
	return nil
}

func (r *Renderer) HealthCheck(ctx context.Context) Health {
	switch {
	case strings.TrimSpace(r.cfg.TTS.APIKey) == "":
		return Unhealthy("renderer", "tts api key not configured")
	case strings.TrimSpace(r.cfg.TTS.HostAVoice) == "" || strings.TrimSpace(r.cfg.TTS.HostBVoice) == "":
		return Unhealthy("renderer", "host voices not configured")
	}
	return Healthy("renderer")
}

func (r *Renderer) voiceFor(host string) string {
	switch host {
	case llm.HostA:
		return r.cfg.TTS.HostAVoice
	case llm.HostB:
		return r.cfg.TTS.HostBVoice
	}
	return ""
}
