package daemon

import (
	"fmt"

	"log/slog"

	"prcast/internal/config"
	"prcast/internal/feed"
	"prcast/internal/intake"
	"prcast/internal/notifications"
	"prcast/internal/publish"
	"prcast/internal/queue"
	"prcast/internal/server"
	"prcast/internal/services/github"
	"prcast/internal/services/llm"
	"prcast/internal/services/tts"
	"prcast/internal/stage"
	"prcast/internal/workflow"
)

// Build opens the queue store and assembles the complete service graph. The
// caller owns the returned daemon and must Close it.
func Build(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	feeds := feed.NewStore(store.DB())
	finalizer := publish.NewFinalizer(feeds, cfg, logger)

	githubClient := github.NewClient(github.Config{
		Token:          cfg.GitHub.Token,
		BaseURL:        cfg.GitHub.BaseURL,
		TimeoutSeconds: cfg.GitHub.TimeoutSeconds,
		DiffMaxBytes:   cfg.GitHub.DiffMaxBytes,
	})
	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	ttsClient := tts.NewClient(tts.Config{
		APIKey:         cfg.TTS.APIKey,
		BaseURL:        cfg.TTS.BaseURL,
		ModelID:        cfg.TTS.ModelID,
		TimeoutSeconds: cfg.TTS.TimeoutSeconds,
	})

	handlers := workflow.StageSet{
		Collector: stage.NewCollector(githubClient, cfg, logger),
		Scripter:  stage.NewScripter(llmClient, cfg, logger),
		Renderer:  stage.NewRenderer(ttsClient, cfg, logger),
		Publisher: stage.NewPublisher(finalizer, cfg, logger),
	}

	notifier := notifications.NewService(cfg)
	manager := workflow.NewManager(cfg, store, handlers, logger, notifier)
	in := intake.New(store, cfg, logger)
	srv := server.New(cfg, store, in, manager, logger)

	daemon, err := New(cfg, store, logger, in, manager, srv)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return daemon, nil
}
