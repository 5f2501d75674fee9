package workflow

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"prcast/internal/config"
	"prcast/internal/logging"
	"prcast/internal/notifications"
	"prcast/internal/queue"
	"prcast/internal/retrypolicy"
	"prcast/internal/stage"
)

// StageSet bundles the concrete pipeline handlers the manager orchestrates.
type StageSet struct {
	Collector stage.Handler
	Scripter  stage.Handler
	Renderer  stage.Handler
	Publisher stage.Handler
}

func (s StageSet) handlerFor(st queue.Stage) stage.Handler {
	switch st {
	case queue.StageCollecting:
		return s.Collector
	case queue.StageScripting:
		return s.Scripter
	case queue.StageRendering:
		return s.Renderer
	case queue.StagePublishing:
		return s.Publisher
	}
	return nil
}

// Manager runs the worker pool that drives jobs through the pipeline.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	handlers StageSet
	logger   *slog.Logger
	notifier notifications.Service

	policy       retrypolicy.Policy
	limits       queue.ClaimLimits
	pollInterval time.Duration
	heartbeat    *HeartbeatMonitor
	workerBase   string

	mu      sync.Mutex
	running bool
	cancel  func()
	wg      sync.WaitGroup
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, handlers StageSet, logger *slog.Logger, notifier notifications.Service) *Manager {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	leaseDuration := time.Duration(cfg.Workflow.LeaseSeconds) * time.Second
	heartbeatInterval := time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "prcast"
	}

	return &Manager{
		cfg:      cfg,
		store:    store,
		handlers: handlers,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		notifier: notifier,
		policy: retrypolicy.Policy{
			BaseDelay:   time.Duration(cfg.Workflow.RetryBaseSeconds) * time.Second,
			MaxDelay:    time.Duration(cfg.Workflow.RetryMaxSeconds) * time.Second,
			MaxAttempts: cfg.Workflow.MaxAttempts,
		},
		limits: queue.ClaimLimits{
			MaxInFlight:   cfg.Workflow.Workers,
			LeaseDuration: leaseDuration,
		},
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat:    NewHeartbeatMonitor(store, logger, heartbeatInterval, leaseDuration),
		workerBase:   fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	}
}
