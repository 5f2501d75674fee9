package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"prcast/internal/logging"
	"prcast/internal/queue"
	"prcast/internal/retrypolicy"
	"prcast/internal/services"
)

// Start begins background processing with the configured worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.handlers.Collector == nil || m.handlers.Scripter == nil || m.handlers.Renderer == nil || m.handlers.Publisher == nil {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	m.wg.Add(workers + 1)
	m.mu.Unlock()

	go m.runReclaimer(runCtx)
	for i := 0; i < workers; i++ {
		workerID := fmt.Sprintf("%s-w%d", m.workerBase, i)
		go m.runWorker(runCtx, workerID)
	}
	return nil
}

// Stop terminates background processing and waits for in-flight work.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.heartbeat.ReclaimExpired(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("lease reclamation failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "lease_reclaim_failed"))
			}
		}
	}
}

func (m *Manager) runWorker(ctx context.Context, workerID string) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String(logging.FieldWorker, workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := m.RunOnce(ctx, workerID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("claim cycle failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "claim_failed"))
			m.waitOrShutdown(ctx, time.Duration(m.cfg.Workflow.ErrorRetryInterval)*time.Second)
			continue
		}
		if !processed {
			m.waitOrShutdown(ctx, m.pollInterval)
		}
	}
}

func (m *Manager) waitOrShutdown(ctx context.Context, wait time.Duration) {
	if wait <= 0 {
		wait = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

// RunOnce claims at most one job and drives it through its current stage.
// It reports whether a job was processed. Exposed for tests and the CLI's
// single-shot mode.
func (m *Manager) RunOnce(ctx context.Context, workerID string) (bool, error) {
	job, err := m.store.ClaimNext(ctx, workerID, m.limits, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	m.processJob(ctx, workerID, job)
	return true, nil
}

func (m *Manager) processJob(ctx context.Context, workerID string, job *queue.Job) {
	requestID := uuid.NewString()
	jobCtx := services.WithJobID(ctx, job.ID)
	jobCtx = services.WithRepo(jobCtx, job.Repo)
	jobCtx = services.WithStage(jobCtx, string(job.Stage))
	jobCtx = services.WithWorker(jobCtx, workerID)
	jobCtx = services.WithRequestID(jobCtx, requestID)

	logger := logging.WithContext(jobCtx, m.logger)

	// A claimed job may have been superseded by a newer attempt while it sat
	// in backoff. Finish it without running the stage.
	latest, err := m.store.FindLatestAttempt(jobCtx, job.Repo, job.PRNumber, job.EventKind, job.DeliveryID)
	if err == nil && latest != nil && latest.ID != job.ID {
		logger.Info("job superseded by newer attempt",
			logging.String("superseded_by", latest.ID),
			logging.String(logging.FieldEventType, "job_superseded"))
		job.Fail(queue.SupersededReason)
		m.finishJob(jobCtx, logger, workerID, job)
		return
	}

	handler := m.handlers.handlerFor(job.Stage)
	if handler == nil {
		job.Fail(fmt.Sprintf("no handler for stage %s", job.Stage))
		m.finishJob(jobCtx, logger, workerID, job)
		return
	}

	stageStart := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("attempt", job.AttemptCount+1))

	if err := handler.Prepare(jobCtx, job); err != nil {
		m.handleStageFailure(jobCtx, logger, workerID, job, err)
		return
	}

	execErr := m.executeWithHeartbeat(jobCtx, handler, workerID, job)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			// Shutdown mid-stage: drop the lease and leave the job untouched
			// so it is reclaimed with its last persisted state.
			logger.Debug("stage interrupted by shutdown")
			if err := m.store.ReleaseLease(context.WithoutCancel(jobCtx), job.ID, workerID); err != nil {
				logger.Warn("lease release failed during shutdown", logging.Error(err))
			}
			return
		}
		m.handleStageFailure(jobCtx, logger, workerID, job, execErr)
		return
	}

	job.Advance()
	m.finishJob(jobCtx, logger, workerID, job)

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_stage", string(job.Stage)),
		logging.Duration("stage_duration", time.Since(stageStart)))

	if job.Stage == queue.StageDone {
		m.notifyPublished(jobCtx, job)
	}
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler interface {
	Execute(context.Context, *queue.Job) error
}, workerID string, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID, workerID)

	execErr := handler.Execute(ctx, job)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) handleStageFailure(ctx context.Context, logger *slog.Logger, workerID string, job *queue.Job, stageErr error) {
	details := services.Details(stageErr)
	decision := m.policy.Decide(job.AttemptCount+1, stageErr, time.Now().UTC())

	switch decision.Action {
	case retrypolicy.ActionAbandon:
		logger.Info("job abandoned as superseded",
			logging.String(logging.FieldEventType, "job_superseded"),
			logging.String(logging.FieldErrorKind, details.Kind))
		job.Fail(queue.SupersededReason)
	case retrypolicy.ActionRetry:
		logger.Warn("stage failed, retry scheduled",
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.String(logging.FieldErrorKind, details.Kind),
			logging.Int("attempt", job.AttemptCount+1),
			logging.Duration("retry_delay", decision.Delay),
			logging.Error(stageErr))
		job.ScheduleRetry(decision.RetryAt, details.Message)
	default:
		logger.Error("stage failed permanently",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorKind, details.Kind),
			logging.Error(stageErr))
		job.Fail(decision.Reason)
		if err := m.notifier.NotifyJobFailed(ctx, job.Repo, job.PRNumber, decision.Reason); err != nil {
			logger.Warn("failure notification failed", logging.Error(err))
		}
	}

	m.finishJob(ctx, logger, workerID, job)
}

// finishJob drops the lease and persists the job's new state. Losing the
// version race means another writer finished the job first; their write wins.
func (m *Manager) finishJob(ctx context.Context, logger *slog.Logger, workerID string, job *queue.Job) {
	job.LeaseOwner = ""
	job.LeaseExpires = nil
	persistCtx := context.WithoutCancel(ctx)
	if err := m.store.Persist(persistCtx, job); err != nil {
		if errors.Is(err, queue.ErrVersionConflict) {
			logger.Warn("job state changed concurrently, discarding result",
				logging.String(logging.FieldEventType, "version_conflict"))
			if releaseErr := m.store.ReleaseLease(persistCtx, job.ID, workerID); releaseErr != nil {
				logger.Warn("lease release failed", logging.Error(releaseErr))
			}
			return
		}
		logger.Error("failed to persist job state", logging.Error(err))
	}
}

func (m *Manager) notifyPublished(ctx context.Context, job *queue.Job) {
	title := ""
	var record struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(job.EpisodeJSON), &record); err == nil {
		title = record.Title
	}
	if err := m.notifier.NotifyEpisodePublished(ctx, job.Repo, title, job.PRNumber); err != nil {
		m.logger.Warn("publish notification failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	}
}
