package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"prcast/internal/logging"
	"prcast/internal/queue"
)

// HeartbeatMonitor extends leases for executing jobs and reclaims leases that
// lapsed after a crash.
type HeartbeatMonitor struct {
	store         *queue.Store
	logger        *slog.Logger
	interval      time.Duration
	leaseDuration time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, leaseDuration time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:         store,
		logger:        logging.NewComponentLogger(logger, "workflow-heartbeat"),
		interval:      interval,
		leaseDuration: leaseDuration,
	}
}

// ReclaimExpired clears leases whose expiry passed without a release. The
// affected jobs resume from their last persisted stage on the next claim.
func (h *HeartbeatMonitor) ReclaimExpired(ctx context.Context) error {
	reclaimed, err := h.store.ReclaimExpiredLeases(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed expired leases", logging.Int64("count", reclaimed))
	}
	return nil
}

// StartLoop keeps one job's lease alive until the context is cancelled. If the
// lease is lost to another owner the loop stops extending and logs a warning;
// the executing stage will lose the version race on persist.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID, workerID string) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			until := time.Now().UTC().Add(h.leaseDuration)
			ok, err := h.store.ExtendLease(ctx, jobID, workerID, until)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				h.logger.Warn("lease extension failed",
					logging.String(logging.FieldJobID, jobID),
					logging.Error(err))
				continue
			}
			if !ok {
				h.logger.Warn("lease no longer held, stopping heartbeat",
					logging.String(logging.FieldJobID, jobID),
					logging.String(logging.FieldWorker, workerID))
				return
			}
		}
	}
}
